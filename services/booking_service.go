package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"turf-booking/config"
	"turf-booking/internal/status"
	"turf-booking/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

const slotKeyFilter = "vendor_id = {:vendorId} && turf_id = {:turfId} && sport = {:sport} && date = {:date} && time_slot = {:timeSlot}"

// BookingService is the booking store plus the per-turf-per-date slot status
// index. Bookings are the ultimate authority on what is actually booked; the
// index is a derived cache written only through the confirm/cancel
// transitions.
type BookingService struct {
	app    core.App
	Config *config.Config
}

func NewBookingService(app core.App, cfg *config.Config) *BookingService {
	return &BookingService{app: app, Config: cfg}
}

// HasConfirmedBooking reports whether a confirmed booking already occupies
// the slot. This is the check that makes "booked supersedes locked" hold on
// every lock and confirm path.
func (s *BookingService) HasConfirmedBooking(ctx context.Context, key models.SlotKey) (bool, error) {
	_, err := s.app.FindFirstRecordByFilter(
		"bookings",
		slotKeyFilter+" && booking_status = 'confirmed'",
		dbx.Params{
			"vendorId": key.VendorID,
			"turfId":   key.TurfID,
			"sport":    key.Sport,
			"date":     key.Date,
			"timeSlot": key.TimeSlot,
		},
	)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query bookings: %w", err)
	}
	return true, nil
}

func (s *BookingService) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	record, err := s.app.FindRecordById("bookings", bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrNotFound
		}
		return nil, fmt.Errorf("fetch booking: %w", err)
	}
	return bookingFromRecord(record), nil
}

// BookingsByUser returns the user's bookings, newest first.
func (s *BookingService) BookingsByUser(ctx context.Context, userID string) ([]*models.Booking, error) {
	records, err := s.app.FindRecordsByFilter(
		"bookings",
		"user_id = {:userId}",
		"-created",
		0,
		0,
		dbx.Params{"userId": userID},
	)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}

	bookings := make([]*models.Booking, 0, len(records))
	for _, record := range records {
		bookings = append(bookings, bookingFromRecord(record))
	}
	return bookings, nil
}

// insertBooking performs the unconditional insert. Callers (the reservation
// transitions) are responsible for having already ruled out a conflicting
// confirmed booking.
func (s *BookingService) insertBooking(app core.App, b *models.Booking) (string, error) {
	collection, err := app.FindCollectionByNameOrId("bookings")
	if err != nil {
		return "", fmt.Errorf("bookings collection: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("order_id", b.OrderID)
	record.Set("user_id", b.UserID)
	record.Set("vendor_id", b.VendorID)
	record.Set("turf_id", b.TurfID)
	record.Set("sport", b.Sport)
	record.Set("date", b.Date)
	record.Set("time_slot", b.TimeSlot)
	record.Set("amount", b.Amount.String())
	record.Set("payment_status", b.PaymentStatus)
	record.Set("booking_status", b.BookingStatus)

	if err := app.Save(record); err != nil {
		return "", fmt.Errorf("save booking: %w", err)
	}
	return record.Id, nil
}

// markCancelled flips the booking status. The record is retained as audit
// trail, never deleted.
func (s *BookingService) markCancelled(app core.App, bookingID string) error {
	record, err := app.FindRecordById("bookings", bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return status.ErrNotFound
		}
		return fmt.Errorf("fetch booking: %w", err)
	}

	record.Set("booking_status", models.BookingStatusCancelled)
	if err := app.Save(record); err != nil {
		return fmt.Errorf("save booking: %w", err)
	}
	return nil
}

// markBooked merge-writes one leaf of the slot status index without
// disturbing sibling sports or slots under the same (turf, date) document.
func (s *BookingService) markBooked(app core.App, key models.SlotKey, bookingID, userID string) error {
	return s.mergeDayLeaf(app, key.TurfID, key.Date, func(day models.DaySlots) {
		day.SetBooked(key.Sport, key.TimeSlot, bookingID, userID)
	})
}

// markAvailable clears one leaf with the same merge discipline.
func (s *BookingService) markAvailable(app core.App, key models.SlotKey) error {
	return s.mergeDayLeaf(app, key.TurfID, key.Date, func(day models.DaySlots) {
		day.SetAvailable(key.Sport, key.TimeSlot)
	})
}

func (s *BookingService) mergeDayLeaf(app core.App, turfID, date string, mutate func(models.DaySlots)) error {
	record, err := app.FindFirstRecordByFilter(
		"slot_status",
		"turf_id = {:turfId} && date = {:date}",
		dbx.Params{"turfId": turfID, "date": date},
	)
	if errors.Is(err, sql.ErrNoRows) {
		collection, cerr := app.FindCollectionByNameOrId("slot_status")
		if cerr != nil {
			return fmt.Errorf("slot_status collection: %w", cerr)
		}
		record = core.NewRecord(collection)
		record.Set("turf_id", turfID)
		record.Set("date", date)
	} else if err != nil {
		return fmt.Errorf("fetch slot status: %w", err)
	}

	day := models.DaySlots{}
	if err := record.UnmarshalJSONField("slots", &day); err != nil {
		day = models.DaySlots{}
	}

	mutate(day)

	record.Set("slots", day)
	if err := app.Save(record); err != nil {
		return fmt.Errorf("save slot status: %w", err)
	}
	return nil
}

// ReadDay returns the full status index for one (turf, date) for
// availability-list rendering. An absent document reads as an empty day.
func (s *BookingService) ReadDay(ctx context.Context, turfID, date string) (models.DaySlots, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"slot_status",
		"turf_id = {:turfId} && date = {:date}",
		dbx.Params{"turfId": turfID, "date": date},
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DaySlots{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch slot status: %w", err)
	}

	day := models.DaySlots{}
	if err := record.UnmarshalJSONField("slots", &day); err != nil {
		return nil, fmt.Errorf("decode slot status: %w", err)
	}
	return day, nil
}

// CancellationNotice resolves the refund-policy window for a turf: the turf's
// own cancellation_hours when set, otherwise the configured default.
func (s *BookingService) CancellationNotice(turfID string) time.Duration {
	record, err := s.app.FindRecordById("turfs", turfID)
	if err != nil {
		return s.Config.DefaultCancellationNotice
	}

	hours := record.GetFloat("cancellation_hours")
	if hours <= 0 {
		return s.Config.DefaultCancellationNotice
	}
	return time.Duration(hours * float64(time.Hour))
}

func bookingFromRecord(record *core.Record) *models.Booking {
	amount, err := decimal.NewFromString(record.GetString("amount"))
	if err != nil {
		amount = decimal.Zero
	}
	return &models.Booking{
		BookingID:     record.Id,
		OrderID:       record.GetString("order_id"),
		UserID:        record.GetString("user_id"),
		VendorID:      record.GetString("vendor_id"),
		TurfID:        record.GetString("turf_id"),
		Sport:         record.GetString("sport"),
		Date:          record.GetString("date"),
		TimeSlot:      record.GetString("time_slot"),
		Amount:        amount,
		PaymentStatus: record.GetString("payment_status"),
		BookingStatus: record.GetString("booking_status"),
		CreatedAt:     record.GetDateTime("created").Time(),
	}
}
