package services

import (
	"context"
	"log"
	"time"

	"turf-booking/config"
	"turf-booking/internal/status"
	"turf-booking/models"
	"turf-booking/monitoring"

	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

// PaymentResult carries the verified payment details that drive a
// lock-to-booking confirmation.
type PaymentResult struct {
	OrderID string
	Amount  decimal.Decimal
}

// CancellationResult reports the outcome of a cancellation, including whether
// the turf's refund policy was satisfied.
type CancellationResult struct {
	Booking        *models.Booking
	RefundEligible bool
	Notice         time.Duration
}

// bookingStore is the slice of the booking store the reservation transitions
// drive.
type bookingStore interface {
	BookingChecker
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	CancellationNotice(turfID string) time.Duration
	insertBooking(app core.App, b *models.Booking) (string, error)
	markBooked(app core.App, key models.SlotKey, bookingID, userID string) error
	markCancelled(app core.App, bookingID string) error
	markAvailable(app core.App, key models.SlotKey) error
}

// ReservationService drives the slot state machine transitions that touch
// both stores: confirm (lock to booking plus index merge) and cancel (booking
// status flip plus index clear). Each transition holds the per-slot advisory
// mutex so no two transitions for the same slot interleave.
type ReservationService struct {
	app      core.App
	Config   *config.Config
	locks    *LockService
	bookings bookingStore
	notifier *NotificationService

	now func() time.Time
}

func NewReservationService(app core.App, cfg *config.Config, locks *LockService, bookings *BookingService, notifier *NotificationService) *ReservationService {
	return &ReservationService{
		app:      app,
		Config:   cfg,
		locks:    locks,
		bookings: bookings,
		notifier: notifier,
		now:      time.Now,
	}
}

// ConfirmSlot converts an active lock held by ownerID into a confirmed
// booking. The booking insert and the status index merge commit in one
// transaction; only after that commit is the lock itself marked confirmed, so
// a crash in between leaves a booking whose lock still expires harmlessly.
//
// A stale confirmation, whether from a retried payment webhook or a lock that
// lapsed before payment landed, is rejected here: the lock must still be
// active and the slot must not already carry a confirmed booking.
func (s *ReservationService) ConfirmSlot(ctx context.Context, lockID, ownerID string, payment PaymentResult) (*models.Booking, error) {
	lock, err := s.locks.LookupLock(ctx, lockID)
	if err != nil {
		monitoring.TrackBookingOperation("confirm", "lock_missing")
		return nil, err
	}
	if lock.UserID != ownerID {
		monitoring.TrackBookingOperation("confirm", "forbidden")
		return nil, status.ErrForbidden
	}
	if lock.Status == models.LockStatusConfirmed {
		monitoring.TrackBookingOperation("confirm", "duplicate")
		return nil, status.ErrSlotBooked
	}
	if !lock.Active(s.now()) {
		monitoring.TrackBookingOperation("confirm", "expired")
		return nil, status.ErrNotFound
	}

	key := lock.SlotKey()

	token, err := s.locks.acquireSlotMutex(ctx, key)
	if err != nil {
		return nil, err
	}
	defer s.locks.releaseSlotMutex(ctx, key, token)

	// Re-resolve under the mutex. The lock may have lapsed and been reclaimed
	// by another user between the checks above and the acquire; a reclaim
	// drops the old id mapping, so a lapsed lock surfaces here as not found.
	lock, err = s.locks.LookupLock(ctx, lockID)
	if err != nil {
		monitoring.TrackBookingOperation("confirm", "lock_missing")
		return nil, err
	}
	if lock.UserID != ownerID {
		monitoring.TrackBookingOperation("confirm", "forbidden")
		return nil, status.ErrForbidden
	}
	if lock.Status == models.LockStatusConfirmed {
		monitoring.TrackBookingOperation("confirm", "duplicate")
		return nil, status.ErrSlotBooked
	}
	if !lock.Active(s.now()) {
		monitoring.TrackBookingOperation("confirm", "expired")
		return nil, status.ErrNotFound
	}

	booked, err := s.bookings.HasConfirmedBooking(ctx, key)
	if err != nil {
		return nil, err
	}
	if booked {
		monitoring.TrackBookingOperation("confirm", "duplicate")
		return nil, status.ErrSlotBooked
	}

	booking := &models.Booking{
		OrderID:       payment.OrderID,
		UserID:        ownerID,
		VendorID:      key.VendorID,
		TurfID:        key.TurfID,
		Sport:         key.Sport,
		Date:          key.Date,
		TimeSlot:      key.TimeSlot,
		Amount:        payment.Amount,
		PaymentStatus: models.PaymentStatusConfirmed,
		BookingStatus: models.BookingStatusConfirmed,
	}

	err = s.app.RunInTransaction(func(txApp core.App) error {
		id, err := s.bookings.insertBooking(txApp, booking)
		if err != nil {
			return err
		}
		booking.BookingID = id
		return s.bookings.markBooked(txApp, key, id, ownerID)
	})
	if err != nil {
		monitoring.TrackBookingOperation("confirm", "error")
		return nil, err
	}

	// The booking is committed and authoritative from here on. A failure to
	// flip the lock only means the lock lingers until its TTL.
	if err := s.locks.ConfirmLock(ctx, lockID, ownerID); err != nil {
		log.Printf("confirm: booking %s saved but lock %s not flipped: %v", booking.BookingID, lockID, err)
	}

	monitoring.TrackBookingOperation("confirm", "success")
	monitoring.TrackLockHold(s.now().Sub(lock.LockedAt))

	go s.notifier.BookingConfirmed(booking)

	return booking, nil
}

// CancelBooking flips a confirmed booking to cancelled and frees its slot in
// the status index. Refund eligibility follows the turf's cancellation
// policy; the cancellation itself always proceeds.
func (s *ReservationService) CancelBooking(ctx context.Context, bookingID, callerID string) (*CancellationResult, error) {
	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != callerID {
		monitoring.TrackBookingOperation("cancel", "forbidden")
		return nil, status.ErrForbidden
	}
	if booking.BookingStatus == models.BookingStatusCancelled {
		monitoring.TrackBookingOperation("cancel", "duplicate")
		return nil, status.ErrCancelled
	}

	key := booking.SlotKey()
	notice := s.bookings.CancellationNotice(booking.TurfID)

	eligible := false
	if start, err := key.StartTime(); err == nil {
		eligible = refundEligible(start, s.now(), notice)
	} else {
		log.Printf("cancel: booking %s has unparseable slot time: %v", bookingID, err)
	}

	token, err := s.locks.acquireSlotMutex(ctx, key)
	if err != nil {
		return nil, err
	}
	defer s.locks.releaseSlotMutex(ctx, key, token)

	err = s.app.RunInTransaction(func(txApp core.App) error {
		if err := s.bookings.markCancelled(txApp, bookingID); err != nil {
			return err
		}
		return s.bookings.markAvailable(txApp, key)
	})
	if err != nil {
		monitoring.TrackBookingOperation("cancel", "error")
		return nil, err
	}

	booking.BookingStatus = models.BookingStatusCancelled
	monitoring.TrackBookingOperation("cancel", "success")

	go s.notifier.BookingCancelled(booking, eligible)

	return &CancellationResult{
		Booking:        booking,
		RefundEligible: eligible,
		Notice:         notice,
	}, nil
}

// refundEligible reports whether a cancellation made at now still satisfies
// the turf's notice window for a slot starting at start.
func refundEligible(start, now time.Time, notice time.Duration) bool {
	return start.Sub(now) >= notice
}
