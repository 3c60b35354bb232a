package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"

	PaymentStatusConfirmed = "confirmed"
)

// Booking is the permanent record of a paid reservation. Cancellation flips
// the status; bookings are never deleted.
type Booking struct {
	BookingID     string          `json:"booking_id"`
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	VendorID      string          `json:"vendor_id"`
	TurfID        string          `json:"turf_id"`
	Sport         string          `json:"sport"`
	Date          string          `json:"date"`
	TimeSlot      string          `json:"time_slot"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentStatus string          `json:"payment_status"`
	BookingStatus string          `json:"booking_status"` // confirmed, cancelled
	CreatedAt     time.Time       `json:"created_at"`
}

func (b *Booking) SlotKey() SlotKey {
	return SlotKey{
		VendorID: b.VendorID,
		TurfID:   b.TurfID,
		Sport:    b.Sport,
		Date:     b.Date,
		TimeSlot: b.TimeSlot,
	}
}
