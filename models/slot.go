package models

import (
	"fmt"
	"strings"
	"time"

	"turf-booking/internal/status"
)

// SlotKey is the normalized identity of one bookable time unit. Every
// lock/booking comparison in the system goes through this type so raw and
// normalized forms never mix.
type SlotKey struct {
	VendorID string `json:"vendor_id"`
	TurfID   string `json:"turf_id"`
	Sport    string `json:"sport"`
	Date     string `json:"date"`      // calendar day, "2006-01-02", no timezone conversion
	TimeSlot string `json:"time_slot"` // e.g. "06:00-07:00"
}

// NewSlotKey normalizes and validates the five identity fields.
// Sport is lower-cased and trimmed, the time slot trimmed. Empty or
// whitespace-only fields are rejected here, never silently normalized away.
func NewSlotKey(vendorID, turfID, sport, date, timeSlot string) (SlotKey, error) {
	key := SlotKey{
		VendorID: strings.TrimSpace(vendorID),
		TurfID:   strings.TrimSpace(turfID),
		Sport:    strings.ToLower(strings.TrimSpace(sport)),
		Date:     strings.TrimSpace(date),
		TimeSlot: strings.TrimSpace(timeSlot),
	}

	if key.VendorID == "" || key.TurfID == "" || key.Sport == "" || key.Date == "" || key.TimeSlot == "" {
		return SlotKey{}, fmt.Errorf("%w: missing required slot fields", status.ErrInvalidInput)
	}

	if _, err := time.Parse("2006-01-02", key.Date); err != nil {
		return SlotKey{}, fmt.Errorf("%w: invalid date %q", status.ErrInvalidInput, key.Date)
	}

	return key, nil
}

// Key returns the canonical string identity used for Redis keys and the
// per-slot advisory mutex.
func (k SlotKey) Key() string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", k.VendorID, k.TurfID, k.Sport, k.Date, k.TimeSlot)
}

func (k SlotKey) Equal(other SlotKey) bool {
	return k == other
}

// StartTime resolves the slot's starting instant from its date and the first
// half of the time range. Used by the cancellation refund policy.
func (k SlotKey) StartTime() (time.Time, error) {
	start, _, ok := strings.Cut(k.TimeSlot, "-")
	if !ok {
		return time.Time{}, fmt.Errorf("%w: malformed time slot %q", status.ErrInvalidInput, k.TimeSlot)
	}

	t, err := time.ParseInLocation("2006-01-02 15:04", k.Date+" "+strings.TrimSpace(start), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: malformed time slot %q", status.ErrInvalidInput, k.TimeSlot)
	}

	return t, nil
}
