package models

import "time"

// Slot status values reported to clients by the batch status query.
const (
	SlotBooked    = "booked"
	SlotLocked    = "locked"   // locked by another user
	SlotSelected  = "selected" // locked by the caller
	SlotAvailable = "available"
)

// SlotStatus is one entry of the batch status projection. ExpiresIn is only
// populated for locked/selected slots so the client can render a countdown.
type SlotStatus struct {
	TimeSlot  string    `json:"time_slot"`
	Status    string    `json:"status"`
	LockID    string    `json:"lock_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	ExpiresIn int64     `json:"expires_in,omitempty"` // seconds
}

// SlotCell is one leaf of the per-turf-per-date status index.
type SlotCell struct {
	Booked    bool   `json:"booked"`
	BookingID string `json:"bookingId,omitempty"`
	UserID    string `json:"userId,omitempty"`
}

// DaySlots is the denormalized slot-status document for one (turf, date):
// sport -> time slot -> cell. It mirrors confirmed bookings and is only ever
// written through the confirm/cancel transitions.
type DaySlots map[string]map[string]SlotCell

// SetBooked merge-writes a single leaf, leaving sibling sports and slots
// untouched.
func (d DaySlots) SetBooked(sport, timeSlot, bookingID, userID string) {
	if d[sport] == nil {
		d[sport] = make(map[string]SlotCell)
	}
	d[sport][timeSlot] = SlotCell{Booked: true, BookingID: bookingID, UserID: userID}
}

// SetAvailable clears a single leaf with the same merge discipline.
func (d DaySlots) SetAvailable(sport, timeSlot string) {
	if d[sport] == nil {
		d[sport] = make(map[string]SlotCell)
	}
	d[sport][timeSlot] = SlotCell{Booked: false}
}

// IsBooked reports whether a leaf exists and is marked booked.
func (d DaySlots) IsBooked(sport, timeSlot string) bool {
	slots, ok := d[sport]
	if !ok {
		return false
	}
	return slots[timeSlot].Booked
}
