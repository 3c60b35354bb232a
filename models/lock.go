package models

import (
	"strconv"
	"time"
)

const (
	LockStatusLocked    = "locked"
	LockStatusConfirmed = "confirmed"
)

// SlotLock is a short-lived, owner-scoped reservation of a SlotKey pending
// payment. Persisted as a Redis hash per slot.
type SlotLock struct {
	LockID      string    `json:"lock_id"`
	VendorID    string    `json:"vendor_id"`
	TurfID      string    `json:"turf_id"`
	Sport       string    `json:"sport"`
	Date        string    `json:"date"`
	TimeSlot    string    `json:"time_slot"`
	UserID      string    `json:"user_id"`
	LockedAt    time.Time `json:"locked_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	ConfirmedAt time.Time `json:"confirmed_at,omitempty"`
	Status      string    `json:"status"` // locked, confirmed
}

func (l *SlotLock) SlotKey() SlotKey {
	return SlotKey{
		VendorID: l.VendorID,
		TurfID:   l.TurfID,
		Sport:    l.Sport,
		Date:     l.Date,
		TimeSlot: l.TimeSlot,
	}
}

// Active reports whether the lock still blocks other users at the given
// instant. Readers must use this instead of trusting Status alone: a lock past
// its expiry is never blocking, even before the sweep physically removes it.
func (l *SlotLock) Active(now time.Time) bool {
	return l.Status == LockStatusLocked && l.ExpiresAt.After(now)
}

// Remaining returns how long the lock still holds, floored at zero.
func (l *SlotLock) Remaining(now time.Time) time.Duration {
	if !l.Active(now) {
		return 0
	}
	return l.ExpiresAt.Sub(now)
}

// LockFromHash rebuilds a SlotLock from its Redis hash representation.
// Timestamps are stored as unix seconds.
func LockFromHash(fields map[string]string) *SlotLock {
	lockedAt, _ := strconv.ParseInt(fields["locked_at"], 10, 64)
	expiresAt, _ := strconv.ParseInt(fields["expires_at"], 10, 64)
	confirmedAt, _ := strconv.ParseInt(fields["confirmed_at"], 10, 64)

	lock := &SlotLock{
		LockID:    fields["lock_id"],
		VendorID:  fields["vendor_id"],
		TurfID:    fields["turf_id"],
		Sport:     fields["sport"],
		Date:      fields["date"],
		TimeSlot:  fields["time_slot"],
		UserID:    fields["user_id"],
		LockedAt:  time.Unix(lockedAt, 0),
		ExpiresAt: time.Unix(expiresAt, 0),
		Status:    fields["status"],
	}
	if confirmedAt > 0 {
		lock.ConfirmedAt = time.Unix(confirmedAt, 0)
	}
	return lock
}
