package status

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy for the reservation subsystem. Handlers map these to HTTP
// statuses; nothing in here retries automatically.
var (
	ErrInvalidInput = errors.New("slot: invalid input")
	ErrNotFound     = errors.New("slot: not found")
	ErrForbidden    = errors.New("slot: forbidden")
	ErrSlotBooked   = errors.New("slot: already booked")
	ErrCancelled    = errors.New("booking: already cancelled")
	ErrTimeout      = errors.New("store: operation timed out")
)

// LockConflictError is returned when a slot is actively locked by another
// user. Remaining tells the caller how long until the lock lapses.
type LockConflictError struct {
	ExpiresAt time.Time
	Remaining time.Duration
}

func (e *LockConflictError) Error() string {
	return fmt.Sprintf("slot: locked by another user for %ds", e.RemainingSeconds())
}

func (e *LockConflictError) RemainingSeconds() int64 {
	secs := int64(e.Remaining.Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// IsConflict reports whether err represents a booked or locked slot.
func IsConflict(err error) bool {
	var lc *LockConflictError
	return errors.Is(err, ErrSlotBooked) || errors.Is(err, ErrCancelled) || errors.As(err, &lc)
}
