package handlers

import (
	"errors"
	"net/http"

	"turf-booking/internal/status"

	"github.com/pocketbase/pocketbase/apis"
)

// apiError maps service errors to HTTP responses. Lock conflicts surface as
// 409 with the remaining hold time so clients can count down.
func apiError(err error) error {
	var conflict *status.LockConflictError
	switch {
	case errors.As(err, &conflict):
		return apis.NewApiError(http.StatusConflict, "Slot is currently locked by another user", map[string]any{
			"expiresIn": conflict.RemainingSeconds(),
			"expiresAt": conflict.ExpiresAt,
		})
	case errors.Is(err, status.ErrSlotBooked):
		return apis.NewApiError(http.StatusConflict, "Slot is already booked", nil)
	case errors.Is(err, status.ErrCancelled):
		return apis.NewApiError(http.StatusConflict, "Booking is already cancelled", nil)
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError("Not found", nil)
	case errors.Is(err, status.ErrForbidden):
		return apis.NewForbiddenError("Forbidden", nil)
	case errors.Is(err, status.ErrInvalidInput):
		return apis.NewBadRequestError("Invalid request", err)
	case errors.Is(err, status.ErrTimeout):
		return apis.NewApiError(http.StatusServiceUnavailable, "Store temporarily unavailable", nil)
	default:
		return apis.NewInternalServerError("Something went wrong", err)
	}
}
