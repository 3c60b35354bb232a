package handlers

import (
	"net/http"

	"turf-booking/services"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type BookingHandler struct {
	bookings     *services.BookingService
	reservations *services.ReservationService
	payments     *services.PaymentService
}

func NewBookingHandler(bookings *services.BookingService, reservations *services.ReservationService, payments *services.PaymentService) *BookingHandler {
	return &BookingHandler{
		bookings:     bookings,
		reservations: reservations,
		payments:     payments,
	}
}

// CreateOrder - open a payment order against a lock the caller holds
func (h *BookingHandler) CreateOrder(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		LockID string `json:"lockId"`
		Amount string `json:"amount"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.LockID == "" {
		return apis.NewBadRequestError("lockId is required", nil)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsNegative() {
		return apis.NewBadRequestError("Invalid amount", err)
	}

	order, err := h.payments.CreateOrder(e.Request.Context(), e.Auth.Id, req.LockID, amount)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"orderId":   order.OrderID,
		"amount":    order.Amount,
		"expiresAt": order.ExpiresAt,
	})
}

// Confirm - convert an active lock into a confirmed booking. Used by clients
// that complete payment out of band; the webhook path confirms through the
// same reservation transition.
func (h *BookingHandler) Confirm(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	lockID := e.Request.PathValue("lockId")
	if lockID == "" {
		return apis.NewBadRequestError("Missing lock id", nil)
	}

	var req struct {
		OrderID string `json:"orderId"`
		Amount  string `json:"amount"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsNegative() {
		return apis.NewBadRequestError("Invalid amount", err)
	}

	booking, err := h.reservations.ConfirmSlot(e.Request.Context(), lockID, e.Auth.Id,
		services.PaymentResult{OrderID: req.OrderID, Amount: amount})
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"bookingId": booking.BookingID,
		"booking":   booking,
	})
}

// MyBookings - the caller's booking history, newest first
func (h *BookingHandler) MyBookings(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	bookings, err := h.bookings.BookingsByUser(e.Request.Context(), e.Auth.Id)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"bookings": bookings,
		"count":    len(bookings),
	})
}

// Cancel - cancel a confirmed booking the caller owns
func (h *BookingHandler) Cancel(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		BookingID string `json:"bookingId"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.BookingID == "" {
		return apis.NewBadRequestError("bookingId is required", nil)
	}

	result, err := h.reservations.CancelBooking(e.Request.Context(), req.BookingID, e.Auth.Id)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"success":        true,
		"bookingId":      result.Booking.BookingID,
		"refundEligible": result.RefundEligible,
		"noticeHours":    result.Notice.Hours(),
	})
}

// TurfSlotStatus - the booked map for one turf and date, for calendar views
func (h *BookingHandler) TurfSlotStatus(e *core.RequestEvent) error {
	turfID := e.Request.PathValue("turfId")
	date := e.Request.URL.Query().Get("date")
	if turfID == "" || date == "" {
		return apis.NewBadRequestError("turfId and date are required", nil)
	}

	day, err := h.bookings.ReadDay(e.Request.Context(), turfID, date)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"turfId": turfID,
		"date":   date,
		"slots":  day,
	})
}
