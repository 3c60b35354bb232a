package handlers

import (
	"io"
	"net/http"

	"turf-booking/services"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type PaymentHandler struct {
	payments *services.PaymentService
}

func NewPaymentHandler(payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Webhook - payment provider callback. Authenticated by HMAC signature over
// the raw body, not by user session.
func (h *PaymentHandler) Webhook(e *core.RequestEvent) error {
	body, err := io.ReadAll(io.LimitReader(e.Request.Body, 1<<20))
	if err != nil {
		return apis.NewBadRequestError("Unreadable body", err)
	}

	signature := e.Request.Header.Get("X-Signature")
	if signature == "" {
		return apis.NewForbiddenError("Missing signature", nil)
	}

	if err := h.payments.HandleWebhook(e.Request.Context(), body, signature); err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"received": true})
}

// Simulate - publish a fake success notification. Disabled in production.
func (h *PaymentHandler) Simulate(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		OrderID string `json:"orderId"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.OrderID == "" {
		return apis.NewBadRequestError("orderId is required", nil)
	}

	if err := h.payments.SimulatePayment(req.OrderID); err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"simulated": true})
}
