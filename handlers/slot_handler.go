package handlers

import (
	"net/http"
	"time"

	"turf-booking/config"
	"turf-booking/models"
	"turf-booking/services"
	"turf-booking/utils"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type SlotHandler struct {
	locks  *services.LockService
	config *config.Config
}

func NewSlotHandler(locks *services.LockService, cfg *config.Config) *SlotHandler {
	return &SlotHandler{locks: locks, config: cfg}
}

type slotRequest struct {
	VendorID string `json:"vendorId"`
	TurfID   string `json:"turfId"`
	Sport    string `json:"sport"`
	Date     string `json:"date"`
	TimeSlot string `json:"timeSlot"`
}

// Lock - acquire or extend a slot lock for the authenticated user
func (h *SlotHandler) Lock(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req slotRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	key, err := models.NewSlotKey(req.VendorID, req.TurfID, req.Sport, req.Date, req.TimeSlot)
	if err != nil {
		return apiError(err)
	}

	result, err := h.locks.TryLock(e.Request.Context(), key, e.Auth.Id)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"lockId":    result.LockID,
		"expiresAt": result.ExpiresAt,
		"expiresIn": int64(time.Until(result.ExpiresAt).Seconds()),
		"extended":  result.Extended,
	})
}

// Unlock - release a lock the caller owns
func (h *SlotHandler) Unlock(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	lockID := e.Request.PathValue("lockId")
	if lockID == "" {
		return apis.NewBadRequestError("Missing lock id", nil)
	}

	if err := h.locks.Release(e.Request.Context(), lockID, e.Auth.Id); err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"success": true})
}

// Status - batch availability projection for a set of time slots.
// Works unauthenticated; with auth the caller's own locks show as selected.
func (h *SlotHandler) Status(e *core.RequestEvent) error {
	var req struct {
		VendorID  string   `json:"vendorId"`
		TurfID    string   `json:"turfId"`
		Sport     string   `json:"sport"`
		Date      string   `json:"date"`
		TimeSlots []string `json:"timeSlots"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if len(req.TimeSlots) == 0 {
		return apis.NewBadRequestError("timeSlots is required", nil)
	}

	callerID := ""
	if e.Auth != nil {
		callerID = e.Auth.Id
	}

	statuses, err := h.locks.QuerySlotStatuses(e.Request.Context(),
		req.VendorID, req.TurfID, req.Sport, req.Date, req.TimeSlots, callerID)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"date":  req.Date,
		"slots": statuses,
	})
}

// MyLocks - list the caller's active locks
func (h *SlotHandler) MyLocks(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	locks, err := h.locks.ActiveLocksForOwner(e.Request.Context(), e.Auth.Id)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"locks": locks,
		"count": len(locks),
	})
}

// ReleaseAll - drop every active lock the caller holds
func (h *SlotHandler) ReleaseAll(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	released, err := h.locks.ReleaseAllForOwner(e.Request.Context(), e.Auth.Id)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"released": released,
	})
}

// Cleanup - force an expiry sweep. Restricted to superusers or callers
// presenting the ops token; the cron schedule makes this rarely necessary.
func (h *SlotHandler) Cleanup(e *core.RequestEvent) error {
	if !h.allowOps(e) {
		return apis.NewForbiddenError("Forbidden", nil)
	}

	removed, err := h.locks.SweepExpired(e.Request.Context())
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"success": true,
		"removed": removed,
	})
}

func (h *SlotHandler) allowOps(e *core.RequestEvent) bool {
	if e.HasSuperuserAuth() {
		return true
	}
	token := e.Request.Header.Get("X-Ops-Token")
	return token != "" && h.config.CleanupTokenHash != "" &&
		utils.CompareHash(h.config.CleanupTokenHash, token)
}
