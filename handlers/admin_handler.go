package handlers

import (
	"net/http"
	"strconv"

	"turf-booking/models"
	"turf-booking/services"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

type AdminHandler struct {
	app   core.App
	locks *services.LockService
	redis *redis.Client
}

func NewAdminHandler(app core.App, locks *services.LockService, redisClient *redis.Client) *AdminHandler {
	return &AdminHandler{
		app:   app,
		locks: locks,
		redis: redisClient,
	}
}

// LockDashboard - live view of every active lock plus recent booking volume
func (h *AdminHandler) LockDashboard(e *core.RequestEvent) error {
	if !e.HasSuperuserAuth() {
		return apis.NewForbiddenError("Superuser access required", nil)
	}

	ctx := e.Request.Context()

	keys, err := h.redis.Keys(ctx, "slotlock:active:*").Result()
	if err != nil {
		return apis.NewBadRequestError("Failed to scan locks", err)
	}

	activeLocks := []*models.SlotLock{}
	for _, key := range keys {
		fields, err := h.redis.HGetAll(ctx, key).Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		activeLocks = append(activeLocks, models.LockFromHash(fields))
	}

	rows := []dbx.NullStringMap{}
	err = h.app.DB().
		NewQuery("SELECT date, COUNT(*) AS total FROM bookings WHERE booking_status = 'confirmed' GROUP BY date ORDER BY date DESC LIMIT 14").
		All(&rows)
	if err != nil {
		return apis.NewBadRequestError("Failed to query bookings", err)
	}

	bookingsPerDay := []map[string]any{}
	for _, row := range rows {
		total, _ := strconv.Atoi(row["total"].String)
		bookingsPerDay = append(bookingsPerDay, map[string]any{
			"date":  row["date"].String,
			"total": total,
		})
	}

	return e.JSON(http.StatusOK, map[string]any{
		"activeLocks":    activeLocks,
		"activeCount":    len(activeLocks),
		"bookingsPerDay": bookingsPerDay,
	})
}

// ForceSweep - trigger an expiry sweep outside the cron schedule
func (h *AdminHandler) ForceSweep(e *core.RequestEvent) error {
	if !e.HasSuperuserAuth() {
		return apis.NewForbiddenError("Superuser access required", nil)
	}

	removed, err := h.locks.SweepExpired(e.Request.Context())
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"removed": removed,
	})
}
