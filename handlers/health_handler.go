package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

type cachePinger interface {
	Ping(ctx context.Context) error
}

type runningReporter interface {
	IsRunning() bool
}

// HealthHandler handles health checks.
type HealthHandler struct {
	db           pinger
	cache        cachePinger
	dispatcher   runningReporter
	checkTimeout time.Duration
}

// NewHealthHandler accepts a nil cache when valkey is disabled.
func NewHealthHandler(db pinger, cache cachePinger, d runningReporter) *HealthHandler {
	return &HealthHandler{
		db:           db,
		cache:        cache,
		dispatcher:   d,
		checkTimeout: 2 * time.Second,
	}
}

// Health returns overall status and component statuses (DB, cache, dispatcher).
// @Summary Health check
// @Description Returns overall status with DB and cache connectivity and dispatcher state
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} map[string]any
// @Router /health [get]
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.checkTimeout)
	defer cancel()

	overallStatus := "ok"

	dbStatus := "up"
	if h.db == nil {
		dbStatus = "down"
		overallStatus = "down"
	} else if err := h.db.PingContext(ctx); err != nil {
		dbStatus = "down"
		overallStatus = "down"
	}

	cacheStatus := "disabled"
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			cacheStatus = "down"
			if overallStatus == "ok" {
				overallStatus = "degraded"
			}
		} else {
			cacheStatus = "up"
		}
	}

	dispatcherStatus := "stopped"
	if h.dispatcher != nil && h.dispatcher.IsRunning() {
		dispatcherStatus = "running"
	} else if overallStatus == "ok" {
		overallStatus = "degraded"
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().Format(time.RFC3339),
		"components": map[string]any{
			"database": map[string]any{
				"status": dbStatus,
			},
			"cache": map[string]any{
				"status": cacheStatus,
			},
			"dispatcher": map[string]any{
				"status": dispatcherStatus,
			},
		},
	})
}
