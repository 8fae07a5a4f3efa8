// handlers_health.go - Health check handlers
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	manager UploadManager
	started time.Time
}

// NewHealthHandler creates a new health handler. manager may be nil when the
// server only receives uploads.
func NewHealthHandler(version string, manager UploadManager) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		manager: manager,
		started: time.Now(),
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":        "ok",
		"version":       h.version,
		"uptimeSeconds": int64(time.Since(h.started).Seconds()),
	}
	if h.manager != nil {
		resp["uploadsInFlight"] = h.manager.Snapshot().InFlight
	}
	return c.JSON(http.StatusOK, resp)
}
