package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Success   bool    `json:"success"`
	Message   string  `json:"message"`
	Timestamp string  `json:"timestamp"`
	Uptime    float64 `json:"uptime"`
}

// HealthHandler reports liveness.
type HealthHandler struct {
	started time.Time
	now     func() time.Time
}

// NewHealthHandler creates a health handler whose uptime counts from started.
func NewHealthHandler(started time.Time) *HealthHandler {
	return &HealthHandler{started: started, now: time.Now}
}

// Health godoc
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} handler.HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c echo.Context) error {
	now := h.now()
	return c.JSON(http.StatusOK, HealthResponse{
		Success:   true,
		Message:   "OK",
		Timestamp: now.UTC().Format(time.RFC3339),
		Uptime:    now.Sub(h.started).Seconds(),
	})
}
