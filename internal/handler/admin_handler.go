package handler

import (
	"github.com/labstack/echo/v4"

	"lessonscope/internal/service"
)

// AdminHandler exposes system-wide figures to administrators.
type AdminHandler struct {
	service service.AdminService
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(s service.AdminService) *AdminHandler {
	return &AdminHandler{service: s}
}

// Stats godoc
// @Summary System statistics
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} handler.Response{data=service.SystemStats}
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /admin/stats [get]
func (h *AdminHandler) Stats(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	stats, err := h.service.Stats(c.Request().Context(), user)
	if err != nil {
		return err
	}
	return ok(c, stats)
}
