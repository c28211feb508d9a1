package handler

import (
	"github.com/labstack/echo/v4"

	"lessonscope/internal/service"
)

// ReportHandler exposes analysis reports.
type ReportHandler struct {
	service service.ReportService
}

// NewReportHandler creates a new report handler.
func NewReportHandler(s service.ReportService) *ReportHandler {
	return &ReportHandler{service: s}
}

// List godoc
// @Summary List reports
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (default 20, max 100)"
// @Param offset query int false "Offset"
// @Param all query bool false "Admin only: list all users"
// @Success 200 {object} handler.Response{data=service.ReportPage}
// @Failure 401 {object} errors.ErrorResponse
// @Router /reports [get]
func (h *ReportHandler) List(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	q, err := parsePage(c)
	if err != nil {
		return err
	}

	page, err := h.service.List(c.Request().Context(), user, q.Limit, q.Offset, q.All)
	if err != nil {
		return err
	}
	return ok(c, page)
}

// Get godoc
// @Summary Get a report
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report ID"
// @Success 200 {object} handler.Response{data=model.Report}
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /reports/{id} [get]
func (h *ReportHandler) Get(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	report, err := h.service.Get(c.Request().Context(), user, c.Param("id"))
	if err != nil {
		return err
	}
	return ok(c, report)
}

// GetByRecording godoc
// @Summary Get the report of a recording
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Param recordingId path string true "Recording ID"
// @Success 200 {object} handler.Response{data=model.Report}
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /reports/recording/{recordingId} [get]
func (h *ReportHandler) GetByRecording(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	report, err := h.service.GetByRecording(c.Request().Context(), user, c.Param("recordingId"))
	if err != nil {
		return err
	}
	return ok(c, report)
}

// Delete godoc
// @Summary Delete a report
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report ID"
// @Success 200 {object} handler.Response
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /reports/{id} [delete]
func (h *ReportHandler) Delete(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.Request().Context(), user, c.Param("id")); err != nil {
		return err
	}
	return message(c, "report deleted")
}
