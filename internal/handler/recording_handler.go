package handler

import (
	"github.com/labstack/echo/v4"

	"lessonscope/internal/service"
)

// RecordingHandler exposes recording CRUD and the analysis trigger.
type RecordingHandler struct {
	service service.RecordingService
}

// NewRecordingHandler creates a new recording handler.
func NewRecordingHandler(s service.RecordingService) *RecordingHandler {
	return &RecordingHandler{service: s}
}

// CreateRecordingRequest registers an uploaded file as a recording.
type CreateRecordingRequest struct {
	Title    string `json:"title" validate:"required,max=200"`
	Duration int    `json:"duration" validate:"required,gt=0"`
	FileSize int64  `json:"file_size" validate:"required,gt=0"`
	FileURL  string `json:"file_url" validate:"required,max=500"`
}

// UpdateRecordingRequest renames a recording.
type UpdateRecordingRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

// BatchDeleteRequest lists the recordings to delete in one call.
type BatchDeleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=100,dive,required"`
}

// BatchDeleteResult reports how many recordings were removed.
type BatchDeleteResult struct {
	Deleted int64 `json:"deleted"`
}

// Create godoc
// @Summary Create a recording
// @Tags recordings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateRecordingRequest true "Recording"
// @Success 200 {object} handler.Response{data=model.Recording}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /recordings [post]
func (h *RecordingHandler) Create(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	var req CreateRecordingRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	rec, err := h.service.Create(c.Request().Context(), user, service.CreateRecordingInput{
		Title:    req.Title,
		Duration: req.Duration,
		FileSize: req.FileSize,
		FileURL:  req.FileURL,
	})
	if err != nil {
		return err
	}
	return ok(c, rec)
}

// List godoc
// @Summary List recordings
// @Description Newest first. Admins may pass all=true to list every user's recordings.
// @Tags recordings
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (default 20, max 100)"
// @Param offset query int false "Offset"
// @Param all query bool false "Admin only: list all users"
// @Success 200 {object} handler.Response{data=service.RecordingPage}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /recordings [get]
func (h *RecordingHandler) List(c echo.Context) error {
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
// @Summary Get a recording
// @Tags recordings
// @Produce json
// @Security BearerAuth
// @Param id path string true "Recording ID"
// @Success 200 {object} handler.Response{data=model.Recording}
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /recordings/{id} [get]
func (h *RecordingHandler) Get(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	rec, err := h.service.Get(c.Request().Context(), user, c.Param("id"))
	if err != nil {
		return err
	}
	return ok(c, rec)
}

// Update godoc
// @Summary Rename a recording
// @Tags recordings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Recording ID"
// @Param request body UpdateRecordingRequest true "New title"
// @Success 200 {object} handler.Response{data=model.Recording}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /recordings/{id} [put]
func (h *RecordingHandler) Update(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	var req UpdateRecordingRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	rec, err := h.service.UpdateTitle(c.Request().Context(), user, c.Param("id"), req.Title)
	if err != nil {
		return err
	}
	return ok(c, rec)
}

// Delete godoc
// @Summary Delete a recording
// @Description Removes the recording, its report and the stored audio.
// @Tags recordings
// @Produce json
// @Security BearerAuth
// @Param id path string true "Recording ID"
// @Success 200 {object} handler.Response
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /recordings/{id} [delete]
func (h *RecordingHandler) Delete(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.Request().Context(), user, c.Param("id")); err != nil {
		return err
	}
	return message(c, "recording deleted")
}

// BatchDelete godoc
// @Summary Delete several recordings
// @Description All or nothing: fails without deleting anything if any id is missing or not owned.
// @Tags recordings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BatchDeleteRequest true "Recording IDs"
// @Success 200 {object} handler.Response{data=BatchDeleteResult}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /recordings/batch-delete [post]
func (h *RecordingHandler) BatchDelete(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	var req BatchDeleteRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	deleted, err := h.service.DeleteMany(c.Request().Context(), user, req.IDs)
	if err != nil {
		return err
	}
	return ok(c, BatchDeleteResult{Deleted: deleted})
}

// Transcribe godoc
// @Summary Start transcription and analysis
// @Description Accepted only while the recording is uploaded. Processing continues in the background.
// @Tags recordings
// @Produce json
// @Security BearerAuth
// @Param id path string true "Recording ID"
// @Success 200 {object} handler.Response
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Failure 429 {object} errors.ErrorResponse
// @Failure 503 {object} errors.ErrorResponse
// @Router /recordings/{id}/transcribe [post]
func (h *RecordingHandler) Transcribe(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	if err := h.service.RequestTranscription(c.Request().Context(), user, c.Param("id")); err != nil {
		return err
	}
	return message(c, "transcription started")
}
