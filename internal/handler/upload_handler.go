package handler

import (
	"fmt"

	"github.com/labstack/echo/v4"

	apperr "lessonscope/internal/errors"
	"lessonscope/internal/storage"
)

// UploadHandler stores audio files.
type UploadHandler struct {
	storage storage.Storage
	policy  storage.UploadPolicy
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(st storage.Storage, policy storage.UploadPolicy) *UploadHandler {
	return &UploadHandler{storage: st, policy: policy}
}

// Upload godoc
// @Summary Upload an audio file
// @Description Accepts wav, mp3, m4a and mp4 audio up to 100MB.
// @Tags upload
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Audio file"
// @Success 200 {object} handler.Response{data=storage.Object}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /upload [post]
func (h *UploadHandler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fmt.Errorf("%w: no file uploaded", apperr.ErrValidation)
	}

	contentType, err := h.policy.Check(fh.Size, fh.Header.Get(echo.HeaderContentType))
	if err != nil {
		return err
	}

	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("%w: unreadable upload", apperr.ErrValidation)
	}
	defer src.Close()

	obj, err := h.storage.Store(c.Request().Context(), src, fh.Size, fh.Filename, contentType)
	if err != nil {
		return err
	}
	return ok(c, obj)
}
