package handler

import (
	"github.com/labstack/echo/v4"

	"lessonscope/internal/model"
	"lessonscope/internal/service"
)

// UserHandler exposes the current user's profile.
type UserHandler struct {
	service service.UserService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(s service.UserService) *UserHandler {
	return &UserHandler{service: s}
}

// UpdateMeRequest holds the profile fields a user may change. Omitted fields stay as they are.
type UpdateMeRequest struct {
	Nickname  *string `json:"nickname" validate:"omitempty,max=100"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,url,max=500"`
	Phone     *string `json:"phone" validate:"omitempty,max=20"`
	Email     *string `json:"email" validate:"omitempty,email,max=100"`
}

// Me godoc
// @Summary Current user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} handler.Response{data=service.Profile}
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /users/me [get]
func (h *UserHandler) Me(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	profile, err := h.service.Me(c.Request().Context(), user)
	if err != nil {
		return err
	}
	return ok(c, profile)
}

// UpdateMe godoc
// @Summary Update current user
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdateMeRequest true "Profile fields"
// @Success 200 {object} handler.Response{data=model.User}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /users/me [put]
func (h *UserHandler) UpdateMe(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	var req UpdateMeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	updated, err := h.service.UpdateMe(c.Request().Context(), user, model.ProfileUpdate{
		Nickname:  req.Nickname,
		AvatarURL: req.AvatarURL,
		Phone:     req.Phone,
		Email:     req.Email,
	})
	if err != nil {
		return err
	}
	return ok(c, updated)
}
