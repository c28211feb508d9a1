package handler

import (
	"github.com/labstack/echo/v4"

	"lessonscope/internal/logging"
	"lessonscope/internal/middleware"
	"lessonscope/internal/service"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService service.AuthService
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authService service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// WechatLoginRequest carries the one-time code from wx.login.
type WechatLoginRequest struct {
	Code string `json:"code" validate:"required"`
}

// WechatLogin godoc
// @Summary Log in with a mini-program code
// @Description Exchanges the wx.login code for an openid, creates the user on first login and opens a 7 day session. The first user ever created becomes admin.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body WechatLoginRequest true "Login code"
// @Success 200 {object} handler.Response{data=service.LoginResult}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 429 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Failure 502 {object} errors.ErrorResponse
// @Router /auth/wechat-login [post]
func (h *AuthHandler) WechatLogin(c echo.Context) error {
	var req WechatLoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := h.authService.WechatLogin(c.Request().Context(), req.Code)
	if err != nil {
		return err
	}
	return ok(c, result)
}

// Logout godoc
// @Summary Log out
// @Description Deletes the session behind the bearer token. Always succeeds.
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} handler.Response
// @Failure 401 {object} errors.ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	if _, err := h.authService.Logout(ctx, middleware.Token(c)); err != nil {
		logging.FromContext(ctx).Warn("logout failed", "error", err)
	}
	return message(c, "logged out")
}
