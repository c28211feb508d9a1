package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	apperr "lessonscope/internal/errors"
	"lessonscope/internal/middleware"
	"lessonscope/internal/model"
)

// Response is the success envelope shared by every endpoint.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func message(c echo.Context, msg string) error {
	return c.JSON(http.StatusOK, Response{Success: true, Message: msg})
}

// bindAndValidate decodes the body into req and runs struct validation.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return fmt.Errorf("%w: invalid request body", apperr.ErrValidation)
	}
	if err := c.Validate(req); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return nil
}

type pageQuery struct {
	Limit  int
	Offset int
	All    bool
}

func parsePage(c echo.Context) (pageQuery, error) {
	var q pageQuery
	err := echo.QueryParamsBinder(c).
		Int("limit", &q.Limit).
		Int("offset", &q.Offset).
		Bool("all", &q.All).
		BindError()
	if err != nil {
		return q, fmt.Errorf("%w: limit, offset and all must be numbers or booleans", apperr.ErrValidation)
	}
	return q, nil
}

// actor returns the authenticated user. Routes using it sit behind the session middleware.
func actor(c echo.Context) (*model.User, error) {
	user := middleware.Actor(c)
	if user == nil {
		return nil, apperr.ErrUnauthorized
	}
	return user, nil
}
