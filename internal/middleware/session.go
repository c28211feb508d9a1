package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"lessonscope/internal/auth"
	apperr "lessonscope/internal/errors"
	"lessonscope/internal/model"
)

const (
	actorKey = "actor"
	tokenKey = "token"
)

// SessionValidator is the slice of the auth service the middleware needs.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*auth.Claims, error)
}

// UserLoader loads the acting user.
type UserLoader interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// Session requires a live server-side session for the bearer token and
// stores the acting user on the context. It runs after the JWT middleware.
func Session(sessions SessionValidator, users UserLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := BearerToken(c)
			if token == "" {
				return fmt.Errorf("%w: missing bearer token", apperr.ErrUnauthorized)
			}

			ctx := c.Request().Context()
			claims, err := sessions.ValidateSession(ctx, token)
			if err != nil {
				return err
			}

			user, err := users.GetUser(ctx, claims.UserID)
			if errors.Is(err, apperr.ErrNotFound) {
				return fmt.Errorf("%w: user no longer exists", apperr.ErrUnauthorized)
			}
			if err != nil {
				return err
			}

			c.Set(actorKey, user)
			c.Set(tokenKey, token)
			return next(c)
		}
	}
}

// BearerToken returns the token from the Authorization header.
func BearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Actor returns the user stored by Session, or nil.
func Actor(c echo.Context) *model.User {
	user, _ := c.Get(actorKey).(*model.User)
	return user
}

// Token returns the raw bearer token stored by Session.
func Token(c echo.Context) string {
	token, _ := c.Get(tokenKey).(string)
	return token
}
