package middleware

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"lessonscope/internal/logging"
)

// RequestLogger attaches a request-scoped logger, logs every completed
// request and turns panics into errors for the echo error handler.
func RequestLogger(base *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			start := time.Now()
			req := c.Request()

			// Reuse the id set by echo's RequestID middleware when it runs first.
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = req.Header.Get(echo.HeaderXRequestID)
			}
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			reqLogger := base.With(
				slog.String("request_id", requestID),
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.String("remote_addr", c.RealIP()),
			)
			c.SetRequest(req.WithContext(logging.WithLogger(req.Context(), reqLogger)))

			defer func() {
				if rec := recover(); rec != nil {
					reqLogger.Error("panic recovered", "panic", rec)
					err = fmt.Errorf("panic: %v", rec)
				}
				if err != nil {
					c.Error(err)
					err = nil
				}
				reqLogger.Info("request completed",
					slog.Int("status", c.Response().Status),
					slog.Duration("duration", time.Since(start)),
				)
			}()

			return next(c)
		}
	}
}
