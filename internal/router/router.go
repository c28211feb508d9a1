package router

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"

	"lessonscope/internal/auth"
	apperr "lessonscope/internal/errors"
	"lessonscope/internal/handler"
	"lessonscope/internal/logging"
	"lessonscope/internal/middleware"
)

// Handlers groups every HTTP handler the router mounts.
type Handlers struct {
	Auth      *handler.AuthHandler
	User      *handler.UserHandler
	Upload    *handler.UploadHandler
	Recording *handler.RecordingHandler
	Report    *handler.ReportHandler
	Admin     *handler.AdminHandler
	Health    *handler.HealthHandler
}

// Options carries the cross-cutting dependencies of the route table.
type Options struct {
	Logger            *slog.Logger
	JWTSecret         []byte
	Sessions          middleware.SessionValidator
	Users             middleware.UserLoader
	LoginLimiter      middleware.RateLimiter
	TranscribeLimiter middleware.RateLimiter
	MaxUploadBytes    int64
	Gatherer          prometheus.Gatherer
	// ExposeErrors appends the underlying error to 5xx messages. Never set in production.
	ExposeErrors bool
}

// Register wires routes and middleware.
func Register(e *echo.Echo, h Handlers, opts Options) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e.HideBanner = true
	e.HTTPErrorHandler = NewHTTPErrorHandler(logger, opts.ExposeErrors)
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.Secure())
	e.Use(echomw.CORS())
	e.Use(echomw.Gzip())

	e.GET("/health", h.Health.Health)
	e.GET("/swagger/*", echoSwagger.WrapHandler)
	if opts.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api")

	// Public routes
	api.POST("/auth/wechat-login", h.Auth.WechatLogin,
		middleware.RateLimit("login", opts.LoginLimiter, middleware.KeyByIP))

	// Secured routes: a valid signature first, then a live server-side session.
	secured := api.Group("",
		echojwt.WithConfig(echojwt.Config{
			SigningKey: opts.JWTSecret,
			NewClaimsFunc: func(echo.Context) jwt.Claims {
				return new(auth.Claims)
			},
			ErrorHandler: func(_ echo.Context, err error) error {
				return fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
			},
		}),
		middleware.Session(opts.Sessions, opts.Users),
	)

	secured.POST("/auth/logout", h.Auth.Logout)

	secured.GET("/users/me", h.User.Me)
	secured.PUT("/users/me", h.User.UpdateMe)

	uploadLimit := opts.MaxUploadBytes
	if uploadLimit <= 0 {
		uploadLimit = 100 << 20
	}
	// Leave room for the multipart envelope around the file itself.
	secured.POST("/upload", h.Upload.Upload, echomw.BodyLimit(strconv.FormatInt(uploadLimit+(1<<20), 10)))

	recordings := secured.Group("/recordings")
	recordings.GET("", h.Recording.List)
	recordings.POST("", h.Recording.Create)
	recordings.POST("/batch-delete", h.Recording.BatchDelete)
	recordings.GET("/:id", h.Recording.Get)
	recordings.PUT("/:id", h.Recording.Update)
	recordings.DELETE("/:id", h.Recording.Delete)
	recordings.POST("/:id/transcribe", h.Recording.Transcribe,
		middleware.RateLimit("transcribe", opts.TranscribeLimiter, middleware.KeyByActor))

	reports := secured.Group("/reports")
	reports.GET("", h.Report.List)
	reports.GET("/recording/:recordingId", h.Report.GetByRecording)
	reports.GET("/:id", h.Report.Get)
	reports.DELETE("/:id", h.Report.Delete)

	secured.GET("/admin/stats", h.Admin.Stats)
}

// NewHTTPErrorHandler renders every error in the failure envelope. Domain
// errors go through apperr.MapErrorToHTTP; server errors are logged.
func NewHTTPErrorHandler(logger *slog.Logger, expose bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		httpErr := toHTTPError(err)
		if httpErr.StatusCode >= http.StatusInternalServerError {
			logging.FromContext(c.Request().Context()).Error("request failed", "status", httpErr.StatusCode, "error", err)
			if expose {
				detailed := *httpErr
				detailed.Message = httpErr.Message + ": " + err.Error()
				httpErr = &detailed
			}
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(httpErr.StatusCode)
		} else {
			writeErr = c.JSON(httpErr.StatusCode, httpErr.ToErrorResponse())
		}
		if writeErr != nil {
			logger.Warn("write error response", "error", writeErr)
		}
	}
}

func toHTTPError(err error) *apperr.HTTPError {
	var appErr *apperr.HTTPError
	if errors.As(err, &appErr) {
		return appErr
	}

	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		if echoErr.Internal != nil && echoErr.Code >= http.StatusInternalServerError {
			return apperr.MapErrorToHTTP(echoErr.Internal)
		}
		msg, ok := echoErr.Message.(string)
		if !ok {
			msg = http.StatusText(echoErr.Code)
		}
		return apperr.NewHTTPError(echoErr.Code, msg, statusCode(echoErr.Code))
	}

	return apperr.MapErrorToHTTP(err)
}

func statusCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	}
	if status >= http.StatusInternalServerError {
		return "INTERNAL_ERROR"
	}
	return "HTTP_ERROR"
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
