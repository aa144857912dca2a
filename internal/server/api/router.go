package api

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"photocritique/internal/server/config"
)

// requestValidator adapts validator/v10 to echo.Validator.
type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i any) error {
	return rv.v.Struct(i)
}

// SetupRouter creates the echo router with all routes and middleware. The
// returned limiter must be stopped on shutdown.
func SetupRouter(handler *Handler, cfg *config.Config) (*echo.Echo, *RateLimiter) {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = errorHandler
	e.Validator = &requestValidator{v: validator.New()}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(echo.WrapMiddleware(otelhttp.NewMiddleware("photocritique")))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))
	e.Use(RequestLogger())

	// Heavy endpoints are rate limited per IP.
	limiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	e.GET("/health", handler.HandleHealth)
	if handler.svc.HasIndex() {
		e.GET("/api/stats", handler.HandleStats)
	}

	e.POST("/api/upload", handler.HandleUpload,
		middleware.BodyLimit(bodyLimit(cfg.MaxUploadSize)), limiter.Middleware())
	e.POST("/api/critique", handler.HandleCritique,
		middleware.BodyLimit(bodyLimit(cfg.MaxCritiqueSize)), limiter.Middleware())

	e.GET("/api/critique/:id", handler.HandleGetCritique)
	e.GET("/api/critique/:id/image", handler.HandleGetImage)
	e.DELETE("/api/critique/:id/:token", handler.HandleDelete)
	e.POST("/api/share", handler.HandleShare)

	return e, limiter
}

// bodyLimit is the file ceiling plus 1 MiB for multipart framing.
func bodyLimit(maxFile int64) string {
	return fmt.Sprintf("%dK", (maxFile+1<<20)/1024)
}
