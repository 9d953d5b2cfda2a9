package api

import (
	"stash/internal/server/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))
	e.Use(RequestID())
	e.Use(RequestLogger())

	// Rate limiter and body cap on the ingest endpoint only
	uploadLimiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// Landing page & health
	e.GET("/", handler.HandleHome)
	e.GET("/health", handler.HandleHealth)

	// Uploads
	e.POST("/api/uploads", handler.HandleIngest,
		uploadLimiter.Middleware(),
		middleware.BodyLimit(cfg.MaxUploadSize),
	)
	e.GET("/api/uploads/:id", handler.HandleFetch)
	e.GET("/api/uploads/:id/info", handler.HandleInfo)

	return e
}
