package httpapi

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"cloudlab/internal/core"
	"cloudlab/internal/telemetry"
)

// Server owns the echo instance and its routes.
type Server struct {
	echo *echo.Echo
}

// NewServer builds the HTTP surface over the simulation service.
func NewServer(svc *core.Service, log *telemetry.Logger, metrics *telemetry.Metrics) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(observeRequests(metrics))

	h := NewHandler(svc, log, metrics)
	RegisterRoutes(e, h, metrics)
	return &Server{echo: e}
}

// RegisterRoutes attaches every route to the echo instance.
func RegisterRoutes(e *echo.Echo, h *Handler, metrics *telemetry.Metrics) {
	sim := e.Group("/simulation")
	sim.POST("/start", h.HandleStart)
	sim.POST("/reset", h.HandleReset)
	sim.POST("/validate", h.HandleValidate)
	sim.POST("/submit", h.HandleSubmit)
	sim.GET("/resources", h.HandleListResources)
	sim.GET("/labs", h.HandleListLabs)

	e.GET("/healthz", h.HandleHealthz)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// observeRequests records per-route request durations.
func observeRequests(metrics *telemetry.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			metrics.ObserveRequest(c.Request().Method, c.Path(), strconv.Itoa(status), time.Since(start))
			return err
		}
	}
}

// Start begins serving on addr and blocks.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
