// Package api provides the HTTP surface of memstack: a single ops
// endpoint, per SPEC_FULL.md's resolution of the HTTP-transport Non-goal.
// Session processing, HITL response delivery, and the event stream are
// driven by pkg/session and pkg/events directly; they are not exposed
// as their own HTTP routes here (left to cmd/memstack's caller, or a
// future transport adapter outside this package's scope).
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/memstack/memstack/pkg/substrate/health"
	"github.com/memstack/memstack/pkg/version"
)

// Server is the HTTP API server. It exposes only /healthz, backed by a
// health.Aggregator running every registered store's liveness probe in
// parallel (spec §4.1, §5).
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	aggregator *health.Aggregator
}

// NewServer creates a new API server with Echo v5 (teacher's HTTP
// transport; kept rather than swapped for gin, see DESIGN.md).
func NewServer(aggregator *health.Aggregator) *Server {
	e := echo.New()
	s := &Server{echo: e, aggregator: aggregator}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.GET("/healthz", s.healthHandler)
}

// Start starts the HTTP server on the given address and blocks until the
// server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener.
// Used by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles GET /healthz, running every registered checker
// concurrently and reporting the aggregate plus per-service status.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	report := s.aggregator.Run(reqCtx)

	checks := make(map[string]HealthCheck, len(report.Services))
	for name, status := range report.Services {
		checks[name] = HealthCheck{
			Status:    checkStatus(status.Healthy),
			Message:   status.Message,
			LatencyMS: status.LatencyMS,
			Details:   status.Details,
		}
	}

	httpStatus := http.StatusOK
	overall := "healthy"
	if !report.Healthy {
		httpStatus = http.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:  overall,
		Version: version.Full(),
		Checks:  checks,
	})
}

func checkStatus(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}
