// Package api implements the HTTP surface: the HMAC decision webhook, the
// bearer-authenticated Room-2 widget endpoints, and the read-only
// monitoring endpoints, per spec.md §6.
package api

import (
	"context"
	"net"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/carlosapgomes/caseflow/internal/db"
	"github.com/carlosapgomes/caseflow/internal/monitoring"
	"github.com/carlosapgomes/caseflow/internal/services"
)

// Server is the HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	cases           *db.CaseRepository
	users           *db.UserRepository
	doctorDecisions *services.DoctorDecisionService
	caseLister      *monitoring.CaseLister
	timeline        *monitoring.TimelineService

	webhookHMACSecret []byte
}

// NewServer builds the API server and registers all routes. Every
// collaborator is required at construction time; unlike the teacher's
// phased Set*-after-NewServer wiring, this domain has no optional
// subsystems to defer.
func NewServer(
	cases *db.CaseRepository,
	users *db.UserRepository,
	doctorDecisions *services.DoctorDecisionService,
	caseLister *monitoring.CaseLister,
	timeline *monitoring.TimelineService,
	webhookHMACSecret []byte,
) *Server {
	e := echo.New()

	s := &Server{
		echo:              e,
		cases:             cases,
		users:             users,
		doctorDecisions:   doctorDecisions,
		caseLister:        caseLister,
		timeline:          timeline,
		webhookHMACSecret: webhookHMACSecret,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)

	s.echo.POST("/callbacks/triage-decision", s.triageDecisionWebhookHandler)

	widget := s.echo.Group("/widget/room2")
	widget.Use(requireAdminBearer(s.users))
	widget.POST("/bootstrap", s.room2BootstrapHandler)
	widget.POST("/submit", s.room2SubmitHandler)

	monitor := s.echo.Group("/monitoring")
	monitor.GET("/cases", s.listCasesHandler)
	monitor.GET("/cases/:case_id", s.caseTimelineHandler)
}

// Start starts the HTTP server on the given address (non-blocking to the
// caller's own goroutine management; blocks the calling goroutine until
// Shutdown or a listen error).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// StartWithListener starts the HTTP server on a pre-created listener, used
// by tests that need a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}
