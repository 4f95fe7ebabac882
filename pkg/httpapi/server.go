// Package httpapi exposes the interview over a JSON HTTP API.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/txn2/mcp-interviewer/pkg/engine"
	"github.com/txn2/mcp-interviewer/pkg/health"
)

// Session identification.
const (
	CookieName    = "interview_session"
	SessionHeader = "X-Interview-Session"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// Interviewer runs interview sessions.
type Interviewer interface {
	Start(ctx context.Context) (string, engine.Reply, error)
	Turn(ctx context.Context, sessionID, message string) (engine.Reply, error)
	End(ctx context.Context, sessionID string) error
}

// Config configures the HTTP API.
type Config struct {
	Interviewer Interviewer
	Health      *health.Checker

	// MCP is mounted at /mcp when set.
	MCP http.Handler

	CookieSecure bool
	CookieMaxAge time.Duration
}

// Server serves the interview HTTP API.
type Server struct {
	interviewer  Interviewer
	cookieSecure bool
	cookieMaxAge time.Duration
}

// NewHandler builds the router.
func NewHandler(cfg Config) http.Handler {
	s := &Server{
		interviewer:  cfg.Interviewer,
		cookieSecure: cfg.CookieSecure,
		cookieMaxAge: cfg.CookieMaxAge,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	if cfg.Health != nil {
		r.Get("/healthz", cfg.Health.LivenessHandler())
		r.Get("/readyz", cfg.Health.ReadinessHandler())
	}

	r.Route("/session", func(r chi.Router) {
		r.Post("/start", s.handleStart)
		r.Post("/delete", s.handleDelete)
		r.Delete("/delete", s.handleDelete)
	})
	r.Post("/interaction/interact", s.handleInteract)

	if cfg.MCP != nil {
		r.Handle("/mcp", cfg.MCP)
		r.Handle("/mcp/*", cfg.MCP)
	}

	return r
}
