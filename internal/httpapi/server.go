// Package httpapi exposes the auction over HTTP: bidder and admin REST
// endpoints and a WebSocket live feed.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/player-auction/internal/auction"
	"github.com/jensholdgaard/player-auction/internal/bidding"
	"github.com/jensholdgaard/player-auction/internal/health"
	"github.com/jensholdgaard/player-auction/internal/roster"
)

// Options carries the collaborators of a Server.
type Options struct {
	Engine  *auction.Engine
	Surface *bidding.Surface
	Roster  *roster.Manager
	Hub     *Hub
	// Health is optional; when set /healthz and /readyz are served.
	Health *health.Handler
	// AdminToken guards /api/admin. Empty disables the admin API.
	AdminToken string
	Logger     *slog.Logger
	Tracer     trace.TracerProvider
}

// Server holds the HTTP handlers.
type Server struct {
	engine     *auction.Engine
	surface    *bidding.Surface
	roster     *roster.Manager
	hub        *Hub
	health     *health.Handler
	adminToken string
	validator  *validator.Validate
	logger     *slog.Logger
	tracer     trace.Tracer
}

// New returns a Server.
func New(opts Options) *Server {
	return &Server{
		engine:     opts.Engine,
		surface:    opts.Surface,
		roster:     opts.Roster,
		hub:        opts.Hub,
		health:     opts.Health,
		adminToken: opts.AdminToken,
		validator:  validator.New(validator.WithRequiredStructEnabled()),
		logger:     opts.Logger,
		tracer:     opts.Tracer.Tracer("github.com/jensholdgaard/player-auction/internal/httpapi"),
	}
}

// Router returns the HTTP handler for every route.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	if s.health != nil {
		r.Get("/healthz", s.health.LivenessHandler())
		r.Get("/readyz", s.health.ReadinessHandler())
	}
	if s.hub != nil {
		r.Get("/ws", s.hub.ServeWS)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/auction", s.getAuction)
		r.Post("/auction/bids", s.placeBid)
		r.Get("/players", s.listPlayers)
		r.Get("/players/{id}/bids", s.listBids)
		r.Get("/teams", s.teamSummaries)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)

			r.Post("/auction/start", s.startAuction)
			r.Post("/auction/end", s.endAuction)
			r.Post("/auction/resolve", s.resolveSale)
			r.Post("/auction/unsold", s.markUnsold)
			r.Post("/rounds/advance", s.advanceRound)
			r.Post("/rounds/reopen", s.reopenMainRound)

			r.Post("/teams", s.createTeam)
			r.Put("/teams/{id}", s.updateTeam)
			r.Post("/players", s.createPlayer)
			r.Put("/players/{id}", s.updatePlayer)
			r.Post("/players/import", s.importPlayers)

			r.Get("/audit", s.auditLog)
			r.Get("/reconcile", s.reconcile)
		})
	})

	return r
}
