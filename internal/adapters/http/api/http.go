// Package api serves the read-only operations HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/tierboard/internal/adapters/http/swagger"
	"github.com/okian/tierboard/internal/domain/leaderboard"
	"github.com/okian/tierboard/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StatsProvider
	LeaderboardDependencies
	RatingDependencies
	PendingDependencies
}

// LeaderboardDependencies renders the current leaderboard.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context) (leaderboard.Board, error)
}

// RatingDependencies looks up a single rating.
type RatingDependencies interface {
	RatingOf(ctx context.Context, memberID string) (model.Rating, error)
}

// PendingDependencies lists the review queue.
type PendingDependencies interface {
	ListPending(ctx context.Context, limit int) ([]model.Submission, int, error)
}

// Server wires HTTP routes for the operations API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	leaderboardHandler *LeaderboardHandler
	ratingHandler      *RatingHandler
	pendingHandler     *PendingHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps),
		ratingHandler:      NewRatingHandler(deps),
		pendingHandler:     NewPendingHandler(deps, maxPendingLimit),
	}
}

// Routes returns a chi.Router with every endpoint mounted. None of the
// routes authenticate; /submissions/pending exposes moderator data and is
// meant for a loopback listener.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	r.Get("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	r.Get("/ratings/{memberID}", MetricsMiddleware(s.ratingHandler.HandleGetRating, "ratings"))
	r.Get("/submissions/pending", MetricsMiddleware(s.pendingHandler.HandleListPending, "pending"))
	swagger.Register(r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	msg := http.StatusText(status)
	if err != nil && status < http.StatusInternalServerError {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
