package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/broadcast"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/catalog"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/config"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/game"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/leaderboard"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/limits"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/session"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/storage"
)

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	store          storage.Store
	catalog        catalog.Catalog
	game           *game.Manager
	limits         *limits.Manager
	boards         *leaderboard.Manager
	orchestrator   *session.Orchestrator
	hub            *broadcast.Hub
	authMiddleware *AuthMiddleware
}

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	store storage.Store,
	cat catalog.Catalog,
	gm *game.Manager,
	lm *limits.Manager,
	boards *leaderboard.Manager,
	orchestrator *session.Orchestrator,
	hub *broadcast.Hub,
	identity Identity,
	adminKey string,
) *Server {
	s := &Server{
		config:         cfg,
		store:          store,
		catalog:        cat,
		game:           gm,
		limits:         lm,
		boards:         boards,
		orchestrator:   orchestrator,
		hub:            hub,
		authMiddleware: NewAuthMiddleware(identity, adminKey),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-User-ID", "X-User-Name", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		// Live event stream; clients authenticate the same way
		if s.hub != nil {
			r.Get("/live", s.hub.ServeWS)
		}

		// Player routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware.Authenticate)

			r.Get("/game/status", s.handleGameStatus)
			r.Post("/game/session", s.handleStartSession)
			r.Post("/game/session/{id}/answer", s.handleSubmitAnswer)
			r.Get("/game/attempts", s.handleGetAttempts)

			r.Get("/leaderboard/{scope}", s.handleGetLeaderboard)
			r.Get("/leaderboard/{scope}/rank", s.handleGetUserRank)
		})

		// Maintenance routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.authMiddleware.RequireAdmin)

			r.Post("/play-limits/reset", s.handleAdminResetPlayLimit)
			r.Post("/leaderboard/{scope}/consolidate", s.handleAdminConsolidate)
			r.Post("/game/reset", s.handleAdminResetGame)
			r.Post("/catalog/reload", s.handleAdminReloadCatalog)
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
