package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/game"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/leaderboard"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/limits"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/models"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/session"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondDomainError maps core errors onto the response taxonomy.
// Validation and limit errors carry their message out; storage and
// consistency failures are logged in full and reduced to a generic
// internal error.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, limits.ErrLimitExceeded):
		respondError(w, http.StatusTooManyRequests, "limit_exceeded", "daily limit reached")
	case errors.Is(err, session.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "not_found", "session not found")
	case errors.Is(err, game.ErrStateNotFound):
		respondError(w, http.StatusNotFound, "not_found", "daily game not available")
	case errors.Is(err, leaderboard.ErrUserNotRanked):
		respondError(w, http.StatusNotFound, "not_found", "user not on leaderboard")
	case errors.Is(err, session.ErrSessionCompleted):
		respondError(w, http.StatusConflict, "session_completed", "session is already completed")
	case errors.Is(err, session.ErrRoundMismatch):
		respondError(w, http.StatusConflict, "round_mismatch", "round number does not match current round")
	case errors.Is(err, session.ErrInvalidAnswer),
		errors.Is(err, session.ErrInvalidRound),
		errors.Is(err, session.ErrInvalidTime),
		errors.Is(err, leaderboard.ErrInvalidScope):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		slog.Error("internal error", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "store not reachable")
		return
	}

	if len(s.catalog.Categories()) == 0 {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "asset catalog is empty")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// Game handlers

func (s *Server) handleGameStatus(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	status, err := s.orchestrator.GetStatus(r.Context(), user.ID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	result, err := s.orchestrator.StartSession(r.Context(), user.ID, user.DisplayName)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

type submitAnswerRequest struct {
	RoundNumber     int             `json:"round_number"`
	Answer          models.Position `json:"answer"`
	TimeRemainingMs int             `json:"time_remaining_ms"`
}

func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "session id is required")
		return
	}

	var req submitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	result, err := s.orchestrator.SubmitAnswer(r.Context(), user.ID, sessionID, req.RoundNumber, req.Answer, req.TimeRemainingMs)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetAttempts(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	stats, err := s.limits.GetStats(r.Context(), user.ID, models.DateKey(time.Now()))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"attempts_used":      stats.AttemptsUsed,
		"max_attempts":       stats.MaxAttempts,
		"remaining_attempts": stats.RemainingAttempts(),
		"best_score":         stats.BestScore,
	})
}

// Leaderboard handlers

func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	scope := models.Scope(chi.URLParam(r, "scope"))
	if !scope.IsValid() {
		respondError(w, http.StatusBadRequest, "validation_error", "scope must be daily, weekly or alltime")
		return
	}

	limit := 10
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	page, total, err := s.boards.GetPage(r.Context(), scope, limit, offset)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"scope":   scope,
		"entries": page,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func (s *Server) handleGetUserRank(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	scope := models.Scope(chi.URLParam(r, "scope"))
	if !scope.IsValid() {
		respondError(w, http.StatusBadRequest, "validation_error", "scope must be daily, weekly or alltime")
		return
	}

	// Allow looking up another user explicitly
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = user.ID
	}

	rank, err := s.boards.GetUserRank(r.Context(), scope, userID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, rank)
}

// Admin handlers

type resetPlayLimitRequest struct {
	UserID string `json:"user_id"`
	Date   string `json:"date,omitempty"`
}

func (s *Server) handleAdminResetPlayLimit(w http.ResponseWriter, r *http.Request) {
	var req resetPlayLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "user_id is required")
		return
	}

	date := req.Date
	if date == "" {
		date = models.DateKey(time.Now())
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "date must be YYYY-MM-DD")
		return
	}

	if err := s.limits.Reset(r.Context(), req.UserID, date); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "play limit reset",
	})
}

func (s *Server) handleAdminConsolidate(w http.ResponseWriter, r *http.Request) {
	scope := models.Scope(chi.URLParam(r, "scope"))
	if !scope.IsValid() {
		respondError(w, http.StatusBadRequest, "validation_error", "scope must be daily, weekly or alltime")
		return
	}

	result, err := s.boards.Consolidate(r.Context(), scope)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

type resetGameRequest struct {
	Date string `json:"date,omitempty"`
}

func (s *Server) handleAdminResetGame(w http.ResponseWriter, r *http.Request) {
	var req resetGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	date := req.Date
	if date == "" {
		date = models.DateKey(time.Now())
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "date must be YYYY-MM-DD")
		return
	}

	state, err := s.game.Reset(r.Context(), date)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"date":   state.Date,
		"rounds": len(state.Rounds),
	})
}

func (s *Server) handleAdminReloadCatalog(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.ForceReload(r.Context()); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "catalog reloaded",
		"categories": len(s.catalog.Categories()),
	})
}
