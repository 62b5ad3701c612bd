package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/broadcast"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/catalog"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/config"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/game"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/leaderboard"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/limits"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/models"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/session"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/storage"
)

const testAdminKey = "test-admin-key"

func testAssets() []models.ImageAsset {
	categories := []string{"animals", "architecture", "art", "faces", "food", "landscapes"}

	var assets []models.ImageAsset
	for _, cat := range categories {
		assets = append(assets,
			models.ImageAsset{ID: cat + "-synth", URL: "u", Category: cat, IsSynthetic: true},
			models.ImageAsset{ID: cat + "-real", URL: "u", Category: cat},
		)
	}
	return assets
}

func newTestServer(t *testing.T) (*Server, *game.Manager) {
	t.Helper()

	store := storage.NewMemoryStore()
	cat := catalog.NewStaticCatalog(testAssets())
	pub := broadcast.NopPublisher{}

	gm := game.NewManager(store, cat, pub, 26*time.Hour)
	lm := limits.NewManager(store, 3, 26*time.Hour)
	boards := leaderboard.NewManager(store, pub)
	orchestrator := session.NewOrchestrator(store, gm, lm, boards, session.Config{
		BasePoints:    15,
		TimeBonusRate: 0.001,
		RoundTimeMs:   15000,
		SessionTTL:    time.Hour,
	})

	s := NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 8080}, store, cat, gm, lm, boards, orchestrator, nil, HeaderIdentity{}, testAdminKey)
	return s, gm
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

func doRequest(t *testing.T, s *Server, method, path, userID string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
		req.Header.Set("X-User-Name", "Player "+userID)
	}

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode envelope from %q: %v", rec.Body.String(), err)
	}
	return rec, env
}

func TestHealthEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	rec, env := doRequest(t, s, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Errorf("expected healthy, got status %d", rec.Code)
	}

	rec, env = doRequest(t, s, http.MethodGet, "/ready", "", nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Errorf("expected ready, got status %d", rec.Code)
	}
}

func TestIdentityRequired(t *testing.T) {
	s, _ := newTestServer(t)

	rec, env := doRequest(t, s, http.MethodGet, "/api/v1/game/status", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if env.Success || env.Error == nil || env.Error.Code != "unauthenticated" {
		t.Errorf("expected unauthenticated error, got %+v", env.Error)
	}
}

func TestFullGameFlowOverHTTP(t *testing.T) {
	s, gm := newTestServer(t)
	ctx := context.Background()

	// Start a session
	rec, env := doRequest(t, s, http.MethodPost, "/api/v1/game/session", "user-1", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var start session.StartResult
	if err := json.Unmarshal(env.Data, &start); err != nil {
		t.Fatalf("failed to decode start result: %v", err)
	}
	if start.Round.RoundNumber != 1 {
		t.Errorf("expected round 1, got %d", start.Round.RoundNumber)
	}

	// The daily state was created by the start
	state, err := gm.Get(ctx, models.DateKey(time.Now()))
	if err != nil {
		t.Fatalf("failed to load state: %v", err)
	}

	// Answer every round correctly
	var result session.SubmitResult
	for i := 0; i < models.RoundsPerDay; i++ {
		path := fmt.Sprintf("/api/v1/game/session/%s/answer", start.SessionID)
		rec, env = doRequest(t, s, http.MethodPost, path, "user-1", submitAnswerRequest{
			RoundNumber:     i + 1,
			Answer:          state.Rounds[i].CorrectAnswer,
			TimeRemainingMs: 5000,
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("round %d: expected 200, got %d: %s", i+1, rec.Code, rec.Body.String())
		}
		if err := json.Unmarshal(env.Data, &result); err != nil {
			t.Fatalf("failed to decode submit result: %v", err)
		}
	}

	if result.Final == nil {
		t.Fatal("expected final results after last round")
	}
	if result.Final.CorrectCount != models.RoundsPerDay {
		t.Errorf("expected all correct, got %d", result.Final.CorrectCount)
	}

	// Replaying the final round is rejected with a conflict
	path := fmt.Sprintf("/api/v1/game/session/%s/answer", start.SessionID)
	rec, env = doRequest(t, s, http.MethodPost, path, "user-1", submitAnswerRequest{
		RoundNumber:     models.RoundsPerDay,
		Answer:          state.Rounds[5].CorrectAnswer,
		TimeRemainingMs: 5000,
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 on replay, got %d", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "session_completed" {
		t.Errorf("expected session_completed error, got %+v", env.Error)
	}

	// Leaderboard shows the run
	rec, env = doRequest(t, s, http.MethodGet, "/api/v1/leaderboard/daily?limit=5", "user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var board struct {
		Entries []models.RankedEntry `json:"entries"`
		Total   int64                `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &board); err != nil {
		t.Fatalf("failed to decode leaderboard: %v", err)
	}
	if board.Total != 1 || len(board.Entries) != 1 {
		t.Fatalf("expected one leaderboard entry, got %d", board.Total)
	}
	if board.Entries[0].Score != result.Final.TotalScore {
		t.Errorf("leaderboard score %d does not match final %d", board.Entries[0].Score, result.Final.TotalScore)
	}

	// Rank lookup for the player
	rec, env = doRequest(t, s, http.MethodGet, "/api/v1/leaderboard/alltime/rank", "user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var rank models.UserRank
	if err := json.Unmarshal(env.Data, &rank); err != nil {
		t.Fatalf("failed to decode rank: %v", err)
	}
	if rank.Rank != 1 {
		t.Errorf("expected rank 1, got %d", rank.Rank)
	}

	// Attempts reflect the play
	rec, env = doRequest(t, s, http.MethodGet, "/api/v1/game/attempts", "user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var attempts struct {
		AttemptsUsed      int `json:"attempts_used"`
		RemainingAttempts int `json:"remaining_attempts"`
		BestScore         int `json:"best_score"`
	}
	if err := json.Unmarshal(env.Data, &attempts); err != nil {
		t.Fatalf("failed to decode attempts: %v", err)
	}
	if attempts.AttemptsUsed != 1 || attempts.BestScore != result.Final.TotalScore {
		t.Errorf("unexpected attempts payload: %+v", attempts)
	}
}

func TestUnknownScopeRejected(t *testing.T) {
	s, _ := newTestServer(t)

	rec, env := doRequest(t, s, http.MethodGet, "/api/v1/leaderboard/hourly", "user-1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "validation_error" {
		t.Errorf("expected validation_error, got %+v", env.Error)
	}
}

func TestRankForUnrankedUser(t *testing.T) {
	s, _ := newTestServer(t)

	rec, env := doRequest(t, s, http.MethodGet, "/api/v1/leaderboard/daily/rank", "ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "not_found" {
		t.Errorf("expected not_found, got %+v", env.Error)
	}
}

func TestAdminEndpointsRequireKey(t *testing.T) {
	s, _ := newTestServer(t)

	// No key
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/leaderboard/daily/consolidate", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}

	// Wrong key
	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/leaderboard/daily/consolidate", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong key, got %d", rec.Code)
	}

	// Correct key
	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/leaderboard/daily/consolidate", nil)
	req.Header.Set("Authorization", "Bearer "+testAdminKey)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with admin key, got %d: %s", rec.Code, rec.Body.String())
	}

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	var result models.ConsolidateResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("failed to decode consolidate result: %v", err)
	}
	if result.Scope != models.ScopeDaily {
		t.Errorf("expected daily scope result, got %s", result.Scope)
	}
}

func TestAdminResetPlayLimit(t *testing.T) {
	s, _ := newTestServer(t)

	// Use up an attempt
	rec, _ := doRequest(t, s, http.MethodPost, "/api/v1/game/session", "user-1", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	body, _ := json.Marshal(resetPlayLimitRequest{UserID: "user-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/play-limits/reset", bytes.NewReader(body))
	req.Header.Set("X-API-Key", testAdminKey)
	rec2 := httptest.NewRecorder()
	s.Router().ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec2.Code, rec2.Body.String())
	}

	// Attempts are back to zero
	_, env := doRequest(t, s, http.MethodGet, "/api/v1/game/attempts", "user-1", nil)
	var attempts struct {
		AttemptsUsed int `json:"attempts_used"`
	}
	if err := json.Unmarshal(env.Data, &attempts); err != nil {
		t.Fatalf("failed to decode attempts: %v", err)
	}
	if attempts.AttemptsUsed != 0 {
		t.Errorf("expected attempts reset to 0, got %d", attempts.AttemptsUsed)
	}
}
