package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/game"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/leaderboard"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/limits"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/models"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/storage"
)

// Common errors
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionCompleted = errors.New("session already completed")
	ErrRoundMismatch    = errors.New("round number does not match current round")
	ErrInvalidAnswer    = errors.New("answer must be A or B")
	ErrInvalidRound     = errors.New("round number out of range")
	ErrInvalidTime      = errors.New("time remaining out of range")
)

const sessionKeyPrefix = "session:"

// Config holds scoring and lifecycle tuning for the orchestrator
type Config struct {
	BasePoints    int
	TimeBonusRate float64 // points per remaining millisecond
	RoundTimeMs   int
	SessionTTL    time.Duration
}

// Orchestrator drives a player session through the daily rounds:
// not-started → in-progress(1..6) → completed. All state lives in the
// store; handlers share nothing in process.
type Orchestrator struct {
	store  storage.Store
	game   *game.Manager
	limits *limits.Manager
	boards *leaderboard.Manager
	cfg    Config
	now    func() time.Time
}

// NewOrchestrator wires the session orchestrator
func NewOrchestrator(store storage.Store, gm *game.Manager, lm *limits.Manager, boards *leaderboard.Manager, cfg Config) *Orchestrator {
	if cfg.BasePoints <= 0 {
		cfg.BasePoints = 15
	}
	if cfg.RoundTimeMs <= 0 {
		cfg.RoundTimeMs = 15000
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}

	return &Orchestrator{
		store:  store,
		game:   gm,
		limits: lm,
		boards: boards,
		cfg:    cfg,
		now:    time.Now,
	}
}

// StartResult is the response to a successful session start
type StartResult struct {
	SessionID     string           `json:"session_id"`
	AttemptNumber int              `json:"attempt_number"`
	Round         models.RoundView `json:"round"`
}

// SubmitResult reports one answered round. Final is set only when the
// answer completed the session.
type SubmitResult struct {
	Correct         bool              `json:"correct"`
	CorrectAnswer   models.Position   `json:"correct_answer"`
	RoundScore      int               `json:"round_score"`
	NextRound       *models.RoundView `json:"next_round,omitempty"`
	Final           *FinalResult      `json:"final,omitempty"`
}

// FinalResult summarizes a completed session
type FinalResult struct {
	TotalScore    int          `json:"total_score"`
	CorrectCount  int          `json:"correct_count"`
	Badge         models.Badge `json:"badge"`
	AttemptNumber int          `json:"attempt_number"`
}

// Status describes the day's game and the user's standing, read-only
type Status struct {
	Date         string                `json:"date"`
	GameReady    bool                  `json:"game_ready"`
	Rounds       int                   `json:"rounds"`
	Participants int64                 `json:"participants"`
	Attempts     *models.UserPlayLimit `json:"attempts"`
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

// GetStatus reports today's game and the user's play stats without
// mutating anything.
func (o *Orchestrator) GetStatus(ctx context.Context, userID string) (*Status, error) {
	date := models.DateKey(o.now())

	status := &Status{Date: date}

	state, err := o.game.Get(ctx, date)
	switch {
	case err == nil:
		status.GameReady = true
		status.Rounds = len(state.Rounds)
		status.Participants = state.ParticipantCount
	case errors.Is(err, game.ErrStateNotFound):
		// Not generated yet today; the first StartSession will build it
	default:
		return nil, err
	}

	stats, err := o.limits.GetStats(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	status.Attempts = stats

	return status, nil
}

// StartSession gates on the play limit, consumes an attempt, ensures
// today's state exists and opens a session pointed at round 1.
func (o *Orchestrator) StartSession(ctx context.Context, userID, displayName string) (*StartResult, error) {
	date := models.DateKey(o.now())

	ok, reason, err := o.limits.CanPlay(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", limits.ErrLimitExceeded, reason)
	}

	attempt, err := o.limits.IncrementAttempts(ctx, userID, date)
	if err != nil {
		// Includes losing the race for the last slot
		return nil, err
	}

	state, err := o.game.InitializeOrFetch(ctx, date)
	if err != nil {
		return nil, err
	}

	if _, err := o.game.IncrementParticipants(ctx, date); err != nil {
		slog.Warn("failed to count participant", "date", date, "error", err)
	}

	sess := &models.GameSession{
		ID:            uuid.New().String(),
		UserID:        userID,
		DisplayName:   displayName,
		Date:          date,
		StartedAt:     o.now().UTC(),
		CurrentRound:  1,
		AttemptNumber: attempt,
	}

	if err := o.save(ctx, sess); err != nil {
		return nil, err
	}

	slog.Info("session started",
		"session_id", sess.ID,
		"user_id", userID,
		"attempt", attempt,
	)

	return &StartResult{
		SessionID:     sess.ID,
		AttemptNumber: attempt,
		Round:         state.Rounds[0].View(),
	}, nil
}

// SubmitAnswer scores one round and advances the session, finalizing it
// on the last round. A replay of the final round after completion is
// rejected, not re-scored: the completed session is persisted before
// any leaderboard or best-score side effect runs, so those run at most
// once per session.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, userID, sessionID string, roundNumber int, answer models.Position, timeRemainingMs int) (*SubmitResult, error) {
	if !answer.IsValid() {
		return nil, ErrInvalidAnswer
	}
	if roundNumber < 1 || roundNumber > models.RoundsPerDay {
		return nil, ErrInvalidRound
	}
	if timeRemainingMs < 0 || timeRemainingMs > o.cfg.RoundTimeMs {
		return nil, ErrInvalidTime
	}

	sess, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ErrSessionNotFound
	}
	if sess.Completed {
		return nil, ErrSessionCompleted
	}
	if roundNumber != sess.CurrentRound {
		return nil, fmt.Errorf("%w: got %d, current is %d", ErrRoundMismatch, roundNumber, sess.CurrentRound)
	}

	state, err := o.game.Get(ctx, sess.Date)
	if err != nil {
		return nil, err
	}

	round := state.Round(roundNumber)
	if round == nil {
		return nil, ErrInvalidRound
	}

	correct := answer == round.CorrectAnswer
	score := 0
	if correct {
		score = o.cfg.BasePoints + int(float64(timeRemainingMs)*o.cfg.TimeBonusRate)
	}

	sess.Outcomes = append(sess.Outcomes, models.RoundOutcome{
		RoundNumber:     roundNumber,
		Answer:          answer,
		Correct:         correct,
		TimeRemainingMs: timeRemainingMs,
		Score:           score,
	})
	sess.TotalScore += score
	if correct {
		sess.CorrectCount++
	}
	sess.CurrentRound++

	result := &SubmitResult{
		Correct:       correct,
		CorrectAnswer: round.CorrectAnswer,
		RoundScore:    score,
	}

	if roundNumber < models.RoundsPerDay {
		if err := o.save(ctx, sess); err != nil {
			return nil, err
		}
		next := state.Round(sess.CurrentRound).View()
		result.NextRound = &next
		return result, nil
	}

	// Final round: flip completed exactly once and persist before any
	// side effects, so a retried submit is rejected above.
	completedAt := o.now().UTC()
	sess.Completed = true
	sess.CompletedAt = &completedAt
	sess.Badge = models.BadgeForCorrectCount(sess.CorrectCount)

	if err := o.save(ctx, sess); err != nil {
		return nil, err
	}

	if err := o.finalize(ctx, sess); err != nil {
		return nil, err
	}

	result.Final = &FinalResult{
		TotalScore:    sess.TotalScore,
		CorrectCount:  sess.CorrectCount,
		Badge:         sess.Badge,
		AttemptNumber: sess.AttemptNumber,
	}

	slog.Info("session completed",
		"session_id", sess.ID,
		"user_id", sess.UserID,
		"score", sess.TotalScore,
		"correct", sess.CorrectCount,
		"badge", sess.Badge,
	)

	return result, nil
}

// finalize runs the completion side effects: leaderboard submission
// and best-score tracking.
func (o *Orchestrator) finalize(ctx context.Context, sess *models.GameSession) error {
	timeBonus := 0
	for _, outcome := range sess.Outcomes {
		if outcome.Correct {
			timeBonus += outcome.Score - o.cfg.BasePoints
		}
	}

	entry := models.LeaderboardEntry{
		UserID:       sess.UserID,
		DisplayName:  sess.DisplayName,
		Score:        sess.TotalScore,
		CorrectCount: sess.CorrectCount,
		TimeBonus:    timeBonus,
		CompletedAt:  *sess.CompletedAt,
		Badge:        sess.Badge,
	}

	if err := o.boards.AddScore(ctx, entry); err != nil {
		return err
	}

	if err := o.limits.UpdateBestScore(ctx, sess.UserID, sess.Date, sess); err != nil {
		return err
	}

	return nil
}

func (o *Orchestrator) save(ctx context.Context, sess *models.GameSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := o.store.Set(ctx, sessionKey(sess.ID), string(data), o.cfg.SessionTTL); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

func (o *Orchestrator) load(ctx context.Context, sessionID string) (*models.GameSession, error) {
	raw, err := o.store.Get(ctx, sessionKey(sessionID))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var sess models.GameSession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("corrupt session record: %w", err)
	}
	return &sess, nil
}
