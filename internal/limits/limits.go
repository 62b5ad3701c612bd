package limits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/models"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/storage"
)

// ErrLimitExceeded means the user has spent all of today's attempts.
// This is an expected outcome, not a fault.
var ErrLimitExceeded = errors.New("daily limit reached")

const (
	attemptsKeyPrefix = "limits:attempts:"
	bestKeyPrefix     = "limits:best:"
)

// bestRecord is the stored best-score snapshot for a (user, date) pair
type bestRecord struct {
	BestScore   int                 `json:"best_score"`
	BestSession *models.GameSession `json:"best_session,omitempty"`
}

// Manager enforces the per-user daily attempt cap and tracks best
// scores. maxAttempts is injected at construction, not read at runtime.
type Manager struct {
	store       storage.Store
	maxAttempts int
	recordTTL   time.Duration
}

// NewManager creates a play-limit manager
func NewManager(store storage.Store, maxAttempts int, recordTTL time.Duration) *Manager {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if recordTTL <= 0 {
		recordTTL = 26 * time.Hour
	}

	return &Manager{
		store:       store,
		maxAttempts: maxAttempts,
		recordTTL:   recordTTL,
	}
}

// MaxAttempts returns the configured daily cap
func (m *Manager) MaxAttempts() int {
	return m.maxAttempts
}

func attemptsKey(userID, date string) string {
	return attemptsKeyPrefix + userID + ":" + date
}

func bestKey(userID, date string) string {
	return bestKeyPrefix + userID + ":" + date
}

// GetStats loads (lazily initializing) the user's record for the date
func (m *Manager) GetStats(ctx context.Context, userID, date string) (*models.UserPlayLimit, error) {
	limit := &models.UserPlayLimit{
		UserID:      userID,
		Date:        date,
		MaxAttempts: m.maxAttempts,
	}

	raw, err := m.store.Get(ctx, attemptsKey(userID, date))
	switch {
	case err == nil:
		used, perr := strconv.Atoi(raw)
		if perr != nil {
			// Corrupt counter: safer to reset than to guess
			slog.Error("corrupt attempt counter, resetting", "user_id", userID, "date", date, "value", raw)
			if derr := m.store.Delete(ctx, attemptsKey(userID, date)); derr != nil {
				return nil, fmt.Errorf("failed to reset attempt counter: %w", derr)
			}
		} else {
			limit.AttemptsUsed = used
		}
	case errors.Is(err, storage.ErrKeyNotFound):
		// First check for this (user, date): zero attempts used
	default:
		return nil, fmt.Errorf("failed to read attempt counter: %w", err)
	}

	best, err := m.readBest(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if best != nil {
		limit.BestScore = best.BestScore
		limit.BestSession = best.BestSession
	}

	return limit, nil
}

// CanPlay reports whether the user has attempts left today, with a
// human-readable reason when they do not.
func (m *Manager) CanPlay(ctx context.Context, userID, date string) (bool, string, error) {
	stats, err := m.GetStats(ctx, userID, date)
	if err != nil {
		return false, "", err
	}
	if stats.RemainingAttempts() == 0 {
		return false, "daily limit reached", nil
	}
	return true, "", nil
}

// IncrementAttempts consumes one attempt atomically. If the increment
// pushes the counter past the cap it is undone and ErrLimitExceeded is
// returned: the caller has not been granted the attempt. Two concurrent
// submissions can never both take the last slot.
func (m *Manager) IncrementAttempts(ctx context.Context, userID, date string) (int, error) {
	count, err := m.store.IncrBy(ctx, attemptsKey(userID, date), 1)
	if err != nil {
		return 0, fmt.Errorf("failed to increment attempts: %w", err)
	}

	if err := m.store.Expire(ctx, attemptsKey(userID, date), m.recordTTL); err != nil {
		slog.Warn("failed to set attempt counter expiry", "user_id", userID, "error", err)
	}

	if count > int64(m.maxAttempts) {
		if _, derr := m.store.IncrBy(ctx, attemptsKey(userID, date), -1); derr != nil {
			slog.Error("failed to roll back attempt increment", "user_id", userID, "error", derr)
		}
		return 0, ErrLimitExceeded
	}

	return int(count), nil
}

// UpdateBestScore stores the session as the user's best if its score is
// strictly greater than the recorded one. Safe to call repeatedly with
// the same session.
func (m *Manager) UpdateBestScore(ctx context.Context, userID, date string, session *models.GameSession) error {
	best, err := m.readBest(ctx, userID, date)
	if err != nil {
		return err
	}
	if best != nil && session.TotalScore <= best.BestScore {
		return nil
	}

	data, err := json.Marshal(bestRecord{
		BestScore:   session.TotalScore,
		BestSession: session,
	})
	if err != nil {
		return fmt.Errorf("failed to encode best score: %w", err)
	}

	if err := m.store.Set(ctx, bestKey(userID, date), string(data), m.recordTTL); err != nil {
		return fmt.Errorf("failed to store best score: %w", err)
	}
	return nil
}

// Reset clears a user's record for the date. Administrative use only.
func (m *Manager) Reset(ctx context.Context, userID, date string) error {
	if err := m.store.Delete(ctx, attemptsKey(userID, date), bestKey(userID, date)); err != nil {
		return fmt.Errorf("failed to reset play limit: %w", err)
	}
	slog.Info("play limit reset", "user_id", userID, "date", date)
	return nil
}

func (m *Manager) readBest(ctx context.Context, userID, date string) (*bestRecord, error) {
	raw, err := m.store.Get(ctx, bestKey(userID, date))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read best score: %w", err)
	}

	var best bestRecord
	if err := json.Unmarshal([]byte(raw), &best); err != nil {
		// One corrupt record should not block play; treat as absent
		slog.Error("corrupt best-score record, ignoring", "user_id", userID, "date", date, "error", err)
		return nil, nil
	}
	return &best, nil
}
