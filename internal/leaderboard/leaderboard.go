package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/broadcast"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/models"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/storage"
)

// Common errors
var (
	ErrUserNotRanked = errors.New("user not on leaderboard")
	ErrInvalidScope  = errors.New("invalid leaderboard scope")
)

const (
	keyPrefix = "lb:"

	dailyTTL  = 26 * time.Hour
	weeklyTTL = 8 * 24 * time.Hour
)

// Manager maintains the three ranked leaderboard scopes. Entries are
// stored as JSON members of a sorted set, scored by the entry's score;
// at most one member per user is the steady-state invariant, repaired
// by Consolidate when concurrent writers race.
type Manager struct {
	store     storage.Store
	publisher broadcast.Publisher
	now       func() time.Time
}

// NewManager creates a leaderboard manager
func NewManager(store storage.Store, publisher broadcast.Publisher) *Manager {
	return &Manager{
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

// key returns the ranked-set key for a scope at the current time
func (m *Manager) key(scope models.Scope) string {
	switch scope {
	case models.ScopeDaily:
		return keyPrefix + "daily:" + models.DateKey(m.now())
	case models.ScopeWeekly:
		year, week := m.now().UTC().ISOWeek()
		return fmt.Sprintf("%sweekly:%d-W%02d", keyPrefix, year, week)
	default:
		return keyPrefix + "alltime"
	}
}

func scopeTTL(scope models.Scope) time.Duration {
	switch scope {
	case models.ScopeDaily:
		return dailyTTL
	case models.ScopeWeekly:
		return weeklyTTL
	default:
		return 0 // all-time never expires
	}
}

// AddScore submits a completed session's result to every scope,
// keeping only each user's best entry. After a successful daily-scope
// write the user's new rank is broadcast; broadcast failures never fail
// the write.
func (m *Manager) AddScore(ctx context.Context, entry models.LeaderboardEntry) error {
	for _, scope := range models.AllScopes {
		wrote, err := m.addToScope(ctx, scope, entry)
		if err != nil {
			return fmt.Errorf("failed to add score to %s scope: %w", scope, err)
		}

		if wrote && scope == models.ScopeDaily {
			m.announceRank(ctx, entry.UserID)
		}
	}
	return nil
}

// addToScope performs the check-then-replace for one scope. The check
// and the replace are not atomic against concurrent writers; transient
// duplicates are tolerated and removed by Consolidate.
func (m *Manager) addToScope(ctx context.Context, scope models.Scope, entry models.LeaderboardEntry) (bool, error) {
	key := m.key(scope)

	members, err := m.store.ZRevRangeWithScores(ctx, key, 0, -1)
	if err != nil {
		return false, err
	}

	var stale []string
	bestExisting := -1
	for _, sm := range members {
		existing, perr := decodeEntry(sm.Member)
		if perr != nil {
			continue
		}
		if existing.UserID != entry.UserID {
			continue
		}
		stale = append(stale, sm.Member)
		if existing.Score > bestExisting {
			bestExisting = existing.Score
		}
	}

	if bestExisting >= entry.Score {
		return false, nil
	}

	if len(stale) > 0 {
		if err := m.store.ZRem(ctx, key, stale...); err != nil {
			return false, err
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("failed to encode entry: %w", err)
	}

	if err := m.store.ZAdd(ctx, key, float64(entry.Score), string(data)); err != nil {
		return false, err
	}

	if ttl := scopeTTL(scope); ttl > 0 {
		if err := m.store.Expire(ctx, key, ttl); err != nil {
			slog.Warn("failed to refresh leaderboard expiry", "scope", scope, "error", err)
		}
	}

	return true, nil
}

// announceRank publishes the user's fresh daily rank, best effort
func (m *Manager) announceRank(ctx context.Context, userID string) {
	rank, err := m.GetUserRank(ctx, models.ScopeDaily, userID)
	if err != nil {
		slog.Warn("failed to resolve rank for broadcast", "user_id", userID, "error", err)
		return
	}

	m.publisher.Publish(ctx, broadcast.TopicRankChange, broadcast.RankChangeEvent{
		UserID:       userID,
		Rank:         rank.Rank,
		Participants: rank.Participants,
	})
}

// GetPage returns a window of entries in descending score order.
// Entries whose stored form fails to parse are skipped, not fatal.
func (m *Manager) GetPage(ctx context.Context, scope models.Scope, limit, offset int) ([]models.RankedEntry, int64, error) {
	if !scope.IsValid() {
		return nil, 0, ErrInvalidScope
	}
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	key := m.key(scope)

	members, err := m.store.ZRevRangeWithScores(ctx, key, int64(offset), int64(offset+limit-1))
	if err != nil {
		return nil, 0, err
	}

	total, err := m.store.ZCard(ctx, key)
	if err != nil {
		return nil, 0, err
	}

	page := make([]models.RankedEntry, 0, len(members))
	for i, sm := range members {
		entry, perr := decodeEntry(sm.Member)
		if perr != nil {
			slog.Warn("skipping corrupt leaderboard entry", "scope", scope, "error", perr)
			continue
		}
		page = append(page, models.RankedEntry{
			Rank:             offset + i + 1,
			LeaderboardEntry: *entry,
		})
	}

	return page, total, nil
}

// GetUserRank scans the scope in rank order for the user's 1-based
// position. Returns ErrUserNotRanked when the user has no entry.
func (m *Manager) GetUserRank(ctx context.Context, scope models.Scope, userID string) (*models.UserRank, error) {
	if !scope.IsValid() {
		return nil, ErrInvalidScope
	}

	key := m.key(scope)

	members, err := m.store.ZRevRangeWithScores(ctx, key, 0, -1)
	if err != nil {
		return nil, err
	}

	for i, sm := range members {
		entry, perr := decodeEntry(sm.Member)
		if perr != nil {
			continue
		}
		if entry.UserID == userID {
			return &models.UserRank{
				UserID:       userID,
				Scope:        scope,
				Rank:         i + 1,
				Score:        entry.Score,
				Participants: int64(len(members)),
			}, nil
		}
	}

	return nil, ErrUserNotRanked
}

// GetParticipantCount returns the scope's cardinality
func (m *Manager) GetParticipantCount(ctx context.Context, scope models.Scope) (int64, error) {
	if !scope.IsValid() {
		return 0, ErrInvalidScope
	}
	return m.store.ZCard(ctx, m.key(scope))
}

// Consolidate is the repair pass for duplicates left behind by racing
// AddScore calls: it keeps only the maximum-score entry per user and,
// when anything was removed, rebuilds the whole collection.
func (m *Manager) Consolidate(ctx context.Context, scope models.Scope) (*models.ConsolidateResult, error) {
	if !scope.IsValid() {
		return nil, ErrInvalidScope
	}

	key := m.key(scope)

	members, err := m.store.ZRevRangeWithScores(ctx, key, 0, -1)
	if err != nil {
		return nil, err
	}

	best := make(map[string]models.LeaderboardEntry)
	dropped := 0
	for _, sm := range members {
		entry, perr := decodeEntry(sm.Member)
		if perr != nil {
			slog.Warn("dropping corrupt entry during consolidation", "scope", scope, "error", perr)
			dropped++
			continue
		}
		if existing, ok := best[entry.UserID]; !ok || entry.Score > existing.Score {
			best[entry.UserID] = *entry
		}
	}

	result := &models.ConsolidateResult{
		Scope:             scope,
		OriginalCount:     len(members),
		ConsolidatedCount: len(best),
		DuplicatesRemoved: len(members) - len(best) - dropped,
	}

	if len(members) == len(best) {
		return result, nil
	}

	// Rebuild: delete then bulk-reinsert the deduplicated set
	if err := m.store.Delete(ctx, key); err != nil {
		return nil, err
	}
	for _, entry := range best {
		data, merr := json.Marshal(entry)
		if merr != nil {
			return nil, fmt.Errorf("failed to encode entry: %w", merr)
		}
		if err := m.store.ZAdd(ctx, key, float64(entry.Score), string(data)); err != nil {
			return nil, err
		}
	}
	if ttl := scopeTTL(scope); ttl > 0 {
		if err := m.store.Expire(ctx, key, ttl); err != nil {
			slog.Warn("failed to refresh leaderboard expiry", "scope", scope, "error", err)
		}
	}

	slog.Info("leaderboard consolidated",
		"scope", scope,
		"original", result.OriginalCount,
		"consolidated", result.ConsolidatedCount,
		"duplicates_removed", result.DuplicatesRemoved,
	)

	return result, nil
}

func decodeEntry(member string) (*models.LeaderboardEntry, error) {
	var entry models.LeaderboardEntry
	if err := json.Unmarshal([]byte(member), &entry); err != nil {
		return nil, fmt.Errorf("corrupt leaderboard entry: %w", err)
	}
	if entry.UserID == "" {
		return nil, errors.New("corrupt leaderboard entry: missing user id")
	}
	return &entry, nil
}
