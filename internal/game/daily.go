package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/broadcast"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/catalog"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/models"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/storage"
)

// Common errors
var (
	ErrStateNotFound = errors.New("daily game state not found")
	ErrCorruptState  = errors.New("daily game state failed validation")
)

const (
	stateKeyPrefix        = "game:state:"
	participantsKeyPrefix = "game:participants:"

	// maxPositionImbalance is the largest tolerated synthetic-position
	// split difference before rounds are swapped back toward balance
	maxPositionImbalance = 3
)

// Manager builds and publishes the shared daily round set
type Manager struct {
	store     storage.Store
	catalog   catalog.Catalog
	publisher broadcast.Publisher
	stateTTL  time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewManager creates a daily game state manager. stateTTL should be
// slightly longer than 24h to absorb timezone skew at day boundaries.
func NewManager(store storage.Store, cat catalog.Catalog, publisher broadcast.Publisher, stateTTL time.Duration) *Manager {
	if stateTTL <= 0 {
		stateTTL = 26 * time.Hour
	}

	return &Manager{
		store:     store,
		catalog:   cat,
		publisher: publisher,
		stateTTL:  stateTTL,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func stateKey(date string) string {
	return stateKeyPrefix + date
}

func participantsKey(date string) string {
	return participantsKeyPrefix + date
}

// InitializeOrFetch returns the stored state for the date, building and
// persisting a fresh one if none exists. The check-then-create path is
// deliberately not locked: two concurrent misses may both generate a
// state and the last write wins, which is acceptable because both are
// structurally valid.
func (m *Manager) InitializeOrFetch(ctx context.Context, date string) (*models.DailyGameState, error) {
	raw, err := m.store.Get(ctx, stateKey(date))
	if err == nil {
		state, derr := m.decode(raw)
		if derr == nil {
			m.attachParticipants(ctx, state)
			return state, nil
		}
		// Corrupt stored state: log and regenerate rather than failing
		// deep in gameplay logic.
		slog.Error("stored daily state is corrupt, regenerating", "date", date, "error", derr)
	} else if !errors.Is(err, storage.ErrKeyNotFound) {
		return nil, fmt.Errorf("failed to read daily state: %w", err)
	}

	state, err := m.generate(date)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode daily state: %w", err)
	}

	if err := m.store.Set(ctx, stateKey(date), string(data), m.stateTTL); err != nil {
		return nil, fmt.Errorf("failed to persist daily state: %w", err)
	}

	slog.Info("daily game state generated",
		"date", date,
		"rounds", len(state.Rounds),
	)

	return state, nil
}

// Get returns the stored state for the date without generating one
func (m *Manager) Get(ctx context.Context, date string) (*models.DailyGameState, error) {
	raw, err := m.store.Get(ctx, stateKey(date))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read daily state: %w", err)
	}

	state, err := m.decode(raw)
	if err != nil {
		return nil, err
	}
	m.attachParticipants(ctx, state)
	return state, nil
}

// Reset retires any stored state for the date and publishes a fresh
// one. Used by the daily rollover and by admin tooling.
func (m *Manager) Reset(ctx context.Context, date string) (*models.DailyGameState, error) {
	if err := m.store.Delete(ctx, stateKey(date), participantsKey(date)); err != nil {
		return nil, fmt.Errorf("failed to delete daily state: %w", err)
	}

	state, err := m.InitializeOrFetch(ctx, date)
	if err != nil {
		return nil, err
	}

	m.publisher.Publish(ctx, broadcast.TopicNewDay, broadcast.NewDayEvent{Date: date})

	slog.Info("daily game state reset", "date", date)
	return state, nil
}

// IncrementParticipants counts one new session against the day
func (m *Manager) IncrementParticipants(ctx context.Context, date string) (int64, error) {
	count, err := m.store.IncrBy(ctx, participantsKey(date), 1)
	if err != nil {
		return 0, fmt.Errorf("failed to increment participants: %w", err)
	}
	// Counter expires alongside the state it belongs to
	if err := m.store.Expire(ctx, participantsKey(date), m.stateTTL); err != nil {
		slog.Warn("failed to set participants expiry", "date", date, "error", err)
	}
	return count, nil
}

// decode unmarshals and validates a stored state
func (m *Manager) decode(raw string) (*models.DailyGameState, error) {
	var state models.DailyGameState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if err := Validate(&state); err != nil {
		return nil, err
	}
	return &state, nil
}

// attachParticipants merges the live counter into the loaded state
func (m *Manager) attachParticipants(ctx context.Context, state *models.DailyGameState) {
	raw, err := m.store.Get(ctx, participantsKey(state.Date))
	if err != nil {
		return
	}
	var count int64
	if _, err := fmt.Sscanf(raw, "%d", &count); err == nil && count >= 0 {
		state.ParticipantCount = count
	}
}

// generate builds and validates a complete round set for the date
func (m *Manager) generate(date string) (*models.DailyGameState, error) {
	if err := catalog.Validate(m.catalog); err != nil {
		return nil, err
	}

	order := m.generateCategoryOrder()

	rounds, err := m.buildDailyRounds(order)
	if err != nil {
		return nil, err
	}

	state := &models.DailyGameState{
		Date:             date,
		Rounds:           rounds,
		ParticipantCount: 0,
		GeneratedAt:      time.Now().UTC(),
	}

	if err := Validate(state); err != nil {
		return nil, fmt.Errorf("generated state failed validation: %w", err)
	}

	return state, nil
}

// generateCategoryOrder returns a full Fisher-Yates permutation of the
// category universe
func (m *Manager) generateCategoryOrder() []string {
	order := m.catalog.Categories()

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(order) - 1; i > 0; i-- {
		j := m.rng.Intn(i + 1)
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// selectPair picks one synthetic and one authentic asset from a category
func (m *Manager) selectPair(category string) (synthetic, authentic models.ImageAsset, err error) {
	synthetics := m.catalog.Assets(category, true)
	authentics := m.catalog.Assets(category, false)

	if len(synthetics) == 0 || len(authentics) == 0 {
		return models.ImageAsset{}, models.ImageAsset{}, fmt.Errorf("%w: %s", catalog.ErrCategoryUnavailable, category)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return synthetics[m.rng.Intn(len(synthetics))], authentics[m.rng.Intn(len(authentics))], nil
}

// buildRound assembles one round with a fair coin flip deciding which
// position holds the synthetic image
func (m *Manager) buildRound(category string, roundNumber int) (models.GameRound, error) {
	synthetic, authentic, err := m.selectPair(category)
	if err != nil {
		return models.GameRound{}, err
	}

	m.mu.Lock()
	syntheticOnA := m.rng.Intn(2) == 0
	m.mu.Unlock()

	round := models.GameRound{
		RoundNumber: roundNumber,
		Category:    category,
	}

	if syntheticOnA {
		round.ImageA = synthetic
		round.ImageB = authentic
		round.SyntheticPosition = models.PositionA
		round.CorrectAnswer = models.PositionB
	} else {
		round.ImageA = authentic
		round.ImageB = synthetic
		round.SyntheticPosition = models.PositionB
		round.CorrectAnswer = models.PositionA
	}

	return round, nil
}

// buildDailyRounds builds one round per category for the first six
// categories of the order, then rebalances the synthetic-position split.
func (m *Manager) buildDailyRounds(categoryOrder []string) ([]models.GameRound, error) {
	if len(categoryOrder) < models.RoundsPerDay {
		return nil, fmt.Errorf("need %d categories, catalog has %d", models.RoundsPerDay, len(categoryOrder))
	}

	rounds := make([]models.GameRound, 0, models.RoundsPerDay)
	for i := 0; i < models.RoundsPerDay; i++ {
		round, err := m.buildRound(categoryOrder[i], i+1)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, round)
	}

	rebalance(rounds)
	return rounds, nil
}

// rebalance swaps rounds' image order when coin flips landed too
// lopsided, so the synthetic split across the day is no worse than 4-2
func rebalance(rounds []models.GameRound) {
	onA := 0
	for i := range rounds {
		if rounds[i].SyntheticPosition == models.PositionA {
			onA++
		}
	}
	onB := len(rounds) - onA

	diff := onA - onB
	if diff < 0 {
		diff = -diff
	}
	if diff <= maxPositionImbalance {
		return
	}

	swaps := (diff - 2) / 2
	majority := models.PositionA
	if onB > onA {
		majority = models.PositionB
	}

	for i := range rounds {
		if swaps == 0 {
			break
		}
		if rounds[i].SyntheticPosition == majority {
			swapRound(&rounds[i])
			swaps--
		}
	}
}

// swapRound flips a round's image order and its answer bookkeeping
func swapRound(r *models.GameRound) {
	r.ImageA, r.ImageB = r.ImageB, r.ImageA
	r.SyntheticPosition = r.SyntheticPosition.Opposite()
	r.CorrectAnswer = r.CorrectAnswer.Opposite()
}

// Validate checks a state's structural invariants. Run after generation
// and whenever a state is loaded from storage.
func Validate(state *models.DailyGameState) error {
	if state == nil {
		return fmt.Errorf("%w: nil state", ErrCorruptState)
	}

	if _, err := time.Parse("2006-01-02", state.Date); err != nil {
		return fmt.Errorf("%w: bad date %q", ErrCorruptState, state.Date)
	}

	if len(state.Rounds) != models.RoundsPerDay {
		return fmt.Errorf("%w: %d rounds, want %d", ErrCorruptState, len(state.Rounds), models.RoundsPerDay)
	}

	if state.ParticipantCount < 0 {
		return fmt.Errorf("%w: negative participant count", ErrCorruptState)
	}

	seen := make(map[string]bool, len(state.Rounds))
	for i := range state.Rounds {
		r := &state.Rounds[i]

		if r.RoundNumber != i+1 {
			return fmt.Errorf("%w: round %d numbered %d", ErrCorruptState, i+1, r.RoundNumber)
		}
		if r.ImageA.ID == "" || r.ImageB.ID == "" {
			return fmt.Errorf("%w: round %d missing an image", ErrCorruptState, r.RoundNumber)
		}
		if !r.CorrectAnswer.IsValid() {
			return fmt.Errorf("%w: round %d has answer %q", ErrCorruptState, r.RoundNumber, r.CorrectAnswer)
		}
		if r.SyntheticPosition != r.CorrectAnswer.Opposite() {
			return fmt.Errorf("%w: round %d synthetic position inconsistent", ErrCorruptState, r.RoundNumber)
		}
		if r.ImageA.IsSynthetic == r.ImageB.IsSynthetic {
			return fmt.Errorf("%w: round %d needs exactly one synthetic image", ErrCorruptState, r.RoundNumber)
		}
		syntheticIsA := r.ImageA.IsSynthetic
		if (r.SyntheticPosition == models.PositionA) != syntheticIsA {
			return fmt.Errorf("%w: round %d synthetic position does not match images", ErrCorruptState, r.RoundNumber)
		}
		if seen[r.Category] {
			return fmt.Errorf("%w: duplicate category %q", ErrCorruptState, r.Category)
		}
		seen[r.Category] = true
	}

	return nil
}
