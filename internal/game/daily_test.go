package game

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/broadcast"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/catalog"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/models"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/storage"
)

type recordingPublisher struct {
	topics []string
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, payload interface{}) {
	p.topics = append(p.topics, topic)
}

func testAssets() []models.ImageAsset {
	categories := []string{"animals", "architecture", "art", "faces", "food", "landscapes", "vehicles"}

	var assets []models.ImageAsset
	for _, cat := range categories {
		for i := 1; i <= 3; i++ {
			assets = append(assets,
				models.ImageAsset{
					ID:          fmt.Sprintf("%s-synth-%d", cat, i),
					URL:         fmt.Sprintf("https://assets.example/%s/synth-%d.jpg", cat, i),
					Category:    cat,
					IsSynthetic: true,
				},
				models.ImageAsset{
					ID:          fmt.Sprintf("%s-real-%d", cat, i),
					URL:         fmt.Sprintf("https://assets.example/%s/real-%d.jpg", cat, i),
					Category:    cat,
					IsSynthetic: false,
				},
			)
		}
	}
	return assets
}

func newTestManager(t *testing.T) (*Manager, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	m := NewManager(storage.NewMemoryStore(), catalog.NewStaticCatalog(testAssets()), pub, 26*time.Hour)
	return m, pub
}

func TestGenerateDailyState(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	// Generation is randomized; check the invariants over many states
	for i := 0; i < 50; i++ {
		date := fmt.Sprintf("2026-03-%02d", i%28+1)
		state, err := m.InitializeOrFetch(ctx, date)
		if err != nil {
			t.Fatalf("InitializeOrFetch failed: %v", err)
		}

		if len(state.Rounds) != models.RoundsPerDay {
			t.Fatalf("expected %d rounds, got %d", models.RoundsPerDay, len(state.Rounds))
		}

		seen := make(map[string]bool)
		onA := 0
		for _, r := range state.Rounds {
			if seen[r.Category] {
				t.Errorf("duplicate category %q", r.Category)
			}
			seen[r.Category] = true

			if r.ImageA.IsSynthetic == r.ImageB.IsSynthetic {
				t.Errorf("round %d does not have exactly one synthetic image", r.RoundNumber)
			}
			if r.SyntheticPosition != r.CorrectAnswer.Opposite() {
				t.Errorf("round %d synthetic position inconsistent with answer", r.RoundNumber)
			}
			if r.SyntheticPosition == models.PositionA {
				onA++
			}
		}

		onB := models.RoundsPerDay - onA
		diff := onA - onB
		if diff < 0 {
			diff = -diff
		}
		if diff > 2 {
			t.Errorf("synthetic split %d-%d is worse than 4-2", onA, onB)
		}

		// Clean up so each iteration generates fresh
		if err := m.store.Delete(ctx, stateKey(date)); err != nil {
			t.Fatalf("cleanup failed: %v", err)
		}
	}
}

func TestInitializeOrFetchIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.InitializeOrFetch(ctx, "2026-03-01")
	if err != nil {
		t.Fatalf("first InitializeOrFetch failed: %v", err)
	}

	second, err := m.InitializeOrFetch(ctx, "2026-03-01")
	if err != nil {
		t.Fatalf("second InitializeOrFetch failed: %v", err)
	}

	for i := range first.Rounds {
		if first.Rounds[i].ImageA.ID != second.Rounds[i].ImageA.ID ||
			first.Rounds[i].ImageB.ID != second.Rounds[i].ImageB.ID {
			t.Fatalf("round %d changed between fetches", i+1)
		}
	}
}

func TestGetWithoutStateReturnsNotFound(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Get(context.Background(), "2026-03-02")
	if err != ErrStateNotFound {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
}

func TestResetPublishesNewDay(t *testing.T) {
	m, pub := newTestManager(t)
	ctx := context.Background()

	before, err := m.InitializeOrFetch(ctx, "2026-03-03")
	if err != nil {
		t.Fatalf("InitializeOrFetch failed: %v", err)
	}

	if _, err := m.IncrementParticipants(ctx, "2026-03-03"); err != nil {
		t.Fatalf("IncrementParticipants failed: %v", err)
	}

	after, err := m.Reset(ctx, "2026-03-03")
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	if after.ParticipantCount != 0 {
		t.Errorf("expected participant count reset to 0, got %d", after.ParticipantCount)
	}

	if len(pub.topics) != 1 || pub.topics[0] != broadcast.TopicNewDay {
		t.Errorf("expected one new-day broadcast, got %v", pub.topics)
	}

	// Both states must be valid even though regeneration is randomized
	if err := Validate(before); err != nil {
		t.Errorf("state before reset invalid: %v", err)
	}
	if err := Validate(after); err != nil {
		t.Errorf("state after reset invalid: %v", err)
	}
}

func TestIncrementParticipants(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.InitializeOrFetch(ctx, "2026-03-04"); err != nil {
		t.Fatalf("InitializeOrFetch failed: %v", err)
	}

	for i := 1; i <= 3; i++ {
		count, err := m.IncrementParticipants(ctx, "2026-03-04")
		if err != nil {
			t.Fatalf("IncrementParticipants failed: %v", err)
		}
		if count != int64(i) {
			t.Errorf("expected count %d, got %d", i, count)
		}
	}

	state, err := m.Get(ctx, "2026-03-04")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if state.ParticipantCount != 3 {
		t.Errorf("expected 3 participants on loaded state, got %d", state.ParticipantCount)
	}
}

func TestRebalance(t *testing.T) {
	synth := models.ImageAsset{ID: "s", IsSynthetic: true}
	authentic := models.ImageAsset{ID: "r"}

	allOnA := func() []models.GameRound {
		rounds := make([]models.GameRound, models.RoundsPerDay)
		for i := range rounds {
			rounds[i] = models.GameRound{
				RoundNumber:       i + 1,
				Category:          fmt.Sprintf("cat-%d", i),
				ImageA:            synth,
				ImageB:            authentic,
				SyntheticPosition: models.PositionA,
				CorrectAnswer:     models.PositionB,
			}
		}
		return rounds
	}

	t.Run("six-zero split becomes four-two", func(t *testing.T) {
		rounds := allOnA()
		rebalance(rounds)

		onA := 0
		for _, r := range rounds {
			if r.SyntheticPosition == models.PositionA {
				onA++
			}
			// Swapped rounds must stay internally consistent
			if r.SyntheticPosition == models.PositionA && !r.ImageA.IsSynthetic {
				t.Errorf("round %d images not swapped with position", r.RoundNumber)
			}
			if r.SyntheticPosition != r.CorrectAnswer.Opposite() {
				t.Errorf("round %d answer not flipped", r.RoundNumber)
			}
		}
		if onA != 4 {
			t.Errorf("expected 4-2 split, got %d-%d", onA, models.RoundsPerDay-onA)
		}
	})

	t.Run("four-two split untouched", func(t *testing.T) {
		rounds := allOnA()
		swapRound(&rounds[0])
		swapRound(&rounds[1])

		rebalance(rounds)

		onA := 0
		for _, r := range rounds {
			if r.SyntheticPosition == models.PositionA {
				onA++
			}
		}
		if onA != 4 {
			t.Errorf("expected split left at 4-2, got %d-%d", onA, models.RoundsPerDay-onA)
		}
	})
}

func TestValidateRejectsCorruptStates(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	state, err := m.InitializeOrFetch(ctx, "2026-03-05")
	if err != nil {
		t.Fatalf("InitializeOrFetch failed: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(s *models.DailyGameState)
	}{
		{"bad date", func(s *models.DailyGameState) { s.Date = "03/05/2026" }},
		{"missing round", func(s *models.DailyGameState) { s.Rounds = s.Rounds[:5] }},
		{"negative participants", func(s *models.DailyGameState) { s.ParticipantCount = -1 }},
		{"both synthetic", func(s *models.DailyGameState) {
			s.Rounds[0].ImageA.IsSynthetic = true
			s.Rounds[0].ImageB.IsSynthetic = true
		}},
		{"bad answer", func(s *models.DailyGameState) { s.Rounds[2].CorrectAnswer = "C" }},
		{"duplicate category", func(s *models.DailyGameState) { s.Rounds[1].Category = s.Rounds[0].Category }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			copied := *state
			copied.Rounds = make([]models.GameRound, len(state.Rounds))
			copy(copied.Rounds, state.Rounds)

			tc.mutate(&copied)

			if err := Validate(&copied); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestGenerateFailsWhenCategoryEmpty(t *testing.T) {
	// Drop every synthetic asset from one category
	var assets []models.ImageAsset
	for _, a := range testAssets() {
		if a.Category == "animals" && a.IsSynthetic {
			continue
		}
		assets = append(assets, a)
	}

	m := NewManager(storage.NewMemoryStore(), catalog.NewStaticCatalog(assets), broadcast.NopPublisher{}, 26*time.Hour)

	_, err := m.InitializeOrFetch(context.Background(), "2026-03-06")
	if err == nil {
		t.Fatal("expected catalog validation error, got nil")
	}
}
