package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRoundViewHidesAnswer(t *testing.T) {
	round := GameRound{
		RoundNumber: 3,
		Category:    "landscapes",
		ImageA: ImageAsset{
			ID: "a1", URL: "https://cdn.example/a1.jpg", Category: "landscapes",
			IsSynthetic: true, Source: "gen-model-x", Description: "generated valley",
		},
		ImageB: ImageAsset{
			ID: "b1", URL: "https://cdn.example/b1.jpg", Category: "landscapes",
			Source: "photographer", Description: "real valley",
		},
		CorrectAnswer:     PositionB,
		SyntheticPosition: PositionA,
	}

	view := round.View()
	if view.RoundNumber != 3 || view.Category != "landscapes" {
		t.Errorf("view lost round metadata: %+v", view)
	}
	if view.ImageA.ID != "a1" || view.ImageB.URL != "https://cdn.example/b1.jpg" {
		t.Errorf("view lost image references: %+v", view)
	}

	data, err := json.Marshal(view)
	if err != nil {
		t.Fatalf("failed to marshal view: %v", err)
	}
	for _, leak := range []string{"is_synthetic", "correct_answer", "synthetic_position", "source", "description", "gen-model-x"} {
		if strings.Contains(string(data), leak) {
			t.Errorf("client view leaks %q: %s", leak, data)
		}
	}
}

func TestDateKeyIsUTC(t *testing.T) {
	// 2026-08-29T23:30-05:00 is already the 30th in UTC
	loc := time.FixedZone("UTC-5", -5*3600)
	stamp := time.Date(2026, 8, 29, 23, 30, 0, 0, loc)

	if got := DateKey(stamp); got != "2026-08-30" {
		t.Errorf("expected UTC date 2026-08-30, got %s", got)
	}
}

func TestDailyGameStateRound(t *testing.T) {
	state := DailyGameState{
		Date:   "2026-08-29",
		Rounds: []GameRound{{RoundNumber: 1}, {RoundNumber: 2}},
	}

	if r := state.Round(2); r == nil || r.RoundNumber != 2 {
		t.Errorf("expected round 2, got %+v", r)
	}
	if state.Round(0) != nil || state.Round(3) != nil {
		t.Error("out-of-range round numbers must return nil")
	}
}
