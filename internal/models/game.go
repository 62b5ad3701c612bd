package models

import "time"

// RoundsPerDay is the fixed number of rounds in a daily game
const RoundsPerDay = 6

// GameRound is one image pair of the daily set. Exactly one of
// ImageA/ImageB is synthetic; CorrectAnswer is the position of the
// authentic image and SyntheticPosition its complement.
type GameRound struct {
	RoundNumber       int        `json:"round_number"`
	Category          string     `json:"category"`
	ImageA            ImageAsset `json:"image_a"`
	ImageB            ImageAsset `json:"image_b"`
	CorrectAnswer     Position   `json:"correct_answer"`
	SyntheticPosition Position   `json:"synthetic_position"`
}

// AssetView is the client-safe projection of an asset. It must never
// carry the synthetic flag or provenance fields, which would give the
// answer away.
type AssetView struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// RoundView is the client-safe projection of a round, without the answer
type RoundView struct {
	RoundNumber int       `json:"round_number"`
	Category    string    `json:"category"`
	ImageA      AssetView `json:"image_a"`
	ImageB      AssetView `json:"image_b"`
}

// View strips the answer fields for delivery to players
func (r *GameRound) View() RoundView {
	return RoundView{
		RoundNumber: r.RoundNumber,
		Category:    r.Category,
		ImageA:      AssetView{ID: r.ImageA.ID, URL: r.ImageA.URL},
		ImageB:      AssetView{ID: r.ImageB.ID, URL: r.ImageB.URL},
	}
}

// DailyGameState is the shared round set for one calendar day.
// Created once per date (first request to observe it missing builds it),
// superseded at the next-day rollover.
type DailyGameState struct {
	Date             string      `json:"date"` // YYYY-MM-DD (UTC)
	Rounds           []GameRound `json:"rounds"`
	ParticipantCount int64       `json:"participant_count"`
	GeneratedAt      time.Time   `json:"generated_at"`
}

// Round returns the round with the given 1-based number, or nil
func (s *DailyGameState) Round(n int) *GameRound {
	if n < 1 || n > len(s.Rounds) {
		return nil
	}
	return &s.Rounds[n-1]
}

// DateKey formats a time as the canonical daily state key
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
