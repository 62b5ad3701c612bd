package models

import "time"

// Badge is the award tier assigned when a session completes
type Badge string

const (
	BadgePerfect Badge = "perfect"
	BadgeExpert  Badge = "expert"
	BadgeSkilled Badge = "skilled"
	BadgeLearner Badge = "learner"
	BadgeNovice  Badge = "novice"
)

// BadgeForCorrectCount maps a completed session's correct count to a tier
func BadgeForCorrectCount(correct int) Badge {
	switch {
	case correct >= 6:
		return BadgePerfect
	case correct >= 5:
		return BadgeExpert
	case correct >= 4:
		return BadgeSkilled
	case correct >= 3:
		return BadgeLearner
	default:
		return BadgeNovice
	}
}

// RoundOutcome records one answered round within a session
type RoundOutcome struct {
	RoundNumber     int      `json:"round_number"`
	Answer          Position `json:"answer"`
	Correct         bool     `json:"correct"`
	TimeRemainingMs int      `json:"time_remaining_ms"`
	Score           int      `json:"score"`
}

// GameSession is one play-through of a day's rounds by one user.
// CurrentRound points at the next unanswered round; a session is never
// mutated after Completed flips to true.
type GameSession struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	DisplayName   string         `json:"display_name"`
	Date          string         `json:"date"`
	StartedAt     time.Time      `json:"started_at"`
	CurrentRound  int            `json:"current_round"`
	Outcomes      []RoundOutcome `json:"outcomes"`
	TotalScore    int            `json:"total_score"`
	CorrectCount  int            `json:"correct_count"`
	Completed     bool           `json:"completed"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	Badge         Badge          `json:"badge,omitempty"`
	AttemptNumber int            `json:"attempt_number"`
}

// UserPlayLimit tracks a user's attempts and best result for one day.
// AttemptsUsed only ever increases.
type UserPlayLimit struct {
	UserID        string       `json:"user_id"`
	Date          string       `json:"date"`
	AttemptsUsed  int          `json:"attempts_used"`
	MaxAttempts   int          `json:"max_attempts"`
	BestScore     int          `json:"best_score"`
	BestSession   *GameSession `json:"best_session,omitempty"`
}

// RemainingAttempts derives how many plays are left today
func (l *UserPlayLimit) RemainingAttempts() int {
	remaining := l.MaxAttempts - l.AttemptsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
