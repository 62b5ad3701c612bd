package models

import "time"

// Scope is a leaderboard time partition
type Scope string

const (
	ScopeDaily   Scope = "daily"
	ScopeWeekly  Scope = "weekly"
	ScopeAllTime Scope = "alltime"
)

// AllScopes lists every leaderboard scope a score is submitted to
var AllScopes = []Scope{ScopeDaily, ScopeWeekly, ScopeAllTime}

// IsValid returns true for a known scope
func (s Scope) IsValid() bool {
	return s == ScopeDaily || s == ScopeWeekly || s == ScopeAllTime
}

// LeaderboardEntry is one user's best result within a scope.
// At most one entry exists per (user, scope); its score is the maximum
// that user has ever submitted in the scope.
type LeaderboardEntry struct {
	UserID       string    `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	Score        int       `json:"score"`
	CorrectCount int       `json:"correct_count"`
	TimeBonus    int       `json:"time_bonus"`
	CompletedAt  time.Time `json:"completed_at"`
	Badge        Badge     `json:"badge,omitempty"`
}

// RankedEntry pairs an entry with its 1-based rank in a scope
type RankedEntry struct {
	Rank int `json:"rank"`
	LeaderboardEntry
}

// UserRank is the result of a rank lookup
type UserRank struct {
	UserID       string `json:"user_id"`
	Scope        Scope  `json:"scope"`
	Rank         int    `json:"rank"`
	Score        int    `json:"score"`
	Participants int64  `json:"participants"`
}

// ConsolidateResult reports what a leaderboard repair pass did
type ConsolidateResult struct {
	Scope             Scope `json:"scope"`
	OriginalCount     int   `json:"original_count"`
	ConsolidatedCount int   `json:"consolidated_count"`
	DuplicatesRemoved int   `json:"duplicates_removed"`
}
