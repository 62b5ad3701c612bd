package rollover

import (
	"context"
	"log/slog"
	"time"

	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/game"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/leaderboard"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/models"
)

// Worker handles the daily rollover and periodic leaderboard repair.
// At each UTC day boundary it publishes a fresh round set; on a longer
// interval it runs the consolidation pass over the expiring scopes.
type Worker struct {
	game                *game.Manager
	boards              *leaderboard.Manager
	checkInterval       time.Duration
	consolidateInterval time.Duration
}

// NewWorker creates a rollover worker
func NewWorker(gm *game.Manager, boards *leaderboard.Manager, checkInterval, consolidateInterval time.Duration) *Worker {
	if checkInterval <= 0 {
		checkInterval = time.Minute
	}
	if consolidateInterval <= 0 {
		consolidateInterval = 15 * time.Minute
	}

	return &Worker{
		game:                gm,
		boards:              boards,
		checkInterval:       checkInterval,
		consolidateInterval: consolidateInterval,
	}
}

// Start begins the worker in a goroutine
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

// run is the main loop for the rollover worker
func (w *Worker) run(ctx context.Context) {
	slog.Info("rollover worker started",
		"check_interval", w.checkInterval,
		"consolidate_interval", w.consolidateInterval,
	)

	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	consolidateTicker := time.NewTicker(w.consolidateInterval)
	defer consolidateTicker.Stop()

	currentDate := models.DateKey(time.Now())

	for {
		select {
		case <-ctx.Done():
			slog.Info("rollover worker stopped")
			return
		case <-ticker.C:
			currentDate = w.checkRollover(ctx, currentDate)
		case <-consolidateTicker.C:
			w.consolidate(ctx)
		}
	}
}

// checkRollover publishes a fresh round set when the UTC date changes
func (w *Worker) checkRollover(ctx context.Context, lastDate string) string {
	date := models.DateKey(time.Now())
	if date == lastDate {
		return lastDate
	}

	slog.Info("day rollover detected", "from", lastDate, "to", date)

	if _, err := w.game.Reset(ctx, date); err != nil {
		slog.Error("failed to roll over daily state", "date", date, "error", err)
		// Leave lastDate unchanged so the next tick retries
		return lastDate
	}

	return date
}

// consolidate repairs duplicate entries in the expiring scopes. The
// all-time scope is repaired via the admin endpoint when needed.
func (w *Worker) consolidate(ctx context.Context) {
	for _, scope := range []models.Scope{models.ScopeDaily, models.ScopeWeekly} {
		result, err := w.boards.Consolidate(ctx, scope)
		if err != nil {
			slog.Error("leaderboard consolidation failed", "scope", scope, "error", err)
			continue
		}
		if result.DuplicatesRemoved > 0 {
			slog.Info("removed duplicate leaderboard entries",
				"scope", scope,
				"removed", result.DuplicatesRemoved,
			)
		}
	}
}
