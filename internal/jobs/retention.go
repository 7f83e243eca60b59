package jobs

import (
	"context"
	"log/slog"
	"time"

	"paxth/internal/config"
	"paxth/internal/metrics"
)

// RunPurger deletes stored runs older than a cutoff.
type RunPurger interface {
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionStats captures the number of records deleted by TTL cleanup.
type RetentionStats struct {
	RunsDeleted int64     `json:"runsDeleted"`
	Cutoff      time.Time `json:"cutoff"`
}

// CleanupExpiredRuns deletes runs older than the configured retention so
// that the run history does not grow without bound.
func CleanupExpiredRuns(ctx context.Context, cfg config.RetentionConfig, st RunPurger, now time.Time) (RetentionStats, error) {
	if !cfg.Enabled || cfg.RunDays <= 0 || st == nil {
		return RetentionStats{}, nil
	}
	stats := RetentionStats{Cutoff: now.UTC().AddDate(0, 0, -cfg.RunDays)}
	n, err := st.DeleteRunsBefore(ctx, stats.Cutoff)
	if err != nil {
		return stats, err
	}
	stats.RunsDeleted = n
	if n > 0 {
		metrics.RecordRetentionRuns(n)
	}
	return stats, nil
}

// Sweeper runs CleanupExpiredRuns on a fixed interval.
type Sweeper struct {
	cfg    config.RetentionConfig
	store  RunPurger
	logger *slog.Logger
	now    func() time.Time
}

func NewSweeper(cfg config.RetentionConfig, st RunPurger, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{cfg: cfg, store: st, logger: logger.With("component", "retention"), now: time.Now}
}

// Start blocks until ctx is done. The first sweep happens immediately.
// Callers typically run this in its own goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}
	interval := time.Duration(s.cfg.CleanupIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	stats, err := CleanupExpiredRuns(ctx, s.cfg, s.store, s.now())
	if err != nil {
		s.logger.Warn("retention cleanup failed", "error", err)
		return
	}
	if stats.RunsDeleted > 0 {
		s.logger.Info("retention cleanup", "runs_deleted", stats.RunsDeleted, "cutoff", stats.Cutoff)
	}
}
