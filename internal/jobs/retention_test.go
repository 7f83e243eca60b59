package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paxth/internal/config"
	"paxth/internal/metrics"
)

type fakePurger struct {
	cutoffs []time.Time
	n       int64
	err     error
}

func (f *fakePurger) DeleteRunsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.n, f.err
}

func TestCleanupExpiredRuns(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	p := &fakePurger{n: 3}

	stats, err := CleanupExpiredRuns(context.Background(), config.RetentionConfig{Enabled: true, RunDays: 30}, p, now)

	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.RunsDeleted)
	assert.Equal(t, []time.Time{time.Date(2026, 9, 15, 9, 0, 0, 0, time.UTC)}, p.cutoffs)
	assert.True(t, strings.Contains(metrics.Export(), "paxth_retention_runs_deleted_total"))
}

func TestCleanupExpiredRuns_Disabled(t *testing.T) {
	p := &fakePurger{n: 3}

	stats, err := CleanupExpiredRuns(context.Background(), config.RetentionConfig{RunDays: 30}, p, time.Now())

	require.NoError(t, err)
	assert.Zero(t, stats.RunsDeleted)
	assert.Empty(t, p.cutoffs)
}

func TestCleanupExpiredRuns_Error(t *testing.T) {
	p := &fakePurger{err: errors.New("db down")}

	_, err := CleanupExpiredRuns(context.Background(), config.RetentionConfig{Enabled: true, RunDays: 1}, p, time.Now())

	assert.ErrorContains(t, err, "db down")
}

func TestSweeper_StopsWithContext(t *testing.T) {
	p := &fakePurger{}
	s := NewSweeper(config.RetentionConfig{Enabled: true, RunDays: 7, CleanupIntervalMinutes: 60}, p, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
	assert.Len(t, p.cutoffs, 1)
}
