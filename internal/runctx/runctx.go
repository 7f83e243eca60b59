// Package runctx carries the state scoped to a single extraction run: the
// operator-facing log, the artifact store and the credentials the run may
// use. A RunContext is created when a run starts and dropped when it ends.
package runctx

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"paxth/internal/artifacts"
)

// Credentials holds the secrets a run may need. Empty means not configured.
type Credentials struct {
	FirecrawlAPIKey string
	LLMAPIKey       string
}

// RunContext is passed to every component taking part in a run. All methods
// are safe on a nil receiver so components can be exercised in isolation.
type RunContext struct {
	ID          string
	Credentials Credentials

	artifacts artifacts.Store
	logger    *slog.Logger
	onLine    func(string)
	now       func() time.Time

	mu    sync.Mutex
	lines []string
}

// New builds a RunContext. store and logger may be nil.
func New(id string, store artifacts.Store, creds Credentials, logger *slog.Logger) *RunContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunContext{
		ID:          id,
		Credentials: creds,
		artifacts:   store,
		logger:      logger.With("component", "run", "run_id", id),
		now:         time.Now,
	}
}

// OnLine registers fn to receive every log line as it is produced.
func (rc *RunContext) OnLine(fn func(string)) *RunContext {
	if rc != nil {
		rc.onLine = fn
	}
	return rc
}

// Logf appends a line to the run log.
func (rc *RunContext) Logf(format string, args ...any) {
	if rc == nil {
		return
	}
	line := fmt.Sprintf(format, args...)

	rc.mu.Lock()
	rc.lines = append(rc.lines, line)
	hook := rc.onLine
	rc.mu.Unlock()

	rc.logger.Debug(line)
	if hook != nil {
		hook(line)
	}
}

// Lines returns a copy of the run log so far.
func (rc *RunContext) Lines() []string {
	if rc == nil {
		return nil
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]string(nil), rc.lines...)
}

// SaveArtifact persists normalized content fetched from rawURL and returns
// the generated name. Failures are logged and yield "": acquisition success
// never depends on persistence.
func (rc *RunContext) SaveArtifact(ctx context.Context, rawURL, method, tag, content string) string {
	if rc == nil || rc.artifacts == nil {
		return ""
	}
	at := rc.now()
	name := artifacts.Name(rawURL, tag, at)
	if err := rc.artifacts.Save(ctx, name, artifacts.Render(rawURL, method, at, content)); err != nil {
		rc.Logf("   Could not save markdown: %v", err)
		return ""
	}
	rc.Logf("   Saved to: %s", name)
	return name
}
