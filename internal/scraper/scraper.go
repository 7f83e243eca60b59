package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"paxth/internal/contentfilter"
	"paxth/internal/model"
	"paxth/internal/runctx"
)

var (
	// ErrUnavailable reports that a variant's runtime dependency (browser,
	// crawler service) is not present.
	ErrUnavailable = errors.New("service not available")
	// ErrNotConfigured reports a missing credential.
	ErrNotConfigured = errors.New("not configured")
	// ErrEmptyURL is returned for blank URLs before any variant runs.
	ErrEmptyURL = errors.New("Empty URL")
)

// Strategy fetches one URL and normalizes it to markdown-like text.
//
// Fetch never returns an error: every failure is folded into a failed
// ScrapeResult and reported through the run log.
type Strategy interface {
	// Name is the operator-facing label used in logs and artifact headers.
	Name() string
	// Tag is the short suffix used in artifact names.
	Tag() string
	// Available returns nil when the variant can run in this process.
	Available() error
	Fetch(ctx context.Context, rc *runctx.RunContext, rawURL string) model.ScrapeResult
}

// StatusError is a non-2xx response from a target or remote service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	switch e.Code {
	case 403:
		return "403 Forbidden - Site may be blocking requests"
	case 429:
		return "429 Too Many Requests - Rate limited"
	case 503:
		return "503 Service Unavailable - May need retry"
	}
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.Code)
}

// Retryable reports whether the status is worth another attempt: blocking
// and throttling codes plus server errors. Other client errors are final.
func (e *StatusError) Retryable() bool {
	switch {
	case e.Code == 403, e.Code == 429:
		return true
	case e.Code >= 500:
		return true
	default:
		return false
	}
}

// permanent reports whether err should stop a retry loop immediately.
func permanent(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return !se.Retryable()
	}
	var pe *permanentError
	return errors.As(err, &pe)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// parseTarget validates a fetch URL, defaulting the scheme to https.
func parseTarget(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, ErrEmptyURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &permanentError{fmt.Errorf("invalid URL: %w", err)}
	}
	if u.Scheme == "" {
		u, err = url.Parse("https://" + rawURL)
		if err != nil {
			return nil, &permanentError{fmt.Errorf("invalid URL: %w", err)}
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &permanentError{fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return nil, &permanentError{errors.New("invalid URL: missing host")}
	}
	return u, nil
}

// markupToText runs the element filter with its size guard and converts the
// reduced markup to text.
func markupToText(rc *runctx.RunContext, f *contentfilter.Filter, rawHTML, domain string) string {
	reduced, fellBack := f.ReduceOrMinimal(rawHTML)
	if fellBack {
		rc.Logf("   Filtered content too small, using minimal filtering...")
	}
	rc.Logf("   Filtered HTML: %d -> %d chars", len(rawHTML), len(reduced))
	return contentfilter.ToText(reduced, domain)
}

// finish turns normalized text into a result and persists it. target is the
// parsed URL so scheme-less input still yields a domain in the artifact name.
func finish(ctx context.Context, rc *runctx.RunContext, s Strategy, target, text string) model.ScrapeResult {
	res := model.Succeeded(text)
	res.Strategy = s.Name()
	if !res.Success {
		rc.Logf("%s: Failed - %s", s.Name(), res.Error)
		return res
	}
	rc.Logf("%s: Successfully scraped %d chars", s.Name(), len(text))
	res.ArtifactName = rc.SaveArtifact(ctx, target, s.Name(), s.Tag(), text)
	return res
}

func fail(rc *runctx.RunContext, s Strategy, err error) model.ScrapeResult {
	rc.Logf("%s: Failed - %v", s.Name(), err)
	res := model.Failed(err.Error())
	res.Strategy = s.Name()
	return res
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
