package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	robotstxt "github.com/temoto/robotstxt"

	"paxth/internal/contentfilter"
	"paxth/internal/model"
	"paxth/internal/runctx"
)

// maxBodyBytes bounds how much of a page is read.
const maxBodyBytes = 20 << 20

// HTTPStrategy fetches a page with a single GET per attempt, rotating
// browser-like headers and backing off exponentially between attempts.
type HTTPStrategy struct {
	client *http.Client
	opts   HTTPOptions
	filter *contentfilter.Filter

	// sleep is swapped in tests to avoid real backoff delays.
	sleep func(context.Context, time.Duration) error
}

func NewHTTPStrategy(opts HTTPOptions, filter *contentfilter.Filter) *HTTPStrategy {
	opts = opts.withDefaults()
	if filter == nil {
		filter = contentfilter.Default()
	}
	return &HTTPStrategy{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		filter: filter,
		sleep:  sleepCtx,
	}
}

func (s *HTTPStrategy) Name() string     { return "HTTP" }
func (s *HTTPStrategy) Tag() string      { return "bs4" }
func (s *HTTPStrategy) Available() error { return nil }

func (s *HTTPStrategy) Fetch(ctx context.Context, rc *runctx.RunContext, rawURL string) model.ScrapeResult {
	rc.Logf("HTTP: Starting scrape for %s", rawURL)

	u, err := parseTarget(rawURL)
	if err != nil {
		return fail(rc, s, err)
	}

	if s.opts.RespectRobots {
		if err := s.checkRobots(ctx, u); err != nil {
			return fail(rc, s, err)
		}
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := s.opts.BackoffBase * time.Duration(1<<attempt)
			rc.Logf("   Retry %d/%d after %s...", attempt+1, s.opts.MaxRetries, wait)
			if err := s.sleep(ctx, wait); err != nil {
				lastErr = err
				break
			}
		}

		attempts++
		body, err := s.get(ctx, u)
		if err == nil {
			text := markupToText(rc, s.filter, body, u.Hostname())
			return finish(ctx, rc, s, u.String(), text)
		}

		lastErr = err
		rc.Logf("   Error on attempt %d: %v", attempt+1, err)
		if permanent(err) || ctx.Err() != nil {
			break
		}
	}

	rc.Logf("HTTP: Failed after %d attempts - %v", attempts, lastErr)
	res := model.Failed(lastErr.Error())
	res.Strategy = s.Name()
	return res
}

func (s *HTTPStrategy) get(ctx context.Context, u *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", &permanentError{err}
	}
	for k, v := range BrowserHeaders(u, pickUserAgent(s.opts.UserAgents)) {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("Request timed out: %w", err)
		}
		return "", fmt.Errorf("Connection error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &StatusError{Code: resp.StatusCode}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return strings.ToValidUTF8(string(b), ""), nil
}

func (s *HTTPStrategy) checkRobots(ctx context.Context, u *url.URL) error {
	ua := pickUserAgent(s.opts.UserAgents)
	robots, err := fetchRobots(ctx, s.client, u, ua)
	if err != nil {
		// Missing or unreachable robots.txt allows the fetch.
		return nil
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if !robots.TestAgent(path, ua) {
		return &permanentError{fmt.Errorf("disallowed by robots.txt: %s", u.String())}
	}
	return nil
}

func fetchRobots(ctx context.Context, client *http.Client, base *url.URL, userAgent string) (*robotstxt.RobotsData, error) {
	robotsURL := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/robots.txt"}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("non-200 robots.txt")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return nil, err
	}
	return robotstxt.FromStatusAndBytes(resp.StatusCode, body)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
