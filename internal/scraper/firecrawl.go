package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"paxth/internal/contentfilter"
	"paxth/internal/model"
	"paxth/internal/runctx"
)

// DefaultFirecrawlBaseURL is the hosted Firecrawl API root.
const DefaultFirecrawlBaseURL = "https://api.firecrawl.dev/v1"

// FirecrawlOptions configures the hosted scraping API variant. APIKey is the
// fallback when the run carries no Firecrawl credential.
type FirecrawlOptions struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// FirecrawlStrategy asks a Firecrawl-compatible endpoint for markdown and
// strips noise sections from it line by line.
type FirecrawlStrategy struct {
	opts   FirecrawlOptions
	client *http.Client
	filter *contentfilter.Filter
}

func NewFirecrawlStrategy(opts FirecrawlOptions, filter *contentfilter.Filter) *FirecrawlStrategy {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultFirecrawlBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if filter == nil {
		filter = contentfilter.Default()
	}
	return &FirecrawlStrategy{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		filter: filter,
	}
}

func (s *FirecrawlStrategy) Name() string { return "Firecrawl" }
func (s *FirecrawlStrategy) Tag() string  { return "fc" }

// Available is always nil: a missing key is reported per call as a
// configuration failure rather than skipping the variant.
func (s *FirecrawlStrategy) Available() error { return nil }

type firecrawlRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
}

type firecrawlResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Markdown string `json:"markdown"`
	} `json:"data"`
	Error string `json:"error"`
}

func (s *FirecrawlStrategy) apiKey(rc *runctx.RunContext) string {
	if rc != nil && rc.Credentials.FirecrawlAPIKey != "" {
		return rc.Credentials.FirecrawlAPIKey
	}
	return s.opts.APIKey
}

func (s *FirecrawlStrategy) Fetch(ctx context.Context, rc *runctx.RunContext, rawURL string) model.ScrapeResult {
	key := s.apiKey(rc)
	if key == "" {
		return fail(rc, s, fmt.Errorf("Firecrawl API key %w", ErrNotConfigured))
	}
	rc.Logf("Firecrawl: Starting scrape for %s", rawURL)

	u, err := parseTarget(rawURL)
	if err != nil {
		return fail(rc, s, err)
	}

	var lastErr error
	for attempt := 0; attempt < s.opts.MaxRetries; attempt++ {
		rc.Logf("   Attempt %d/%d...", attempt+1, s.opts.MaxRetries)

		raw, err := s.scrape(ctx, key, u.String())
		if err == nil {
			text := s.filter.FilterSections(raw)
			rc.Logf("   Filtered: %d -> %d chars", len(raw), len(text))
			return finish(ctx, rc, s, u.String(), text)
		}

		lastErr = err
		if isTimeout(err) {
			rc.Logf("   Firecrawl: Timeout on attempt %d", attempt+1)
		} else {
			rc.Logf("   Firecrawl: Error - %v", err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return fail(rc, s, lastErr)
}

func (s *FirecrawlStrategy) scrape(ctx context.Context, key, target string) (string, error) {
	body, err := json.Marshal(firecrawlRequest{URL: target, Formats: []string{"markdown"}})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.BaseURL+"/scrape", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("Request timeout: %w", err)
		}
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Code: resp.StatusCode, Body: truncate(strings.TrimSpace(string(data)), 300)}
	}

	var out firecrawlResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Data.Markdown == "" && out.Error != "" {
		return "", errors.New(out.Error)
	}
	return out.Data.Markdown, nil
}
