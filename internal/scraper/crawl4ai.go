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

// Crawl4AIOptions points at a Crawl4AI server's REST API.
type Crawl4AIOptions struct {
	Enabled  bool
	BaseURL  string
	APIToken string
	Timeout  time.Duration
}

// Crawl4AIStrategy delegates navigation and markdown generation to a
// Crawl4AI server. When the server also returns the page HTML it is run
// through the element filter and preferred over the server's markdown.
type Crawl4AIStrategy struct {
	opts   Crawl4AIOptions
	client *http.Client
	filter *contentfilter.Filter
}

func NewCrawl4AIStrategy(opts Crawl4AIOptions, filter *contentfilter.Filter) *Crawl4AIStrategy {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if filter == nil {
		filter = contentfilter.Default()
	}
	// Rendering happens server side; allow for browser start-up on top of
	// the page timeout.
	return &Crawl4AIStrategy{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout + 30*time.Second},
		filter: filter,
	}
}

func (s *Crawl4AIStrategy) Name() string { return "Crawl4AI" }
func (s *Crawl4AIStrategy) Tag() string  { return "c4ai" }

func (s *Crawl4AIStrategy) Available() error {
	if !s.opts.Enabled || s.opts.BaseURL == "" {
		return fmt.Errorf("Crawl4AI %w", ErrUnavailable)
	}
	return nil
}

type crawlRequest struct {
	URLs          []string    `json:"urls"`
	BrowserConfig typedConfig `json:"browser_config"`
	CrawlerConfig typedConfig `json:"crawler_config"`
}

type typedConfig struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params"`
}

type crawlResponse struct {
	Success bool          `json:"success"`
	Results []crawlResult `json:"results"`
	Detail  any           `json:"detail"`
}

type crawlResult struct {
	URL          string          `json:"url"`
	Success      bool            `json:"success"`
	HTML         string          `json:"html"`
	Markdown     json.RawMessage `json:"markdown"`
	ErrorMessage string          `json:"error_message"`
}

// rawMarkdown accepts both the plain string and the object form
// ({"raw_markdown": ...}) of the markdown field.
func (r crawlResult) rawMarkdown() string {
	if len(r.Markdown) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Markdown, &s); err == nil {
		return s
	}
	var obj struct {
		RawMarkdown string `json:"raw_markdown"`
	}
	if err := json.Unmarshal(r.Markdown, &obj); err == nil {
		return obj.RawMarkdown
	}
	return ""
}

func (s *Crawl4AIStrategy) Fetch(ctx context.Context, rc *runctx.RunContext, rawURL string) model.ScrapeResult {
	if err := s.Available(); err != nil {
		return fail(rc, s, err)
	}
	rc.Logf("Crawl4AI: Fetching %s...", rawURL)

	u, err := parseTarget(rawURL)
	if err != nil {
		return fail(rc, s, err)
	}

	res, err := s.crawl(ctx, u.String())
	if err != nil {
		return fail(rc, s, err)
	}

	raw := res.rawMarkdown()
	if strings.TrimSpace(raw) == "" {
		return fail(rc, s, errors.New("No markdown content returned"))
	}

	text := raw
	if res.HTML != "" {
		reduced := s.filter.Reduce(res.HTML)
		if len(reduced) < s.filter.MinViableSize() {
			rc.Logf("   Filtered content too small, using raw markdown")
		} else {
			if filtered := contentfilter.ToText(reduced, u.Hostname()); filtered != "" {
				text = filtered
			}
			rc.Logf("   Filtered: %d -> %d chars", len(res.HTML), len(reduced))
		}
	}
	return finish(ctx, rc, s, u.String(), text)
}

func (s *Crawl4AIStrategy) crawl(ctx context.Context, target string) (*crawlResult, error) {
	payload := crawlRequest{
		URLs: []string{target},
		BrowserConfig: typedConfig{Type: "BrowserConfig", Params: map[string]any{
			"headless":        true,
			"viewport_width":  1920,
			"viewport_height": 1080,
			"verbose":         false,
		}},
		CrawlerConfig: typedConfig{Type: "CrawlerRunConfig", Params: map[string]any{
			"cache_mode":              "bypass",
			"remove_overlay_elements": true,
			"wait_for_images":         false,
			"page_timeout":            s.opts.Timeout.Milliseconds(),
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.BaseURL+"/crawl", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.opts.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.opts.APIToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Crawl failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read crawl response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(data), 300)}
	}

	var out crawlResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode crawl response: %w", err)
	}
	if len(out.Results) == 0 {
		return nil, errors.New("Crawl failed: empty result set")
	}
	r := out.Results[0]
	if !r.Success {
		msg := r.ErrorMessage
		if msg == "" {
			msg = "Unknown error"
		}
		return nil, fmt.Errorf("Crawl failed: %s", msg)
	}
	return &r, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
