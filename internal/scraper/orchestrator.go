package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"paxth/internal/model"
	"paxth/internal/runctx"
)

// Observer is notified after every variant attempt. It lets the metrics
// layer count attempts without the orchestrator knowing about it.
type Observer func(strategy string, res model.ScrapeResult)

// Orchestrator picks a variant per URL: an explicit method dispatches
// directly, MethodAuto walks the fallback chain.
type Orchestrator struct {
	byMethod map[model.Method]Strategy
	chain    []Strategy
	observe  Observer
}

// Set bundles the four variants. Nil members are treated as unavailable.
type Set struct {
	HTTP      Strategy
	Browser   Strategy
	Crawl4AI  Strategy
	Firecrawl Strategy
}

// NewOrchestrator builds the dispatcher. The automatic chain is fixed:
// HTTP, then Crawl4AI, then the browser, then Firecrawl.
func NewOrchestrator(set Set) *Orchestrator {
	o := &Orchestrator{byMethod: map[model.Method]Strategy{}}
	add := func(m model.Method, s Strategy) {
		if s == nil {
			return
		}
		o.byMethod[m] = s
		o.chain = append(o.chain, s)
	}
	add(model.MethodHTTP, set.HTTP)
	add(model.MethodCrawl4AI, set.Crawl4AI)
	add(model.MethodBrowser, set.Browser)
	add(model.MethodFirecrawl, set.Firecrawl)
	return o
}

// Observe registers fn to be called after each variant attempt.
func (o *Orchestrator) Observe(fn Observer) *Orchestrator {
	o.observe = fn
	return o
}

// Chain returns the automatic fallback order by variant name.
func (o *Orchestrator) Chain() []string {
	names := make([]string, len(o.chain))
	for i, s := range o.chain {
		names[i] = s.Name()
	}
	return names
}

// Fetch acquires rawURL with the chosen method.
func (o *Orchestrator) Fetch(ctx context.Context, rc *runctx.RunContext, rawURL string, method model.Method) model.ScrapeResult {
	if strings.TrimSpace(rawURL) == "" {
		return model.Failed(ErrEmptyURL.Error())
	}
	if method == "" {
		method = model.MethodAuto
	}
	rc.Logf("Scraping Manager: Processing with %s", method)

	if method == model.MethodAuto {
		return o.auto(ctx, rc, rawURL)
	}

	s, ok := o.byMethod[method]
	if !ok {
		if _, err := model.ParseMethod(string(method)); err != nil {
			return model.Failed(err.Error())
		}
		return model.Failed(fmt.Sprintf("%s %s", method, ErrUnavailable))
	}
	if err := s.Available(); err != nil {
		rc.Logf("%v", err)
		return model.Failed(err.Error())
	}
	return o.run(ctx, rc, s, rawURL)
}

func (o *Orchestrator) auto(ctx context.Context, rc *runctx.RunContext, rawURL string) model.ScrapeResult {
	var last *model.ScrapeResult
	for _, s := range o.chain {
		if err := s.Available(); err != nil {
			if errors.Is(err, ErrUnavailable) {
				rc.Logf("Auto: Skipping %s (%v)", s.Name(), err)
				continue
			}
		}
		rc.Logf("Auto: Trying %s...", s.Name())
		res := o.run(ctx, rc, s, rawURL)
		if res.Success {
			return res
		}
		rc.Logf("   %s Failed: %s", s.Name(), res.Error)
		last = &res
		if ctx.Err() != nil {
			break
		}
	}
	if last == nil {
		return model.Failed("no scraping method available")
	}
	return *last
}

func (o *Orchestrator) run(ctx context.Context, rc *runctx.RunContext, s Strategy, rawURL string) model.ScrapeResult {
	res := s.Fetch(ctx, rc, rawURL)
	if res.Strategy == "" {
		res.Strategy = s.Name()
	}
	if o.observe != nil {
		o.observe(s.Name(), res)
	}
	return res
}
