// Package pipeline runs one product through acquisition and extraction:
// each source is fetched in order, then every usable source is handed to
// the extraction coordinator.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"paxth/internal/catalog"
	"paxth/internal/document"
	"paxth/internal/extract"
	"paxth/internal/model"
	"paxth/internal/runctx"
)

// ErrExtractorNotConfigured aborts a run before any page is fetched.
var ErrExtractorNotConfigured = errors.New("extractor API key not configured")

// Fetcher acquires one URL with the chosen method.
type Fetcher interface {
	Fetch(ctx context.Context, rc *runctx.RunContext, rawURL string, method model.Method) model.ScrapeResult
}

// Coordinator builds the extraction matrix from fetched sources.
type Coordinator interface {
	ExtractAll(ctx context.Context, rc *runctx.RunContext, sources map[model.SourceKey]model.ScrapeResult, p extract.Profile) model.AttributeExtractionMatrix
}

// Result is everything a run produced.
type Result struct {
	Category   string                                 `json:"category"`
	Headers    []string                               `json:"headers"`
	Attributes []string                               `json:"attributes"`
	Sources    map[model.SourceKey]model.ScrapeResult `json:"sources"`
	Matrix     model.AttributeExtractionMatrix        `json:"matrix"`
	Artifacts  []string                               `json:"artifacts"`
}

// Options configures a Pipeline.
type Options struct {
	// ExtractorReady, when set, is called with the run's LLM key before
	// fetching. An error stops the run.
	ExtractorReady func(apiKey string) error
}

// Pipeline wires the orchestrator, the catalog and the coordinator.
type Pipeline struct {
	fetcher Fetcher
	coord   Coordinator
	catalog *catalog.Catalog
	opts    Options
}

func New(fetcher Fetcher, coord Coordinator, cat *catalog.Catalog, opts Options) *Pipeline {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Pipeline{fetcher: fetcher, coord: coord, catalog: cat, opts: opts}
}

// Catalog returns the category catalog the pipeline validates against.
func (p *Pipeline) Catalog() *catalog.Catalog { return p.catalog }

// Run validates product, fetches the filled URL slots in order, adds the
// document source when one was uploaded, and extracts every usable source.
// Empty slots are not sources. Source failures are recorded in the result,
// never returned as errors.
func (p *Pipeline) Run(ctx context.Context, rc *runctx.RunContext, product model.Product) (*Result, error) {
	if err := Validate(product, p.catalog); err != nil {
		return nil, err
	}

	rc.Logf("Starting extraction for SKU: %s", strings.TrimSpace(product.SKU))
	rc.Logf("Category: %s", product.Category)
	if product.SupplementalContext != "" {
		rc.Logf("MM43 Data provided: %d characters", len(product.SupplementalContext))
	}

	if p.opts.ExtractorReady != nil {
		var key string
		if rc != nil {
			key = rc.Credentials.LLMAPIKey
		}
		if err := p.opts.ExtractorReady(key); err != nil {
			rc.Logf("ERROR: %v", ErrExtractorNotConfigured)
			return nil, fmt.Errorf("%w: %v", ErrExtractorNotConfigured, err)
		}
	}

	docText := p.documentText(rc, product.Document)

	rc.Logf("STEP 1: SCRAPING URLs")
	sources := make(map[model.SourceKey]model.ScrapeResult, model.MaxURLSources+1)
	var saved []string
	for i := 0; i < model.MaxURLSources; i++ {
		key := model.URLSource(i)
		var in model.URLInput
		if i < len(product.URLs) {
			in = product.URLs[i]
		}
		raw := strings.TrimSpace(in.URL)
		if raw == "" {
			rc.Logf("URL %d: Skipped (empty)", i+1)
			continue
		}

		method, _ := model.ParseMethod(string(in.Method))
		rc.Logf("Processing URL %d (%s): %s", i+1, method, shorten(raw, 50))
		res := p.fetcher.Fetch(ctx, rc, raw, method)
		sources[key] = res
		if res.Success {
			if res.ArtifactName != "" {
				saved = append(saved, res.ArtifactName)
			}
			rc.Logf("URL %d: Got %d characters", i+1, len(res.Markdown))
		} else {
			rc.Logf("URL %d: Failed - %s", i+1, res.Error)
		}
	}

	if docText != "" {
		sources[model.SourceDocument] = model.Succeeded(docText)
		rc.Logf("Added document content as source")
	}

	if len(saved) > 0 {
		rc.Logf("SAVED MARKDOWN FILES:")
		for _, name := range saved {
			rc.Logf("   %s", name)
		}
	}

	rc.Logf("STEP 2: EXTRACTING ATTRIBUTES")
	attrs := p.catalog.ExtractionAttributes(product.Category)
	rc.Logf("Extracting %d attributes...", len(attrs))
	matrix := p.coord.ExtractAll(ctx, rc, sources, extract.Profile{
		Category:   product.Category,
		Attributes: attrs,
		Rules:      p.catalog.FormattingRules(product.Category),
		Context:    product.SupplementalContext,
	})

	rc.Logf("EXTRACTION COMPLETE")
	rc.Logf("Total values extracted: %d", matrix.FilledCount())

	return &Result{
		Category:   product.Category,
		Headers:    p.catalog.Attributes(product.Category),
		Attributes: attrs,
		Sources:    sources,
		Matrix:     matrix,
		Artifacts:  saved,
	}, nil
}

func (p *Pipeline) documentText(rc *runctx.RunContext, doc *model.DocumentInput) string {
	if doc == nil || len(doc.Content) == 0 {
		return ""
	}
	rc.Logf("Document uploaded (%s) - extracting text...", doc.Filename)
	text, err := document.Text(doc.Filename, doc.Content)
	if err != nil {
		rc.Logf("Document extraction error: %v", err)
		return ""
	}
	rc.Logf("Document: Extracted %d characters", len(text))
	return text
}

// shorten cuts s to n runes for log lines.
func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
