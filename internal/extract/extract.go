package extract

import (
	"context"
	"errors"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"paxth/internal/llm"
	"paxth/internal/model"
	"paxth/internal/runctx"
)

// Extractor pulls attribute values out of one source's text.
type Extractor interface {
	ExtractAttributes(ctx context.Context, req llm.AttributeRequest) (map[string]string, error)
}

// Profile describes what to extract for a product.
type Profile struct {
	Category   string
	Attributes []string
	Rules      map[string]string
	// Context is supplemental operator text passed with every call.
	Context string
}

// Coordinator runs the extractor once per usable source and assembles the
// per-attribute, per-source matrix.
type Coordinator struct {
	extractor Extractor
	sanitizer *bluemonday.Policy
}

func NewCoordinator(extractor Extractor) *Coordinator {
	return &Coordinator{
		extractor: extractor,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// ExtractAll returns a matrix holding every requested attribute for every
// source in sources. Failed or empty sources, and sources whose extraction
// failed, contribute empty strings. It never aborts on a single source.
func (c *Coordinator) ExtractAll(ctx context.Context, rc *runctx.RunContext, sources map[model.SourceKey]model.ScrapeResult, p Profile) model.AttributeExtractionMatrix {
	keys := orderedKeys(sources)
	matrix := model.NewMatrix(p.Attributes, keys)

	for _, key := range keys {
		res := sources[key]
		if !res.Usable() {
			rc.Logf("Skipping %s - no content available", key)
			continue
		}
		rc.Logf("Processing %s...", label(key))

		values := c.extractOne(ctx, rc, res.Markdown, p)
		for _, a := range p.Attributes {
			matrix.Set(a, key, values[a])
		}
	}
	return matrix
}

func (c *Coordinator) extractOne(ctx context.Context, rc *runctx.RunContext, text string, p Profile) map[string]string {
	if c.extractor == nil {
		rc.Logf("Extractor: not configured")
		return nil
	}
	rc.Logf("Extractor: Extracting %d attributes for %s", len(p.Attributes), p.Category)
	if len(p.Rules) > 0 {
		rc.Logf("   Using category-specific mapping rules (%d rules)", len(p.Rules))
	}

	var apiKey string
	if rc != nil {
		apiKey = rc.Credentials.LLMAPIKey
	}
	values, err := c.extractor.ExtractAttributes(ctx, llm.AttributeRequest{
		Content:    text,
		Attributes: p.Attributes,
		Category:   p.Category,
		Rules:      p.Rules,
		Context:    p.Context,
		APIKey:     apiKey,
	})
	if err != nil {
		rc.Logf("Extractor: %v", err)
		var perr *llm.ParseError
		if errors.As(err, &perr) {
			rc.Logf("   Raw response: %s...", perr.Raw)
		}
		return nil
	}

	out := make(map[string]string, len(p.Attributes))
	filled := 0
	for _, a := range p.Attributes {
		v := c.sanitize(values[a])
		if v != "" {
			filled++
		}
		out[a] = v
	}
	rc.Logf("Extractor: Successfully extracted %d attributes", filled)
	return out
}

// sanitize strips any markup the model echoed back from the page.
func (c *Coordinator) sanitize(v string) string {
	if v == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(c.sanitizer.Sanitize(v)))
}

func orderedKeys(sources map[model.SourceKey]model.ScrapeResult) []model.SourceKey {
	keys := make([]model.SourceKey, 0, len(sources))
	for _, k := range model.SourcePriority {
		if _, ok := sources[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

func label(k model.SourceKey) string {
	if k == model.SourceDocument {
		return "Document"
	}
	return strings.ToUpper(string(k))
}
