package model

import (
	"fmt"
	"strings"
)

// SourceKey identifies one independent evidence source for a product.
type SourceKey string

const (
	SourceURL1     SourceKey = "url1"
	SourceURL2     SourceKey = "url2"
	SourceURL3     SourceKey = "url3"
	SourceDocument SourceKey = "document"
)

// SourcePriority is the fixed order in which sources are fetched, extracted
// and consulted during best-available reconciliation.
var SourcePriority = []SourceKey{SourceURL1, SourceURL2, SourceURL3, SourceDocument}

// MaxURLSources is the number of URL slots an operator can fill.
const MaxURLSources = 3

// URLSource returns the SourceKey for the zero-based URL slot i.
func URLSource(i int) SourceKey {
	return SourceKey(fmt.Sprintf("url%d", i+1))
}

// ParseSourceKey validates a source name coming from an API caller.
func ParseSourceKey(s string) (SourceKey, error) {
	k := SourceKey(strings.ToLower(strings.TrimSpace(s)))
	if k == "pdf" {
		k = SourceDocument
	}
	for _, known := range SourcePriority {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", s)
}

// Method is the operator's scraping choice for one URL.
type Method string

const (
	MethodAuto      Method = "auto"
	MethodHTTP      Method = "http"
	MethodBrowser   Method = "browser"
	MethodCrawl4AI  Method = "crawl4ai"
	MethodFirecrawl Method = "firecrawl"
)

// ParseMethod accepts the canonical names plus the labels operators know
// from the UI (BS4, Playwright, Crawl4AI, Firecrawl, Auto).
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return MethodAuto, nil
	case "http", "bs4":
		return MethodHTTP, nil
	case "browser", "playwright", "rod":
		return MethodBrowser, nil
	case "crawl4ai":
		return MethodCrawl4AI, nil
	case "firecrawl":
		return MethodFirecrawl, nil
	default:
		return "", fmt.Errorf("unknown method: %s", s)
	}
}

// ScrapeResult is the outcome of one fetch attempt for one URL.
//
// Success implies a non-empty Markdown and an empty Error; a failed result
// always carries an empty Markdown. Use Succeeded and Failed to build values
// so the invariant holds.
type ScrapeResult struct {
	Success      bool   `json:"success"`
	Markdown     string `json:"markdown"`
	Error        string `json:"error,omitempty"`
	ArtifactName string `json:"artifactName,omitempty"`
	Strategy     string `json:"strategy,omitempty"`
}

// Succeeded builds a successful result. Blank content is reported as a
// failure instead.
func Succeeded(markdown string) ScrapeResult {
	if strings.TrimSpace(markdown) == "" {
		return Failed("no content extracted")
	}
	return ScrapeResult{Success: true, Markdown: markdown}
}

// Failed builds a failed result carrying msg.
func Failed(msg string) ScrapeResult {
	if msg == "" {
		msg = "unknown error"
	}
	return ScrapeResult{Success: false, Error: msg}
}

// Usable reports whether the result can be handed to the extractor.
func (r ScrapeResult) Usable() bool {
	return r.Success && r.Markdown != ""
}

// AttributeExtractionMatrix maps attribute name -> source -> extracted value.
type AttributeExtractionMatrix map[string]map[SourceKey]string

// NewMatrix returns a matrix with an empty string for every attribute and
// source pair.
func NewMatrix(attributes []string, sources []SourceKey) AttributeExtractionMatrix {
	m := make(AttributeExtractionMatrix, len(attributes))
	for _, a := range attributes {
		row := make(map[SourceKey]string, len(sources))
		for _, s := range sources {
			row[s] = ""
		}
		m[a] = row
	}
	return m
}

// Set writes a value, creating the attribute row when needed.
func (m AttributeExtractionMatrix) Set(attribute string, src SourceKey, value string) {
	row, ok := m[attribute]
	if !ok {
		row = make(map[SourceKey]string)
		m[attribute] = row
	}
	row[src] = value
}

// Get returns the value for attribute and src, or "".
func (m AttributeExtractionMatrix) Get(attribute string, src SourceKey) string {
	return m[attribute][src]
}

// FilledCount counts non-empty cells.
func (m AttributeExtractionMatrix) FilledCount() int {
	n := 0
	for _, row := range m {
		for _, v := range row {
			if strings.TrimSpace(v) != "" {
				n++
			}
		}
	}
	return n
}

// FinalValueMap holds one reconciled value per attribute.
type FinalValueMap map[string]string

// Filled counts attributes with a non-empty final value.
func (f FinalValueMap) Filled() int {
	n := 0
	for _, v := range f {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

// URLInput is one operator-supplied URL slot.
type URLInput struct {
	URL    string `json:"url"`
	Method Method `json:"method,omitempty"`
}

// DocumentInput is an uploaded spec sheet.
type DocumentInput struct {
	Filename string `json:"filename"`
	Content  []byte `json:"-"`
}

// Product carries the operator-supplied fields for one extraction run.
type Product struct {
	Category            string         `json:"category"`
	SKU                 string         `json:"sku"`
	BaseCode            string         `json:"baseCode"`
	EAN                 string         `json:"ean,omitempty"`
	ShippingWeight      string         `json:"shippingWeight,omitempty"`
	Color               string         `json:"color,omitempty"`
	ProductType         string         `json:"productType,omitempty"`
	URLs                []URLInput     `json:"urls,omitempty"`
	SupplementalContext string         `json:"supplementalContext,omitempty"`
	Document            *DocumentInput `json:"-"`
}
