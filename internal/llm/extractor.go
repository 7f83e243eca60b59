package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"paxth/internal/config"
	"paxth/internal/metrics"
)

const (
	DefaultTemperature     = 0.1
	DefaultMaxTokens       = 4000
	DefaultMaxContentChars = 15000
	DefaultMaxContextChars = 3000
)

// AttributeRequest asks for values of Attributes found in Content.
type AttributeRequest struct {
	Content    string
	Attributes []string
	Category   string
	// Rules holds optional per-attribute formatting instructions.
	Rules map[string]string
	// Context is operator-supplied free text about the product.
	Context string
	// APIKey overrides the configured provider key for this call.
	APIKey string
}

// Extractor turns page text into attribute values using the configured
// provider.
type Extractor struct {
	cfg             config.LLMConfig
	http            *http.Client
	maxContentChars int
	maxContextChars int
}

// NewExtractor builds an Extractor. Provider credentials are resolved per
// call so a run-scoped key can replace the configured one.
func NewExtractor(cfg config.LLMConfig) *Extractor {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	e := &Extractor{
		cfg:             cfg,
		http:            &http.Client{Timeout: timeout},
		maxContentChars: cfg.MaxContentChars,
		maxContextChars: cfg.MaxContextChars,
	}
	if e.maxContentChars <= 0 {
		e.maxContentChars = DefaultMaxContentChars
	}
	if e.maxContextChars <= 0 {
		e.maxContextChars = DefaultMaxContextChars
	}
	return e
}

// Configured reports whether a call made with apiKey would reach a provider.
func (e *Extractor) Configured(apiKey string) error {
	_, _, err := newCompleter(e.cfg, apiKey, e.http)
	return err
}

// ExtractAttributes returns one value per requested attribute. Attributes the
// model did not return map to "". Blank content yields all-empty values
// without calling the provider.
func (e *Extractor) ExtractAttributes(ctx context.Context, req AttributeRequest) (map[string]string, error) {
	out := make(map[string]string, len(req.Attributes))
	for _, a := range req.Attributes {
		out[a] = ""
	}
	if strings.TrimSpace(req.Content) == "" || len(req.Attributes) == 0 {
		return out, nil
	}

	client, prov, err := newCompleter(e.cfg, req.APIKey, e.http)
	if err != nil {
		return out, err
	}
	model := e.model(prov)

	content := truncateRunes(req.Content, e.maxContentChars)
	supplemental := truncateRunes(strings.TrimSpace(req.Context), e.maxContextChars)

	raw, err := client.complete(ctx, completion{
		System:      systemPrompt(len(req.Rules) > 0),
		User:        userPrompt(req.Category, req.Attributes, req.Rules, content, supplemental),
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	})
	if err != nil {
		metrics.RecordLLMExtract(string(prov), model, false)
		return out, err
	}

	fields, err := parseJSONFields(raw)
	if err != nil {
		metrics.RecordLLMExtract(string(prov), model, false)
		return out, &ParseError{Raw: truncateRunes(strings.TrimSpace(raw), 200), Err: err}
	}
	metrics.RecordLLMExtract(string(prov), model, true)
	for _, a := range req.Attributes {
		if v, ok := fields[a]; ok {
			out[a] = strings.TrimSpace(stringify(v))
		}
	}
	return out, nil
}

func (e *Extractor) model(p Provider) string {
	switch p {
	case ProviderAnthropic:
		return e.cfg.Anthropic.Model
	case ProviderGoogle:
		return e.cfg.Google.Model
	default:
		return e.cfg.OpenAI.Model
	}
}

// ParseError reports a provider response that held no usable JSON object.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return "JSON parse error - " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsNotConfigured reports whether err stems from missing provider settings.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}
