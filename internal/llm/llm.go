package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"paxth/internal/config"
)

// Provider represents a logical LLM provider.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
)

// DefaultOpenAIBaseURL points the OpenAI-compatible provider at DeepSeek.
const DefaultOpenAIBaseURL = "https://api.deepseek.com"

// ErrNotConfigured is returned when the selected provider has no API key
// or model.
var ErrNotConfigured = errors.New("llm provider is not configured")

// completion is one system+user exchange.
type completion struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// completer is implemented by each provider client.
type completer interface {
	complete(ctx context.Context, req completion) (string, error)
}

// newCompleter builds the client for the configured provider. apiKey, when
// non-empty, replaces the configured key of that provider.
func newCompleter(cfg config.LLMConfig, apiKey string, httpClient *http.Client) (completer, Provider, error) {
	prov := Provider(cfg.DefaultProvider)
	if prov == "" {
		prov = ProviderOpenAI
	}

	pick := func(configured string) string {
		if apiKey != "" {
			return apiKey
		}
		return configured
	}

	switch prov {
	case ProviderOpenAI:
		key, model := pick(cfg.OpenAI.APIKey), cfg.OpenAI.Model
		if key == "" || model == "" {
			return nil, prov, fmt.Errorf("openai: %w", ErrNotConfigured)
		}
		base := cfg.OpenAI.BaseURL
		if base == "" {
			base = DefaultOpenAIBaseURL
		}
		return &openAIClient{apiKey: key, baseURL: strings.TrimRight(base, "/"), model: model, http: httpClient}, prov, nil
	case ProviderAnthropic:
		key, model := pick(cfg.Anthropic.APIKey), cfg.Anthropic.Model
		if key == "" || model == "" {
			return nil, prov, fmt.Errorf("anthropic: %w", ErrNotConfigured)
		}
		return &anthropicClient{apiKey: key, model: model, endpoint: "https://api.anthropic.com/v1/messages", http: httpClient}, prov, nil
	case ProviderGoogle:
		key, model := pick(cfg.Google.APIKey), cfg.Google.Model
		if key == "" || model == "" {
			return nil, prov, fmt.Errorf("google: %w", ErrNotConfigured)
		}
		return &googleClient{apiKey: key, model: model, base: "https://generativelanguage.googleapis.com/v1beta", http: httpClient}, prov, nil
	default:
		return nil, prov, fmt.Errorf("unsupported llm provider: %s", prov)
	}
}

// openAIClient speaks the OpenAI-compatible Chat Completions API.
type openAIClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// anthropicClient speaks Anthropic's Messages API.
type anthropicClient struct {
	apiKey   string
	model    string
	endpoint string
	http     *http.Client
}

// googleClient speaks Gemini's generateContent API.
type googleClient struct {
	apiKey string
	model  string
	base   string
	http   *http.Client
}

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
}

type anthropicMessagesRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string                 `json:"role"`
	Content []anthropicTextContent `json:"content"`
}

type anthropicTextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessagesResponse struct {
	Content []anthropicTextContent `json:"content"`
}

type googleGenerateContentRequest struct {
	SystemInstruction *googleContent        `json:"systemInstruction,omitempty"`
	Contents          []googleContent       `json:"contents"`
	GenerationConfig  googleGenerationConfig `json:"generationConfig"`
}

type googleGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text,omitempty"`
}

type googleGenerateContentResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
}

func (c *openAIClient) complete(ctx context.Context, req completion) (string, error) {
	body := openAIChatRequest{
		Model: c.model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}

	var parsed openAIChatResponse
	if err := postJSON(ctx, c.http, c.baseURL+"/chat/completions", headers, body, &parsed); err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("openai chat completion returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *anthropicClient) complete(ctx context.Context, req completion) (string, error) {
	body := anthropicMessagesRequest{
		Model:       c.model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		System:      req.System,
		Messages: []anthropicMessage{
			{Role: "user", Content: []anthropicTextContent{{Type: "text", Text: req.User}}},
		},
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}

	var parsed anthropicMessagesResponse
	if err := postJSON(ctx, c.http, c.endpoint, headers, body, &parsed); err != nil {
		return "", fmt.Errorf("anthropic messages request: %w", err)
	}
	if len(parsed.Content) == 0 {
		return "", errors.New("anthropic messages returned no content")
	}
	return parsed.Content[0].Text, nil
}

func (c *googleClient) complete(ctx context.Context, req completion) (string, error) {
	body := googleGenerateContentRequest{
		SystemInstruction: &googleContent{Parts: []googlePart{{Text: req.System}}},
		Contents:          []googleContent{{Role: "user", Parts: []googlePart{{Text: req.User}}}},
		GenerationConfig:  googleGenerationConfig{Temperature: req.Temperature, MaxOutputTokens: req.MaxTokens},
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.base, c.model, url.QueryEscape(c.apiKey))

	var parsed googleGenerateContentResponse
	if err := postJSON(ctx, c.http, endpoint, nil, body, &parsed); err != nil {
		return "", fmt.Errorf("google generateContent: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("google generateContent returned no candidates")
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, headers map[string]string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
