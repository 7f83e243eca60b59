package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paxth/internal/config"
)

func openAIServer(t *testing.T, reply string, seen func(openAIChatRequest, *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if seen != nil {
			seen(req, r)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": reply}}},
		})
	}))
}

func testConfig(baseURL, key string) config.LLMConfig {
	return config.LLMConfig{
		DefaultProvider: "openai",
		OpenAI:          config.OpenAIConfig{APIKey: key, BaseURL: baseURL, Model: "deepseek-chat"},
	}
}

func TestExtractAttributes_FillsMissingAndStringifies(t *testing.T) {
	reply := "```json\n{\"attributes__brand\": \"Acme\", \"attributes__screen_size\": 55, \"attributes__smart\": true, \"attributes__ports\": [\"HDMI\", \"USB\"]}\n```"
	var got openAIChatRequest
	var auth string
	srv := openAIServer(t, reply, func(req openAIChatRequest, r *http.Request) {
		got = req
		auth = r.Header.Get("Authorization")
	})
	defer srv.Close()

	e := NewExtractor(testConfig(srv.URL, "cfg-key"))
	out, err := e.ExtractAttributes(context.Background(), AttributeRequest{
		Content:    "Acme 55 inch smart TV",
		Attributes: []string{"attributes__brand", "attributes__screen_size", "attributes__smart", "attributes__ports", "attributes__color"},
		Category:   "TV",
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"attributes__brand":       "Acme",
		"attributes__screen_size": "55",
		"attributes__smart":       "true",
		"attributes__ports":       "HDMI, USB",
		"attributes__color":       "",
	}, out)

	assert.Equal(t, "Bearer cfg-key", auth)
	assert.Equal(t, "deepseek-chat", got.Model)
	assert.InDelta(t, 0.1, got.Temperature, 1e-9)
	assert.Equal(t, 4000, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, systemPromptPlain, got.Messages[0].Content)
	assert.Contains(t, got.Messages[1].Content, "Product Category: TV")
	assert.Contains(t, got.Messages[1].Content, "- attributes__brand\n- attributes__screen_size")
	assert.NotContains(t, got.Messages[1].Content, "MM43")
}

func TestExtractAttributes_RulesContextAndTruncation(t *testing.T) {
	var got openAIChatRequest
	srv := openAIServer(t, `Here you go: {"attributes__bullet_1": "Crisp 4K picture"} hope it helps`, func(req openAIChatRequest, r *http.Request) {
		got = req
		assert.Equal(t, "Bearer run-key", r.Header.Get("Authorization"))
	})
	defer srv.Close()

	cfg := testConfig(srv.URL, "cfg-key")
	cfg.MaxContentChars = 10
	cfg.MaxContextChars = 5
	e := NewExtractor(cfg)

	out, err := e.ExtractAttributes(context.Background(), AttributeRequest{
		Content:    "0123456789ABCDEF",
		Attributes: []string{"attributes__bullet_1", "attributes__model"},
		Category:   "Headphones",
		Rules:      map[string]string{"attributes__bullet_1": "Short sentence"},
		Context:    "MM43-extra-long",
		APIKey:     "run-key",
	})

	require.NoError(t, err)
	assert.Equal(t, "Crisp 4K picture", out["attributes__bullet_1"])
	assert.Equal(t, "", out["attributes__model"])

	user := got.Messages[1].Content
	assert.Equal(t, systemPromptWithRules, got.Messages[0].Content)
	assert.Contains(t, user, "- attributes__bullet_1: Short sentence\n- attributes__model: Extract from data")
	assert.Contains(t, user, "ADDITIONAL PRODUCT CONTEXT (MM43 Data):\nMM43-\n")
	assert.Contains(t, user, "Content to extract from:\n0123456789\n")
	assert.NotContains(t, user, "ABCDEF")
}

func TestExtractAttributes_EmptyContentSkipsProvider(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls.Add(1) }))
	defer srv.Close()

	e := NewExtractor(testConfig(srv.URL, "k"))
	out, err := e.ExtractAttributes(context.Background(), AttributeRequest{Content: "  ", Attributes: []string{"a", "b"}})

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "", "b": ""}, out)
	assert.Zero(t, calls.Load())
}

func TestExtractAttributes_NotConfigured(t *testing.T) {
	e := NewExtractor(testConfig("", ""))
	out, err := e.ExtractAttributes(context.Background(), AttributeRequest{Content: "text", Attributes: []string{"a"}})

	assert.True(t, IsNotConfigured(err))
	assert.Equal(t, map[string]string{"a": ""}, out)
	assert.NoError(t, e.Configured("from-run"))
}

func TestExtractAttributes_UnparsableResponse(t *testing.T) {
	srv := openAIServer(t, "I could not find anything useful.", nil)
	defer srv.Close()

	e := NewExtractor(testConfig(srv.URL, "k"))
	out, err := e.ExtractAttributes(context.Background(), AttributeRequest{Content: "text", Attributes: []string{"a"}})

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "I could not find anything useful.", perr.Raw)
	assert.Equal(t, map[string]string{"a": ""}, out)
}

func TestExtractAttributes_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient balance", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	e := NewExtractor(testConfig(srv.URL, "k"))
	_, err := e.ExtractAttributes(context.Background(), AttributeRequest{Content: "text", Attributes: []string{"a"}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 402")
	assert.Contains(t, err.Error(), "insufficient balance")
}

func TestAnthropicProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		var req anthropicMessagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, systemPromptPlain, req.System)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": `{"a": "x"}`}},
		})
	}))
	defer srv.Close()

	c := &anthropicClient{apiKey: "k", model: "claude", endpoint: srv.URL, http: srv.Client()}
	raw, err := c.complete(context.Background(), completion{System: systemPromptPlain, User: "u", MaxTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, `{"a": "x"}`, raw)
}

func TestUnknownProvider(t *testing.T) {
	cfg := testConfig("", "k")
	cfg.DefaultProvider = "mystery"
	err := NewExtractor(cfg).Configured("")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unsupported"))
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```\ntrailing"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`  {"a":1} `))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "دبي", truncateRunes("دبي مول", 3))
	assert.Equal(t, "abc", truncateRunes("abc", 10))
	assert.Equal(t, "abc", truncateRunes("abc", 0))
}
