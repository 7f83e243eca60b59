package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paxth/internal/llm"
	"paxth/internal/model"
	"paxth/internal/reconcile"
	"paxth/internal/runctx"
)

type fakeExtractor struct {
	calls    []llm.AttributeRequest
	byText   map[string]map[string]string
	failText map[string]error
}

func (f *fakeExtractor) ExtractAttributes(_ context.Context, req llm.AttributeRequest) (map[string]string, error) {
	f.calls = append(f.calls, req)
	if err := f.failText[req.Content]; err != nil {
		return nil, err
	}
	return f.byText[req.Content], nil
}

var attrs = []string{"attributes__brand", "attributes__color", "attributes__weight"}

func TestExtractAll_SkipsFailedSourcesAndFillsGaps(t *testing.T) {
	fx := &fakeExtractor{byText: map[string]map[string]string{
		"page one": {"attributes__brand": "Acme", "attributes__unrequested": "x"},
		"sheet":    {"attributes__weight": "<b>12 kg</b>", "attributes__color": "Black &amp; Silver"},
	}}
	c := NewCoordinator(fx)
	rc := runctx.New("r", nil, runctx.Credentials{LLMAPIKey: "run-key"}, nil)

	m := c.ExtractAll(context.Background(), rc, map[model.SourceKey]model.ScrapeResult{
		model.SourceURL1:     model.Succeeded("page one"),
		model.SourceURL2:     model.Failed("HTTP 404"),
		model.SourceURL3:     model.Failed("Empty URL"),
		model.SourceDocument: model.Succeeded("sheet"),
	}, Profile{Category: "TV", Attributes: attrs, Context: "MM43"})

	require.Len(t, fx.calls, 2)
	assert.Equal(t, "page one", fx.calls[0].Content)
	assert.Equal(t, "sheet", fx.calls[1].Content)
	assert.Equal(t, "run-key", fx.calls[0].APIKey)
	assert.Equal(t, "MM43", fx.calls[0].Context)
	assert.Equal(t, "TV", fx.calls[0].Category)

	require.Len(t, m, len(attrs))
	for _, a := range attrs {
		assert.Len(t, m[a], 4, a)
	}
	assert.Equal(t, "Acme", m.Get("attributes__brand", model.SourceURL1))
	assert.Equal(t, "", m.Get("attributes__color", model.SourceURL1))
	assert.Equal(t, "", m.Get("attributes__brand", model.SourceURL2))
	assert.Equal(t, "12 kg", m.Get("attributes__weight", model.SourceDocument))
	assert.Equal(t, "Black & Silver", m.Get("attributes__color", model.SourceDocument))
	_, leaked := m["attributes__unrequested"]
	assert.False(t, leaked)

	lines := rc.Lines()
	assert.Contains(t, lines, "Skipping url2 - no content available")
	assert.Contains(t, lines, "Processing Document...")
}

func TestExtractAll_ExtractorErrorDoesNotAbort(t *testing.T) {
	fx := &fakeExtractor{
		byText:   map[string]map[string]string{"good": {"attributes__brand": "Acme"}},
		failText: map[string]error{"bad": &llm.ParseError{Raw: "nonsense", Err: errors.New("invalid character")}},
	}
	rc := runctx.New("r", nil, runctx.Credentials{}, nil)

	m := NewCoordinator(fx).ExtractAll(context.Background(), rc, map[model.SourceKey]model.ScrapeResult{
		model.SourceURL1: model.Succeeded("bad"),
		model.SourceURL2: model.Succeeded("good"),
	}, Profile{Category: "TV", Attributes: attrs})

	assert.Len(t, fx.calls, 2)
	assert.Equal(t, "", m.Get("attributes__brand", model.SourceURL1))
	assert.Equal(t, "Acme", m.Get("attributes__brand", model.SourceURL2))
	assert.Contains(t, rc.Lines(), "   Raw response: nonsense...")
}

func TestExtractAll_AllSourcesFailing(t *testing.T) {
	fx := &fakeExtractor{}
	sources := map[model.SourceKey]model.ScrapeResult{
		model.SourceURL1: model.Failed("a"),
		model.SourceURL2: model.Failed("b"),
		model.SourceURL3: model.Failed("c"),
	}

	m := NewCoordinator(fx).ExtractAll(context.Background(), nil, sources, Profile{Attributes: attrs})

	assert.Empty(t, fx.calls)
	for _, a := range attrs {
		require.Len(t, m[a], 3)
		for _, v := range m[a] {
			assert.Equal(t, "", v)
		}
	}
	final := reconcile.BestAvailable(m, nil)
	assert.Zero(t, final.Filled())
}

func TestExtractAll_NilExtractor(t *testing.T) {
	m := NewCoordinator(nil).ExtractAll(context.Background(), nil, map[model.SourceKey]model.ScrapeResult{
		model.SourceURL1: model.Succeeded("text"),
	}, Profile{Attributes: attrs})

	assert.Equal(t, "", m.Get("attributes__brand", model.SourceURL1))
	assert.Len(t, m["attributes__brand"], 1)
}
