package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paxth/internal/catalog"
	"paxth/internal/export"
	"paxth/internal/extract"
	"paxth/internal/llm"
	"paxth/internal/model"
	"paxth/internal/reconcile"
	"paxth/internal/runctx"
)

type fetchCall struct {
	url    string
	method model.Method
}

type fakeFetcher struct {
	calls   []fetchCall
	results map[string]model.ScrapeResult
}

func (f *fakeFetcher) Fetch(_ context.Context, _ *runctx.RunContext, rawURL string, method model.Method) model.ScrapeResult {
	f.calls = append(f.calls, fetchCall{rawURL, method})
	if r, ok := f.results[rawURL]; ok {
		return r
	}
	return model.Failed("HTTP 404")
}

type echoExtractor struct {
	values map[string]string
	seen   []llm.AttributeRequest
}

func (e *echoExtractor) ExtractAttributes(_ context.Context, req llm.AttributeRequest) (map[string]string, error) {
	e.seen = append(e.seen, req)
	return e.values, nil
}

func tvProduct(urls ...model.URLInput) model.Product {
	return model.Product{Category: "TV", SKU: "TV-55", BaseCode: "B55", URLs: urls}
}

func TestRun_TVSingleSource(t *testing.T) {
	cat := catalog.Default()
	attrs := cat.ExtractionAttributes("TV")
	ex := &echoExtractor{values: map[string]string{attrs[1]: "Acme"}}
	fetch := &fakeFetcher{results: map[string]model.ScrapeResult{
		"https://shop.com/tv": {Success: true, Markdown: "Acme 55 inch", ArtifactName: "shop_com_20260101_000000_bs4.md"},
	}}
	p := New(fetch, extract.NewCoordinator(ex), cat, Options{})
	rc := runctx.New("r1", nil, runctx.Credentials{}, nil)

	res, err := p.Run(context.Background(), rc, tvProduct(model.URLInput{URL: "https://shop.com/tv"}))

	require.NoError(t, err)
	require.Len(t, fetch.calls, 1)
	assert.Equal(t, model.MethodAuto, fetch.calls[0].method)

	require.Len(t, res.Matrix, len(attrs))
	for _, a := range attrs {
		require.Len(t, res.Matrix[a], 1, a)
		_, ok := res.Matrix[a][model.SourceURL1]
		assert.True(t, ok, a)
	}
	assert.Equal(t, []string{"shop_com_20260101_000000_bs4.md"}, res.Artifacts)
	assert.Len(t, ex.seen, 1)
	assert.Equal(t, "TV", ex.seen[0].Category)

	final := reconcile.BestAvailable(res.Matrix, nil)
	row := export.BuildRow(export.OperatorFields{SKU: "TV-55", BaseCode: "B55"}, final, res.Headers)
	assert.Len(t, row, len(res.Headers))
	assert.Contains(t, row, "Acme")

	lines := rc.Lines()
	assert.Contains(t, lines, "URL 2: Skipped (empty)")
	assert.Contains(t, lines, "Total values extracted: 1")
	assert.Contains(t, lines, "   shop_com_20260101_000000_bs4.md")
}

func TestRun_SequentialOrderAndMethods(t *testing.T) {
	fetch := &fakeFetcher{results: map[string]model.ScrapeResult{
		"https://b.com/p": model.Succeeded("page b"),
	}}
	ex := &echoExtractor{}
	p := New(fetch, extract.NewCoordinator(ex), nil, Options{})

	res, err := p.Run(context.Background(), nil, tvProduct(
		model.URLInput{URL: "https://a.com/p", Method: model.MethodFirecrawl},
		model.URLInput{URL: "https://b.com/p"},
		model.URLInput{URL: "https://c.com/p", Method: model.MethodBrowser},
	))

	require.NoError(t, err)
	assert.Equal(t, []fetchCall{
		{"https://a.com/p", model.MethodFirecrawl},
		{"https://b.com/p", model.MethodAuto},
		{"https://c.com/p", model.MethodBrowser},
	}, fetch.calls)
	assert.Len(t, ex.seen, 1)
	assert.False(t, res.Sources[model.SourceURL1].Success)
	for _, row := range res.Matrix {
		assert.Len(t, row, 3)
	}
}

func TestRun_DocumentSource(t *testing.T) {
	ex := &echoExtractor{}
	p := New(&fakeFetcher{}, extract.NewCoordinator(ex), nil, Options{})
	prod := tvProduct()
	prod.Document = &model.DocumentInput{Filename: "sheet.txt", Content: []byte("Weight: 12 kg")}

	res, err := p.Run(context.Background(), nil, prod)

	require.NoError(t, err)
	require.Len(t, ex.seen, 1)
	assert.Equal(t, "Weight: 12 kg", ex.seen[0].Content)
	assert.True(t, res.Sources[model.SourceDocument].Success)
}

func TestRun_BrokenDocumentIsOmitted(t *testing.T) {
	ex := &echoExtractor{}
	p := New(&fakeFetcher{results: map[string]model.ScrapeResult{"https://a.com": model.Succeeded("x")}}, extract.NewCoordinator(ex), nil, Options{})
	prod := tvProduct(model.URLInput{URL: "https://a.com"})
	prod.Document = &model.DocumentInput{Filename: "sheet.exe", Content: []byte("MZ")}
	rc := runctx.New("r", nil, runctx.Credentials{}, nil)

	res, err := p.Run(context.Background(), rc, prod)

	require.NoError(t, err)
	_, ok := res.Sources[model.SourceDocument]
	assert.False(t, ok)
	assert.NotEmpty(t, rc.Lines())
}

func TestRun_ExtractorNotReady(t *testing.T) {
	fetch := &fakeFetcher{}
	p := New(fetch, extract.NewCoordinator(&echoExtractor{}), nil, Options{
		ExtractorReady: func(key string) error {
			if key == "" {
				return llm.ErrNotConfigured
			}
			return nil
		},
	})

	_, err := p.Run(context.Background(), nil, tvProduct(model.URLInput{URL: "https://a.com"}))
	assert.ErrorIs(t, err, ErrExtractorNotConfigured)
	assert.Empty(t, fetch.calls)

	rc := runctx.New("r", nil, runctx.Credentials{LLMAPIKey: "k"}, nil)
	_, err = p.Run(context.Background(), rc, tvProduct(model.URLInput{URL: "https://a.com"}))
	assert.NoError(t, err)
	assert.Len(t, fetch.calls, 1)
}

func TestValidate(t *testing.T) {
	cat := catalog.Default()
	ok := tvProduct(model.URLInput{URL: "https://shop.com/tv"})
	ok.EAN = "6291234567890"
	assert.NoError(t, Validate(ok, cat))

	cases := map[string]model.Product{
		"unknown category": {Category: "Toasters", SKU: "AB", BaseCode: "B", URLs: []model.URLInput{{URL: "https://a.com"}}},
		"short sku":        {Category: "TV", SKU: "A", BaseCode: "B", URLs: []model.URLInput{{URL: "https://a.com"}}},
		"missing base":     {Category: "TV", SKU: "AB", URLs: []model.URLInput{{URL: "https://a.com"}}},
		"bad ean":          {Category: "TV", SKU: "AB", BaseCode: "B", EAN: "12345", URLs: []model.URLInput{{URL: "https://a.com"}}},
		"letters in ean":   {Category: "TV", SKU: "AB", BaseCode: "B", EAN: "1234567a", URLs: []model.URLInput{{URL: "https://a.com"}}},
		"bad url":          {Category: "TV", SKU: "AB", BaseCode: "B", URLs: []model.URLInput{{URL: "ftp://a.com"}}},
		"no host":          {Category: "TV", SKU: "AB", BaseCode: "B", URLs: []model.URLInput{{URL: "https://"}}},
		"bad method":       {Category: "TV", SKU: "AB", BaseCode: "B", URLs: []model.URLInput{{URL: "https://a.com", Method: "telepathy"}}},
		"no sources":       {Category: "TV", SKU: "AB", BaseCode: "B"},
	}
	for name, p := range cases {
		err := Validate(p, cat)
		var verr *ValidationError
		assert.True(t, errors.As(err, &verr), name)
	}
}

func TestShortenCutsOnRunes(t *testing.T) {
	u := "https://shop.example/" + strings.Repeat("تلفاز", 10)

	got := shorten(u, 50)

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 53, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, "https://shop.example/tv", shorten("https://shop.example/tv", 50))
}
