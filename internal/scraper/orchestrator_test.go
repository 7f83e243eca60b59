package scraper

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paxth/internal/model"
	"paxth/internal/runctx"
)

type fakeStrategy struct {
	name      string
	available error
	result    model.ScrapeResult
	calls     int
}

func (f *fakeStrategy) Name() string     { return f.name }
func (f *fakeStrategy) Tag() string      { return strings.ToLower(f.name) }
func (f *fakeStrategy) Available() error { return f.available }

func (f *fakeStrategy) Fetch(_ context.Context, rc *runctx.RunContext, _ string) model.ScrapeResult {
	f.calls++
	rc.Logf("%s: attempt", f.name)
	return f.result
}

func okStrategy(name string) *fakeStrategy {
	return &fakeStrategy{name: name, result: model.Succeeded("content from " + name)}
}

func failStrategy(name string) *fakeStrategy {
	return &fakeStrategy{name: name, result: model.Failed(name + " broke")}
}

func indexOf(lines []string, substr string) int {
	for i, l := range lines {
		if strings.Contains(l, substr) {
			return i
		}
	}
	return -1
}

func TestAuto_FirstSuccessStopsChain(t *testing.T) {
	a, b, c, d := okStrategy("A"), okStrategy("B"), okStrategy("C"), okStrategy("D")
	o := NewOrchestrator(Set{HTTP: a, Browser: b, Crawl4AI: c, Firecrawl: d})

	res := o.Fetch(context.Background(), nil, "https://shop.com", model.MethodAuto)

	require.True(t, res.Success)
	assert.Equal(t, "content from A", res.Markdown)
	assert.Equal(t, 1, a.calls)
	assert.Zero(t, b.calls)
	assert.Zero(t, c.calls)
	assert.Zero(t, d.calls)
}

func TestAuto_FallbackOrder(t *testing.T) {
	a, b, c, d := failStrategy("A"), failStrategy("B"), failStrategy("C"), okStrategy("D")
	o := NewOrchestrator(Set{HTTP: a, Browser: b, Crawl4AI: c, Firecrawl: d})
	rc := runctx.New("r", nil, runctx.Credentials{}, nil)

	res := o.Fetch(context.Background(), rc, "https://shop.com", model.MethodAuto)

	require.True(t, res.Success)
	assert.Equal(t, "content from D", res.Markdown)
	assert.Equal(t, []string{"A", "C", "B", "D"}, o.Chain())

	lines := rc.Lines()
	ia, ic, ib, id := indexOf(lines, "A: attempt"), indexOf(lines, "C: attempt"), indexOf(lines, "B: attempt"), indexOf(lines, "D: attempt")
	require.True(t, ia >= 0 && ic >= 0 && ib >= 0 && id >= 0, lines)
	assert.Less(t, ia, ic)
	assert.Less(t, ic, ib)
	assert.Less(t, ib, id)
}

func TestAuto_SkipsUnavailableAndReturnsLastFailure(t *testing.T) {
	a, d := failStrategy("A"), failStrategy("D")
	c := failStrategy("C")
	c.available = fmt.Errorf("Crawl4AI %w", ErrUnavailable)
	b := failStrategy("B")
	b.available = fmt.Errorf("Browser %w", ErrUnavailable)
	o := NewOrchestrator(Set{HTTP: a, Browser: b, Crawl4AI: c, Firecrawl: d})

	res := o.Fetch(context.Background(), nil, "https://shop.com", model.MethodAuto)

	assert.False(t, res.Success)
	assert.Equal(t, "D broke", res.Error)
	assert.Equal(t, 1, a.calls)
	assert.Zero(t, b.calls)
	assert.Zero(t, c.calls)
	assert.Equal(t, 1, d.calls)
}

func TestExplicitDispatch(t *testing.T) {
	a, b, c, d := okStrategy("A"), okStrategy("B"), okStrategy("C"), okStrategy("D")
	o := NewOrchestrator(Set{HTTP: a, Browser: b, Crawl4AI: c, Firecrawl: d})

	res := o.Fetch(context.Background(), nil, "https://shop.com", model.MethodBrowser)

	require.True(t, res.Success)
	assert.Equal(t, "content from B", res.Markdown)
	assert.Zero(t, a.calls)
	assert.Equal(t, 1, b.calls)
}

func TestExplicitDispatch_Unavailable(t *testing.T) {
	c := okStrategy("C")
	c.available = fmt.Errorf("Crawl4AI %w", ErrUnavailable)
	o := NewOrchestrator(Set{HTTP: okStrategy("A"), Crawl4AI: c})

	res := o.Fetch(context.Background(), nil, "https://shop.com", model.MethodCrawl4AI)
	assert.False(t, res.Success)
	assert.Equal(t, "Crawl4AI service not available", res.Error)
	assert.Zero(t, c.calls)

	res = o.Fetch(context.Background(), nil, "https://shop.com", model.MethodBrowser)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not available")
}

func TestEmptyURLShortCircuits(t *testing.T) {
	a := okStrategy("A")
	o := NewOrchestrator(Set{HTTP: a})

	res := o.Fetch(context.Background(), nil, "   ", model.MethodAuto)

	assert.False(t, res.Success)
	assert.Equal(t, "Empty URL", res.Error)
	assert.Zero(t, a.calls)
}

func TestObserverSeesEveryAttempt(t *testing.T) {
	o := NewOrchestrator(Set{HTTP: failStrategy("A"), Firecrawl: okStrategy("D")})
	var seen []string
	o.Observe(func(name string, res model.ScrapeResult) {
		seen = append(seen, fmt.Sprintf("%s:%t", name, res.Success))
	})

	o.Fetch(context.Background(), nil, "https://shop.com", model.MethodAuto)

	assert.Equal(t, []string{"A:false", "D:true"}, seen)
}
