package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func browserOrSkip(t *testing.T) string {
	t.Helper()
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no Chromium executable found")
	}
	return bin
}

// expandPage has six "show more" buttons inside the product block plus
// boilerplate lines that only the line denoiser removes.
func expandPage() string {
	var buttons strings.Builder
	for i := 0; i < 6; i++ {
		fmt.Fprintf(&buttons, `<button class="show-more" id="more-%d">Show more</button>`, i)
	}
	return `<html><body>
<div class="product-detail">
<h1>Acme QLED TV</h1>
<table><tr><th>Screen Size</th><td>55 inch</td></tr><tr><th>Resolution</th><td>4K UHD</td></tr></table>
<p>` + strings.Repeat("Vivid colour with quantum dot technology. ", 20) + `</p>
<p>Follow us on Instagram</p>
<p>© 2026 Acme Retail</p>
` + buttons.String() + `
</div>
</body></html>`
}

func TestBrowserStrategy_FetchBoundsClicksAndDenoises(t *testing.T) {
	bin := browserOrSkip(t)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tv" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(expandPage()))
	}))
	defer srv.Close()

	s, err := NewBrowserStrategy(BrowserOptions{
		Enabled:              true,
		Bin:                  bin,
		IdleTimeout:          2 * time.Second,
		ScrollPause:          10 * time.Millisecond,
		ClickPause:           10 * time.Millisecond,
		Settle:               10 * time.Millisecond,
		MaxClicksPerSelector: 3,
		MaxClicksPerText:     2,
	}, nil)
	require.NoError(t, err)
	rc, _ := newRun(t)

	res := s.Fetch(context.Background(), rc, srv.URL+"/tv")

	require.True(t, res.Success, res.Error)
	assert.Equal(t, int32(1), hits.Load())

	// Three clicks from the class selector, two from the "show more" text.
	assert.Contains(t, rc.Lines(), "   Expanded 5 hidden content sections")

	assert.Contains(t, res.Markdown, "55 inch")
	assert.NotContains(t, res.Markdown, "Follow us")
	assert.NotContains(t, res.Markdown, "©")
	assert.True(t, strings.HasSuffix(res.ArtifactName, "_pw.md"))
}

func TestBrowserStrategy_SingleAttemptOnFailure(t *testing.T) {
	bin := browserOrSkip(t)

	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL + "/gone"
	srv.Close()

	s, err := NewBrowserStrategy(BrowserOptions{Enabled: true, Bin: bin, NavTimeout: 5 * time.Second}, nil)
	require.NoError(t, err)
	rc, _ := newRun(t)

	res := s.Fetch(context.Background(), rc, target)

	assert.False(t, res.Success)
	assert.Empty(t, res.Markdown)
	failures := 0
	for _, line := range rc.Lines() {
		if strings.HasPrefix(line, "Browser: Failed") {
			failures++
		}
		assert.NotContains(t, line, "Retry")
	}
	assert.Equal(t, 1, failures)
}
