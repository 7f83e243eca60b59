package artifacts

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	assert.Equal(t, "example_com_20260304_050607_bs4.md", Name("https://www.example.com/p/1", "bs4", at))
	assert.Equal(t, "shop_example_co_uk_20260304_050607_pw.md", Name("http://shop.example.co.uk:8080/x", "pw", at))
	assert.Equal(t, "unknown_20260304_050607.md", Name("::not a url", "", at))
}

func TestRender(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	out := string(Render("https://example.com", "Firecrawl", at, "body"))

	assert.True(t, strings.HasPrefix(out, "# URL: https://example.com\n# Method: Firecrawl\n# Scraped: 2026-01-02T03:04:05Z\n\n"))
	assert.True(t, strings.HasSuffix(out, "body"))
}

func TestFileStore_SaveGetList(t *testing.T) {
	ctx := context.Background()
	st, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, st.Save(ctx, "a_20260101_000000_bs4.md", []byte("first")))
	require.NoError(t, st.Save(ctx, "b_20260101_000001_pw.md", []byte("second")))

	data, err := st.Get(ctx, "a_20260101_000000_bs4.md")
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	_, err = st.Get(ctx, "missing.md")
	assert.ErrorIs(t, err, ErrNotFound)

	names, err := st.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a_20260101_000000_bs4.md", "b_20260101_000001_pw.md"}, names)
}

func TestFileStore_RejectsTraversal(t *testing.T) {
	st, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, st.Save(context.Background(), "../escape.md", []byte("x")))
	_, err = st.Get(context.Background(), "sub/dir.md")
	assert.Error(t, err)
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.Save(ctx, "one.md", []byte("1")))
	require.NoError(t, st.Save(ctx, "two.md", []byte("2")))

	names, err := st.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"two.md", "one.md"}, names)
}
