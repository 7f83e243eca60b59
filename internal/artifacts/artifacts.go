package artifacts

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned by Get when no artifact has the given name.
var ErrNotFound = errors.New("artifact not found")

// TimestampLayout is the second-resolution stamp embedded in artifact names.
const TimestampLayout = "20060102_150405"

// Store is a write-once byte store keyed by generated filename. Saving is
// best-effort from the pipeline's point of view; callers log failures and
// carry on.
type Store interface {
	Save(ctx context.Context, name string, content []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	// List returns stored names, newest first.
	List(ctx context.Context) ([]string, error)
}

// Name builds "{domain}_{timestamp}_{tag}.md" for a fetched URL. The domain
// drops a leading "www." and replaces dots with underscores.
func Name(rawURL, tag string, at time.Time) string {
	domain := "unknown"
	if u, err := url.Parse(strings.TrimSpace(rawURL)); err == nil && u.Hostname() != "" {
		domain = u.Hostname()
	}
	domain = strings.TrimPrefix(strings.ToLower(domain), "www.")
	domain = strings.ReplaceAll(domain, ".", "_")

	name := domain + "_" + at.Format(TimestampLayout)
	if tag != "" {
		name += "_" + tag
	}
	return name + ".md"
}

// Render prefixes content with the provenance header written at the top of
// every artifact.
func Render(rawURL, method string, at time.Time, content string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# URL: %s\n", rawURL)
	fmt.Fprintf(&b, "# Method: %s\n", method)
	fmt.Fprintf(&b, "# Scraped: %s\n\n", at.Format(time.RFC3339))
	b.WriteString(content)
	return []byte(b.String())
}

// validName rejects names that could escape a store's namespace.
func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	return nil
}
