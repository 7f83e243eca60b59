package scraper

import (
	"math/rand/v2"
	"net/url"
	"time"
)

// DefaultUserAgents is the desktop browser pool rotated across requests.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
}

// DefaultAcceptLanguage matches the storefront locale the pipeline targets.
const DefaultAcceptLanguage = "en-US,en;q=0.9,ar;q=0.8"

// HTTPOptions configures the lightweight HTTP variant.
type HTTPOptions struct {
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	UserAgents  []string
	// RespectRobots makes the variant refuse URLs disallowed by robots.txt.
	RespectRobots bool
}

func (o HTTPOptions) withDefaults() HTTPOptions {
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if len(o.UserAgents) == 0 {
		o.UserAgents = DefaultUserAgents
	}
	return o
}

// pickUserAgent returns a random entry of pool.
func pickUserAgent(pool []string) string {
	if len(pool) == 0 {
		pool = DefaultUserAgents
	}
	return pool[rand.IntN(len(pool))]
}

// BrowserHeaders builds a realistic desktop navigation header set for u,
// with a Referer pointing at the site root.
func BrowserHeaders(u *url.URL, userAgent string) map[string]string {
	return map[string]string{
		"User-Agent":                userAgent,
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language":           DefaultAcceptLanguage,
		"DNT":                       "1",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
		"Cache-Control":             "max-age=0",
		"Referer":                   u.Scheme + "://" + u.Host + "/",
	}
}
