package scraper

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"paxth/internal/contentfilter"
	"paxth/internal/model"
	"paxth/internal/runctx"
)

// Viewport is a browser window size.
type Viewport struct {
	Width  int
	Height int
}

// DefaultViewports are common desktop resolutions picked at random per call.
var DefaultViewports = []Viewport{
	{1920, 1080},
	{1366, 768},
	{1536, 864},
	{1440, 900},
}

// DefaultExpandSelectors locate "show more" style controls on common
// storefronts.
var DefaultExpandSelectors = []string{
	"[class*='expand']",
	"[class*='show-more']",
	"[class*='showmore']",
	"[class*='read-more']",
	"[class*='readmore']",
	"[class*='load-more']",
	"[class*='loadmore']",
	"[class*='see-more']",
	"[class*='seemore']",
	"[class*='view-more']",
	"[class*='viewmore']",
	"[aria-expanded='false']",
	"[data-action='expand']",
	"[data-toggle='collapse']",
	"#productDescription-expander",
	".a-expander-prompt",
	".a-expander-header",
	"#aplus-expander-content",
	"#feature-bullets-expander",
	".a-declarative[data-action='a-expander-toggle']",
	"[data-csa-c-type='widget'][data-csa-c-content-id*='expander']",
	"#btfContent .a-expander-prompt",
	".show-more-button",
	"[class*='ShowMore']",
	"[data-testid='see-more-link']",
	".see-more-link",
	"[data-test='detailsTab']",
	"[data-test='specificationsTab']",
	"button[class*='spec']",
	"button[class*='detail']",
	"button[class*='description']",
	".accordion-toggle",
	".collapsible-trigger",
	".toggle-content",
	"[role='button'][aria-expanded='false']",
	"[role='tab'][aria-selected='false']",
	".tab:not(.active)",
	".nav-tab:not(.active)",
}

// DefaultExpandTextPatterns match the visible label of expand controls.
var DefaultExpandTextPatterns = []string{
	`show\s*more`,
	`read\s*more`,
	`see\s*more`,
	`view\s*more`,
	`load\s*more`,
	`expand`,
	`see\s*all`,
	`view\s*all`,
	`more\s*details`,
	`full\s*description`,
	`show\s*details`,
	`specifications`,
	`tech\s*specs`,
}

const hideWebdriver = `Object.defineProperty(navigator, 'webdriver', { get: () => undefined });`

// BrowserOptions configures the headless-browser variant.
type BrowserOptions struct {
	Enabled bool
	// ControlURL connects to an already running browser instead of
	// launching one.
	ControlURL string
	// Bin is the browser executable; empty means look it up on the system.
	Bin                  string
	NavTimeout           time.Duration
	IdleTimeout          time.Duration
	ScrollPause          time.Duration
	ClickPause           time.Duration
	Settle               time.Duration
	MaxClicksPerSelector int
	MaxClicksPerText     int
	// MaxScrollSteps bounds the lazy-load scroll on pages that keep growing.
	MaxScrollSteps int
	Viewports            []Viewport
	UserAgents           []string
	ExpandSelectors      []string
	ExpandTextPatterns   []string
}

func (o BrowserOptions) withDefaults() BrowserOptions {
	if o.NavTimeout <= 0 {
		o.NavTimeout = 60 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 15 * time.Second
	}
	if o.ScrollPause <= 0 {
		o.ScrollPause = 400 * time.Millisecond
	}
	if o.ClickPause <= 0 {
		o.ClickPause = 300 * time.Millisecond
	}
	if o.Settle <= 0 {
		o.Settle = time.Second
	}
	if o.MaxClicksPerSelector <= 0 {
		o.MaxClicksPerSelector = 10
	}
	if o.MaxClicksPerText <= 0 {
		o.MaxClicksPerText = 5
	}
	if o.MaxScrollSteps <= 0 {
		o.MaxScrollSteps = 20
	}
	if len(o.Viewports) == 0 {
		o.Viewports = DefaultViewports
	}
	if len(o.UserAgents) == 0 {
		o.UserAgents = DefaultUserAgents[:3]
	}
	if len(o.ExpandSelectors) == 0 {
		o.ExpandSelectors = DefaultExpandSelectors
	}
	if len(o.ExpandTextPatterns) == 0 {
		o.ExpandTextPatterns = DefaultExpandTextPatterns
	}
	return o
}

// BrowserStrategy renders the page in headless Chromium, reveals lazy and
// collapsed content, then filters and denoises the final DOM. It makes a
// single attempt per call.
type BrowserStrategy struct {
	opts      BrowserOptions
	filter    *contentfilter.Filter
	textRules []*regexp.Regexp
	lookPath  func() (string, bool)
}

func NewBrowserStrategy(opts BrowserOptions, filter *contentfilter.Filter) (*BrowserStrategy, error) {
	opts = opts.withDefaults()
	if filter == nil {
		filter = contentfilter.Default()
	}
	rules := make([]*regexp.Regexp, 0, len(opts.ExpandTextPatterns))
	for _, p := range opts.ExpandTextPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("expand text pattern %q: %w", p, err)
		}
		rules = append(rules, re)
	}
	return &BrowserStrategy{opts: opts, filter: filter, textRules: rules, lookPath: launcher.LookPath}, nil
}

func (s *BrowserStrategy) Name() string { return "Browser" }
func (s *BrowserStrategy) Tag() string  { return "pw" }

func (s *BrowserStrategy) Available() error {
	if !s.opts.Enabled {
		return fmt.Errorf("Browser %w", ErrUnavailable)
	}
	if s.opts.ControlURL != "" || s.opts.Bin != "" {
		return nil
	}
	if _, ok := s.lookPath(); !ok {
		return fmt.Errorf("Browser %w: no Chromium executable found", ErrUnavailable)
	}
	return nil
}

func (s *BrowserStrategy) Fetch(ctx context.Context, rc *runctx.RunContext, rawURL string) model.ScrapeResult {
	rc.Logf("Browser: Fetching %s...", rawURL)

	u, err := parseTarget(rawURL)
	if err != nil {
		return fail(rc, s, err)
	}
	if err := s.Available(); err != nil {
		return fail(rc, s, err)
	}

	html, err := s.render(ctx, rc, u.String())
	if err != nil {
		return fail(rc, s, err)
	}

	text := markupToText(rc, s.filter, html, u.Hostname())
	text = s.filter.DenoiseLines(text)
	return finish(ctx, rc, s, u.String(), text)
}

// render runs one isolated browser session and returns the final DOM. Rod
// panics from Must helpers inside the session are converted to errors.
func (s *BrowserStrategy) render(ctx context.Context, rc *runctx.RunContext, target string) (html string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("browser session: %v", r)
		}
	}()

	controlURL := s.opts.ControlURL
	launched := controlURL == ""
	if launched {
		l := launcher.New().
			Context(ctx).
			Headless(true).
			NoSandbox(true).
			Set("disable-blink-features", "AutomationControlled").
			Set("disable-dev-shm-usage")
		if s.opts.Bin != "" {
			l = l.Bin(s.opts.Bin)
		}
		defer l.Cleanup()
		controlURL, err = l.Launch()
		if err != nil {
			return "", fmt.Errorf("launch browser: %w", err)
		}
	}

	browser := rod.New().Context(ctx).ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return "", fmt.Errorf("connect browser: %w", err)
	}
	if launched {
		defer browser.Close()
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return "", fmt.Errorf("incognito context: %w", err)
	}
	defer incognito.Close()

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	vp := s.opts.Viewports[rand.IntN(len(s.opts.Viewports))]
	if err := s.stealth(incognito, page, vp); err != nil {
		return "", err
	}

	if err := page.Timeout(s.opts.NavTimeout).Navigate(target); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}
	// Load and network quiescence are best-effort.
	_ = page.Timeout(s.opts.NavTimeout).WaitLoad()
	_ = page.Timeout(s.opts.IdleTimeout).WaitIdle(s.opts.IdleTimeout)

	rc.Logf("   Scrolling to load lazy content...")
	s.scroll(ctx, page, vp)

	rc.Logf("   Expanding hidden content sections...")
	if n := s.expand(ctx, page); n > 0 {
		rc.Logf("   Expanded %d hidden content sections", n)
	}

	if err := sleepCtx(ctx, s.opts.Settle); err != nil {
		return "", err
	}

	html, err = page.HTML()
	if err != nil {
		return "", fmt.Errorf("read DOM: %w", err)
	}
	return html, nil
}

func (s *BrowserStrategy) stealth(b *rod.Browser, page *rod.Page, vp Viewport) error {
	if _, err := page.EvalOnNewDocument(hideWebdriver); err != nil {
		return fmt.Errorf("init script: %w", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      pickUserAgent(s.opts.UserAgents),
		AcceptLanguage: "en-US",
	}); err != nil {
		return fmt.Errorf("user agent: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return fmt.Errorf("viewport: %w", err)
	}
	if err := (proto.EmulationSetLocaleOverride{Locale: "en-US"}).Call(page); err != nil {
		return fmt.Errorf("locale: %w", err)
	}
	if err := (proto.EmulationSetTimezoneOverride{TimezoneID: "Asia/Dubai"}).Call(page); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	lat, lng, acc := 25.2048, 55.2708, 100.0
	_ = proto.BrowserGrantPermissions{
		Permissions:      []proto.BrowserPermissionType{proto.BrowserPermissionTypeGeolocation},
		BrowserContextID: b.BrowserContextID,
	}.Call(b)
	if err := (proto.EmulationSetGeolocationOverride{Latitude: &lat, Longitude: &lng, Accuracy: &acc}).Call(page); err != nil {
		return fmt.Errorf("geolocation: %w", err)
	}
	return nil
}

// scroll steps down the page by 80% of the viewport, following height
// growth from lazy loading, then returns to the top.
func (s *BrowserStrategy) scroll(ctx context.Context, page *rod.Page, vp Viewport) {
	step := vp.Height * 8 / 10
	if inner := evalInt(page, `() => window.innerHeight`); inner > 0 {
		step = inner * 8 / 10
	}
	s.scrollSteps(ctx, step,
		func() int { return evalInt(page, `() => document.body.scrollHeight`) },
		func(y int) error {
			_, err := page.Eval(`(y) => window.scrollTo(0, y)`, y)
			return err
		})
	_, _ = page.Eval(`() => window.scrollTo(0, 0)`)
	_ = sleepCtx(ctx, 500*time.Millisecond)
}

// scrollSteps scrolls in step increments until the bottom is reached or
// MaxScrollSteps is spent, and returns the number of steps taken.
func (s *BrowserStrategy) scrollSteps(ctx context.Context, step int, height func() int, scrollTo func(int) error) int {
	if step <= 0 {
		return 0
	}
	limit := height()
	steps := 0
	for pos := 0; pos < limit && steps < s.opts.MaxScrollSteps; pos += step {
		if scrollTo(pos) != nil {
			break
		}
		steps++
		if sleepCtx(ctx, s.opts.ScrollPause) != nil {
			break
		}
		if h := height(); h > limit {
			limit = h
		}
	}
	return steps
}

// expand clicks visible expand controls, bounded per selector and per text
// pattern, and returns how many clicks landed.
func (s *BrowserStrategy) expand(ctx context.Context, page *rod.Page) int {
	clicked := 0
	click := func(el *rod.Element) bool {
		if ctx.Err() != nil {
			return false
		}
		visible, err := el.Visible()
		if err != nil || !visible {
			return false
		}
		if err := el.Timeout(2*time.Second).Click(proto.InputMouseButtonLeft, 1); err != nil {
			return false
		}
		clicked++
		_ = sleepCtx(ctx, s.opts.ClickPause)
		return true
	}

	for _, sel := range s.opts.ExpandSelectors {
		els, err := page.Elements(sel)
		if err != nil {
			continue
		}
		for i, el := range els {
			if i >= s.opts.MaxClicksPerSelector {
				break
			}
			click(el)
		}
	}

	for _, re := range s.textRules {
		for _, group := range []string{"button", "a, span"} {
			els, err := page.Elements(group)
			if err != nil {
				continue
			}
			n := 0
			for _, el := range els {
				if n >= s.opts.MaxClicksPerText {
					break
				}
				txt, err := el.Text()
				if err != nil || !re.MatchString(txt) {
					continue
				}
				n++
				click(el)
			}
		}
	}
	return clicked
}

func evalInt(page *rod.Page, js string) int {
	res, err := page.Eval(js)
	if err != nil || res == nil {
		return 0
	}
	return res.Value.Int()
}
