// Package contentfilter reduces arbitrary product pages to the markup and
// text that carry product signal, and strips residual boilerplate from the
// resulting markdown.
package contentfilter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	// MinViableSize is the reduced-markup size below which callers fall back
	// to MinimalReduce.
	MinViableSize = 500
	// DefaultKeepTextLen is the visible-text length above which a
	// noise-tagged element is kept anyway.
	DefaultKeepTextLen = 100
)

// Filter holds compiled pattern tables. It has no mutable state and is safe
// for concurrent use.
type Filter struct {
	keepTextLen int
	minViable   int

	removeSelector  string
	minimalSelector string
	preserved       map[string]bool
	keep            map[string]bool
	noise           []*regexp.Regexp
	product         []*regexp.Regexp

	boilerplate   []*regexp.Regexp
	noiseSections []*regexp.Regexp
	goodSections  []string
	noiseLines    []*regexp.Regexp
}

var defaultFilter = MustNew(DefaultPatterns(), DefaultKeepTextLen)

// Default returns the filter built from DefaultPatterns.
func Default() *Filter { return defaultFilter }

// New compiles p (after Merge) into a Filter. keepTextLen <= 0 selects
// DefaultKeepTextLen.
func New(p Patterns, keepTextLen int) (*Filter, error) {
	p = p.Merge()
	if keepTextLen <= 0 {
		keepTextLen = DefaultKeepTextLen
	}

	f := &Filter{
		keepTextLen:     keepTextLen,
		minViable:       MinViableSize,
		removeSelector:  strings.Join(p.RemoveTags, ","),
		minimalSelector: strings.Join(p.MinimalRemoveTags, ","),
		preserved:       toSet(p.PreservedTags),
		keep:            toSet(p.KeepTags),
		goodSections:    lowerAll(p.GoodSections),
	}

	var err error
	if f.noise, err = compileAll(p.Noise, true); err != nil {
		return nil, fmt.Errorf("noise patterns: %w", err)
	}
	if f.product, err = compileAll(p.Product, true); err != nil {
		return nil, fmt.Errorf("product patterns: %w", err)
	}
	if f.boilerplate, err = compileAll(p.BoilerplateLines, true); err != nil {
		return nil, fmt.Errorf("boilerplate patterns: %w", err)
	}
	if f.noiseSections, err = compileAll(p.NoiseSections, true); err != nil {
		return nil, fmt.Errorf("noise section patterns: %w", err)
	}
	if f.noiseLines, err = compileAll(p.NoiseLines, false); err != nil {
		return nil, fmt.Errorf("noise line patterns: %w", err)
	}
	return f, nil
}

// MustNew is New that panics on invalid patterns.
func MustNew(p Patterns, keepTextLen int) *Filter {
	f, err := New(p, keepTextLen)
	if err != nil {
		panic(err)
	}
	return f
}

// WithMinViableSize returns a copy of f whose ReduceOrMinimal guard uses n.
func (f *Filter) WithMinViableSize(n int) *Filter {
	c := *f
	if n > 0 {
		c.minViable = n
	}
	return &c
}

// MinViableSize reports the size floor used by ReduceOrMinimal.
func (f *Filter) MinViableSize() int { return f.minViable }

// Reduce applies the default filter.
func Reduce(rawMarkup string) string { return defaultFilter.Reduce(rawMarkup) }

// Reduce isolates product content in rawMarkup and returns the reduced
// markup. It never panics; internal failures degrade to MinimalReduce and
// finally to the input itself.
func (f *Filter) Reduce(rawMarkup string) (out string) {
	if strings.TrimSpace(rawMarkup) == "" {
		return rawMarkup
	}
	defer func() {
		if r := recover(); r != nil {
			out = f.MinimalReduce(rawMarkup)
		}
	}()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawMarkup))
	if err != nil {
		return f.MinimalReduce(rawMarkup)
	}

	doc.Find(f.removeSelector).Remove()
	f.removeNoise(doc)
	f.pruneEmpty(doc)

	if best := f.largestProductContainer(doc); best != nil {
		if h, err := goquery.OuterHtml(best); err == nil {
			return h
		}
	}
	if body := doc.Find("body").First(); body.Length() > 0 {
		if h, err := goquery.OuterHtml(body); err == nil {
			return h
		}
	}
	if h, err := doc.Html(); err == nil {
		return h
	}
	return rawMarkup
}

// MinimalReduce strips only script/style/noscript/frame elements.
func MinimalReduce(rawMarkup string) string { return defaultFilter.MinimalReduce(rawMarkup) }

func (f *Filter) MinimalReduce(rawMarkup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawMarkup))
	if err != nil {
		return rawMarkup
	}
	doc.Find(f.minimalSelector).Remove()
	h, err := doc.Html()
	if err != nil {
		return rawMarkup
	}
	return h
}

// ReduceOrMinimal runs Reduce and applies the minimum-size guard: when the
// reduced markup is shorter than the size floor the minimal reduction is
// returned instead and fellBack is true.
func (f *Filter) ReduceOrMinimal(rawMarkup string) (reduced string, fellBack bool) {
	reduced = f.Reduce(rawMarkup)
	if len(reduced) < f.minViable {
		return f.MinimalReduce(rawMarkup), true
	}
	return reduced, false
}

func (f *Filter) removeNoise(doc *goquery.Document) {
	var doomed []*goquery.Selection
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		if !f.isNoise(s) {
			return
		}
		if visibleLen(s) > f.keepTextLen {
			return
		}
		if f.isProduct(s) || f.hasProductDescendant(s) {
			return
		}
		doomed = append(doomed, s)
	})
	for _, s := range doomed {
		s.Remove()
	}
}

// pruneEmpty walks elements deepest-first and drops those left without text
// or an embedded image/table.
func (f *Filter) pruneEmpty(doc *goquery.Document) {
	var all []*goquery.Selection
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		all = append(all, s)
	})
	for i := len(all) - 1; i >= 0; i-- {
		s := all[i]
		if f.keep[goquery.NodeName(s)] {
			continue
		}
		if strings.TrimSpace(s.Text()) != "" {
			continue
		}
		if s.Find("img,table").Length() > 0 {
			continue
		}
		s.Remove()
	}
}

func (f *Filter) largestProductContainer(doc *goquery.Document) *goquery.Selection {
	var best *goquery.Selection
	bestLen := -1
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		if !f.isProduct(s) {
			return
		}
		if n := visibleLen(s); n > bestLen {
			best, bestLen = s, n
		}
	})
	return best
}

func (f *Filter) isNoise(s *goquery.Selection) bool {
	if f.preserved[goquery.NodeName(s)] {
		return false
	}
	tokens := attrTokens(s)
	if tokens == "" {
		return false
	}
	return matchAny(f.noise, tokens) && !matchAny(f.product, tokens)
}

func (f *Filter) isProduct(s *goquery.Selection) bool {
	tokens := attrTokens(s)
	return tokens != "" && matchAny(f.product, tokens)
}

func (f *Filter) hasProductDescendant(s *goquery.Selection) bool {
	found := false
	s.Find("*").EachWithBreak(func(_ int, c *goquery.Selection) bool {
		found = f.isProduct(c)
		return !found
	})
	return found
}

// attrTokens joins the class, id and data-* attribute values of the first
// node in s, lowercased.
func attrTokens(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	var parts []string
	for _, a := range s.Nodes[0].Attr {
		if a.Key == "class" || a.Key == "id" || strings.HasPrefix(a.Key, "data-") {
			if v := strings.TrimSpace(a.Val); v != "" {
				parts = append(parts, v)
			}
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// visibleLen counts runes of the element's text with whitespace runs
// collapsed.
func visibleLen(s *goquery.Selection) int {
	return utf8.RuneCountInString(strings.Join(strings.Fields(s.Text()), " "))
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func compileAll(patterns []string, caseInsensitive bool) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if caseInsensitive {
			p = "(?i)" + p
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[strings.ToLower(it)] = true
	}
	return m
}

func lowerAll(items []string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = strings.ToLower(it)
	}
	return out
}
