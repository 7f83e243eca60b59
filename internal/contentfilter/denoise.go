package contentfilter

import (
	"regexp"
	"strings"
)

var (
	manyNewlines = regexp.MustCompile(`\n{4,}`)
	inlineLink   = regexp.MustCompile(`\]\(`)
	headingLine  = regexp.MustCompile(`^#+\s`)
)

// DenoiseLines applies the default filter.
func DenoiseLines(markdown string) string { return defaultFilter.DenoiseLines(markdown) }

// DenoiseLines drops boilerplate lines (sign-in prompts, copyright, social
// links, separators) from rendered page text and collapses consecutive
// blank lines into one.
func (f *Filter) DenoiseLines(markdown string) string {
	lines := strings.Split(markdown, "\n")
	out := make([]string, 0, len(lines))
	prevBlank := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if !prevBlank {
				out = append(out, "")
			}
			prevBlank = true
			continue
		}
		if matchAny(f.boilerplate, strings.ToLower(trimmed)) {
			continue
		}
		out = append(out, line)
		prevBlank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// FilterSections applies the default filter.
func FilterSections(markdown string) string { return defaultFilter.FilterSections(markdown) }

// FilterSections removes whole markdown sections whose heading names noise
// (related products, reviews, social, newsletter) until a heading naming
// product content re-opens output. Link-dense lines and noise lines are
// dropped everywhere.
func (f *Filter) FilterSections(markdown string) string {
	lines := strings.Split(markdown, "\n")
	out := make([]string, 0, len(lines))
	skipping := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)

		if matchAny(f.noiseSections, lower) {
			skipping = true
		}
		if skipping && headingLine.MatchString(trimmed) && f.isGoodHeading(lower) {
			skipping = false
		}
		if skipping {
			continue
		}
		if len(inlineLink.FindAllStringIndex(line, -1)) > 3 {
			continue
		}
		if matchAny(f.noiseLines, line) {
			continue
		}
		out = append(out, line)
	}

	result := strings.Join(out, "\n")
	result = manyNewlines.ReplaceAllString(result, "\n\n\n")
	return strings.TrimSpace(result)
}

func (f *Filter) isGoodHeading(lowerHeading string) bool {
	for _, g := range f.goodSections {
		if strings.Contains(lowerHeading, g) {
			return true
		}
	}
	return false
}
