package contentfilter

import (
	"regexp"
	"strings"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// ToText converts reduced markup into markdown-like plain text. Links keep
// only their anchor text and images are dropped. domain resolves relative
// references and may be empty.
func ToText(markup, domain string) string {
	if strings.TrimSpace(markup) == "" {
		return ""
	}

	converter := htmlmd.NewConverter(domain, true, nil)
	converter.Use(plugin.Table())
	converter.Remove("img", "picture", "svg", "video", "audio")
	converter.AddRules(htmlmd.Rule{
		Filter: []string{"a"},
		Replacement: func(content string, _ *goquery.Selection, _ *htmlmd.Options) *string {
			return htmlmd.String(content)
		},
	}, htmlmd.Rule{
		Filter: []string{"img"},
		Replacement: func(string, *goquery.Selection, *htmlmd.Options) *string {
			return htmlmd.String("")
		},
	})

	text, err := converter.ConvertString(markup)
	if err != nil {
		doc, perr := goquery.NewDocumentFromReader(strings.NewReader(markup))
		if perr != nil {
			return strings.TrimSpace(markup)
		}
		text = doc.Text()
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(text, "\n\n"))
}
