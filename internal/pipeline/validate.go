package pipeline

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"paxth/internal/catalog"
	"paxth/internal/model"
)

// ValidationError lists every problem found in a product request.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid product: " + strings.Join(e.Problems, "; ")
}

// Validate checks operator input before any network work happens.
func Validate(p model.Product, cat *catalog.Catalog) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if cat != nil {
		if _, err := cat.Category(p.Category); err != nil {
			add("%v", err)
		}
	}

	if msg := validateSKU(p.SKU); msg != "" {
		add("%s", msg)
	}
	if strings.TrimSpace(p.BaseCode) == "" {
		add("Base code is required")
	}
	if msg := validateEAN(p.EAN); msg != "" {
		add("%s", msg)
	}

	if len(p.URLs) > model.MaxURLSources {
		add("at most %d URLs are accepted", model.MaxURLSources)
	}
	hasURL := false
	for i, u := range p.URLs {
		raw := strings.TrimSpace(u.URL)
		if raw == "" {
			continue
		}
		hasURL = true
		if msg := validateURL(raw); msg != "" {
			add("URL %d: %s", i+1, msg)
		}
		if _, err := model.ParseMethod(string(u.Method)); err != nil {
			add("URL %d: %v", i+1, err)
		}
	}
	hasDoc := p.Document != nil && len(p.Document.Content) > 0
	if !hasURL && !hasDoc {
		add("Provide at least one URL or upload a document")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func validateSKU(sku string) string {
	sku = strings.TrimSpace(sku)
	switch n := utf8.RuneCountInString(sku); {
	case n == 0:
		return "SKU is required"
	case n < 2:
		return "SKU must be at least 2 characters"
	case n > 50:
		return "SKU must be at most 50 characters"
	}
	return ""
}

func validateEAN(ean string) string {
	ean = strings.TrimSpace(ean)
	if ean == "" {
		return ""
	}
	for _, r := range ean {
		if r < '0' || r > '9' {
			return "EAN must contain only digits"
		}
	}
	switch len(ean) {
	case 8, 12, 13, 14:
		return ""
	}
	return "EAN must be 8, 12, 13, or 14 digits"
}

func validateURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Sprintf("Invalid URL format: %s", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Sprintf("Invalid URL format: %s", raw)
	}
	if u.Hostname() == "" {
		return fmt.Sprintf("Invalid URL format: %s", raw)
	}
	return ""
}
