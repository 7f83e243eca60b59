// Package catalog is the static table of product categories: the ordered
// CMS attribute headers of each category, the operator-supplied
// pass-through fields, and optional per-attribute formatting rules for the
// extractor.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/categories.yaml
var builtin []byte

// ErrUnknownCategory is returned for names not present in the catalog.
var ErrUnknownCategory = errors.New("unknown category")

// Category is one CMS template.
type Category struct {
	Name    string            `yaml:"name" json:"name"`
	Label   string            `yaml:"label,omitempty" json:"label,omitempty"`
	Headers []string          `yaml:"headers" json:"headers"`
	Rules   map[string]string `yaml:"rules,omitempty" json:"rules,omitempty"`
}

type file struct {
	Passthrough []string   `yaml:"passthrough"`
	Categories  []Category `yaml:"categories"`
}

// Catalog is read-only after construction and safe for concurrent use.
type Catalog struct {
	passthrough []string
	skip        map[string]bool
	order       []string
	byName      map[string]Category
}

var defaultCatalog = mustParse(builtin)

// Default returns the built-in catalog.
func Default() *Catalog { return defaultCatalog }

// Load reads a catalog override from path; an empty path returns the
// built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return defaultCatalog, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(f.Categories) == 0 {
		return nil, errors.New("catalog has no categories")
	}

	c := &Catalog{
		passthrough: f.Passthrough,
		skip:        make(map[string]bool, len(f.Passthrough)),
		byName:      make(map[string]Category, len(f.Categories)),
	}
	for _, p := range f.Passthrough {
		c.skip[p] = true
	}
	for i, cat := range f.Categories {
		name := strings.TrimSpace(cat.Name)
		if name == "" {
			return nil, fmt.Errorf("category %d: missing name", i)
		}
		if _, dup := c.byName[name]; dup {
			return nil, fmt.Errorf("category %q: defined twice", name)
		}
		if len(cat.Headers) == 0 {
			return nil, fmt.Errorf("category %q: no headers", name)
		}
		cat.Name = name
		c.byName[name] = cat
		c.order = append(c.order, name)
	}
	return c, nil
}

func mustParse(data []byte) *Catalog {
	c, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return c
}

// ListCategories returns category names in catalog order.
func (c *Catalog) ListCategories() []string {
	return append([]string(nil), c.order...)
}

// Category returns the named category.
func (c *Catalog) Category(name string) (Category, error) {
	cat, ok := c.byName[name]
	if !ok {
		return Category{}, fmt.Errorf("%w: %s", ErrUnknownCategory, name)
	}
	return cat, nil
}

// Attributes returns every header of category in CSV column order, or nil
// for an unknown category.
func (c *Catalog) Attributes(category string) []string {
	cat, ok := c.byName[category]
	if !ok {
		return nil
	}
	return append([]string(nil), cat.Headers...)
}

// ExtractionAttributes is Attributes minus the pass-through fields.
func (c *Catalog) ExtractionAttributes(category string) []string {
	cat, ok := c.byName[category]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(cat.Headers))
	for _, h := range cat.Headers {
		if !c.skip[h] {
			out = append(out, h)
		}
	}
	return out
}

// FormattingRules returns per-attribute instructions, possibly empty.
func (c *Catalog) FormattingRules(category string) map[string]string {
	cat, ok := c.byName[category]
	if !ok || len(cat.Rules) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(cat.Rules))
	for k, v := range cat.Rules {
		out[k] = v
	}
	return out
}

// Passthrough lists the fields supplied directly by the operator.
func (c *Catalog) Passthrough() []string {
	return append([]string(nil), c.passthrough...)
}
