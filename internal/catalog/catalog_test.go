package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCategories(t *testing.T) {
	c := Default()

	names := c.ListCategories()
	require.Len(t, names, 9)
	assert.Equal(t, "TV", names[0])
	assert.Contains(t, names, "Elec-Audio-Headphones")
}

func TestTVAttributes(t *testing.T) {
	c := Default()

	all := c.Attributes("TV")
	require.Len(t, all, 51)
	assert.Equal(t, "sku", all[0])

	extract := c.ExtractionAttributes("TV")
	assert.Len(t, extract, 47)
	for _, skipped := range []string{"sku", "base_code", "attributes__lulu_ean", "attributes__shipping_weight"} {
		assert.NotContains(t, extract, skipped)
	}
	assert.Equal(t, "attributes__keywords", extract[0])
}

func TestFormattingRules(t *testing.T) {
	c := Default()

	rules := c.FormattingRules("Elec-Audio-Headphones")
	assert.Equal(t, "Extract IP rating from data", rules["attributes__ip_rating"])
	assert.Empty(t, c.FormattingRules("TV"))

	rules["attributes__ip_rating"] = "mutated"
	assert.Equal(t, "Extract IP rating from data", c.FormattingRules("Elec-Audio-Headphones")["attributes__ip_rating"])
}

func TestUnknownCategory(t *testing.T) {
	c := Default()

	assert.Nil(t, c.Attributes("Toasters"))
	assert.Nil(t, c.ExtractionAttributes("Toasters"))
	_, err := c.Category("Toasters")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestLoadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cats.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
passthrough: [sku]
categories:
  - name: Kettles
    headers: [sku, attributes__capacity, attributes__color]
    rules:
      attributes__capacity: Litres with unit
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Kettles"}, c.ListCategories())
	assert.Equal(t, []string{"attributes__capacity", "attributes__color"}, c.ExtractionAttributes("Kettles"))
	assert.Equal(t, "Litres with unit", c.FormattingRules("Kettles")["attributes__capacity"])
}

func TestParseRejectsInvalid(t *testing.T) {
	_, err := Parse([]byte(`categories: []`))
	assert.Error(t, err)

	_, err = Parse([]byte("categories:\n  - name: A\n    headers: [x]\n  - name: A\n    headers: [y]\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("categories:\n  - name: A\n"))
	assert.Error(t, err)
}
