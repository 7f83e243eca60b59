package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paxth/internal/catalog"
	"paxth/internal/model"
)

func TestBuildRow_OperatorFieldsWin(t *testing.T) {
	headers := []string{"sku", "base_code", "attributes__color", "attributes__brand", "attributes__lulu_ean", "attributes__model"}
	op := OperatorFields{SKU: "SKU-1", BaseCode: "BC1", Color: "", EAN: "1234567890123"}
	final := model.FinalValueMap{"attributes__color": "Black", "attributes__brand": "Acme", "sku": "ignored"}

	row := BuildRow(op, final, headers)

	assert.Equal(t, []string{"SKU-1", "BC1", "Black", "Acme", "1234567890123", ""}, row)
}

func TestWriteCSV_TVTemplateHasEveryColumn(t *testing.T) {
	cat := catalog.Default()
	headers := cat.Attributes("TV")
	extraction := cat.ExtractionAttributes("TV")
	require.Len(t, extraction, len(headers)-len(cat.Passthrough()))

	final := model.FinalValueMap{extraction[0]: "tv, 4k, \"smart\""}
	row := BuildRow(OperatorFields{SKU: "TV-55", BaseCode: "B55"}, final, headers)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, headers, row))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, headers, records[0])
	require.Len(t, records[1], len(headers))
	for _, h := range extraction {
		assert.Contains(t, records[0], h)
	}
	assert.Contains(t, records[1], "tv, 4k, \"smart\"")
	assert.Contains(t, records[1], "TV-55")
}

func TestWriteCSV_RowWidthMismatch(t *testing.T) {
	err := WriteCSV(&bytes.Buffer{}, []string{"a", "b"}, []string{"1"})
	assert.Error(t, err)
}

func TestWriteCSV_Batch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []string{"sku", "x"}, []string{"A", "1"}, []string{"B", "2"}))
	assert.Equal(t, "sku,x\nA,1\nB,2\n", buf.String())
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "TV_SKU-1_template.csv", FileName("TV", "SKU-1"))
	assert.Equal(t, "Smartphones_and_Tablets_export_template.csv", FileName("Smartphones & Tablets", ""))
}

func TestFromProduct(t *testing.T) {
	op := FromProduct(model.Product{SKU: "S", BaseCode: "B", ProductType: "Television"})
	assert.Equal(t, "Television", op.Columns()["attributes__product_type"])
}
