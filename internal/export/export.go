// Package export assembles the CMS import row for a product and writes it
// as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"paxth/internal/model"
)

// OperatorFields are values typed in by the operator. They win over
// extracted values in the exported row.
type OperatorFields struct {
	SKU            string
	BaseCode       string
	EAN            string
	ShippingWeight string
	Color          string
	ProductType    string
}

// FromProduct copies the operator fields of p.
func FromProduct(p model.Product) OperatorFields {
	return OperatorFields{
		SKU:            p.SKU,
		BaseCode:       p.BaseCode,
		EAN:            p.EAN,
		ShippingWeight: p.ShippingWeight,
		Color:          p.Color,
		ProductType:    p.ProductType,
	}
}

// Columns maps each operator field to its template column.
func (o OperatorFields) Columns() map[string]string {
	return map[string]string{
		"sku":                         o.SKU,
		"base_code":                   o.BaseCode,
		"attributes__lulu_ean":        o.EAN,
		"attributes__shipping_weight": o.ShippingWeight,
		"attributes__color":           o.Color,
		"attributes__product_type":    o.ProductType,
	}
}

// BuildRow returns one value per header, in header order. A non-empty
// operator field wins, then the final value, then "".
func BuildRow(op OperatorFields, final model.FinalValueMap, headers []string) []string {
	cols := op.Columns()
	row := make([]string, len(headers))
	for i, h := range headers {
		if v := strings.TrimSpace(cols[h]); v != "" {
			row[i] = v
			continue
		}
		row[i] = final[h]
	}
	return row
}

// WriteCSV writes the header line followed by rows. Every row must have one
// value per header.
func WriteCSV(w io.Writer, headers []string, rows ...[]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return err
	}
	for i, row := range rows {
		if len(row) != len(headers) {
			return fmt.Errorf("row %d has %d values, want %d", i, len(row), len(headers))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var fileNameReplacer = strings.NewReplacer("/", "_", "\\", "_", " ", "_", ":", "_", "\"", "", "&", "and")

// FileName is the download name for a product export.
func FileName(category, sku string) string {
	if strings.TrimSpace(sku) == "" {
		sku = "export"
	}
	return fileNameReplacer.Replace(fmt.Sprintf("%s_%s_template.csv", strings.TrimSpace(category), strings.TrimSpace(sku)))
}
