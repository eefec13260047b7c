package ingest

import (
	"errors"
	"strings"

	"github.com/hybrid-bistoon/anbar/internal/utils"
)

// Literal header cells of the accounting pre-invoice export
const (
	PreInvoiceBarcodeHeader  = "بارکد"
	PreInvoiceQuantityHeader = "مقدار اصلی"
)

// Layouts ParsePreInvoice understands
const (
	LayoutPreInvoice = "pre-invoice"
	LayoutLegacy     = "legacy"
)

// ErrNoInvoiceLayout is returned when neither the pre-invoice header pair nor
// the legacy barcode/quantity columns exist
var ErrNoInvoiceLayout = errors.New("no barcode/quantity header found in workbook")

// Sheet is one worksheet as a grid of trimmed-or-raw cell strings
type Sheet struct {
	Name string
	Rows [][]string
}

// InvoiceRow is a validated barcode/quantity pair
type InvoiceRow struct {
	Sheet    string `json:"sheet"`
	Row      int    `json:"row"` // 1-based, as shown in spreadsheet programs
	Barcode  string `json:"barcode"`
	Quantity int    `json:"quantity"`
}

// SkippedRow explains why a data row was dropped
type SkippedRow struct {
	Sheet  string `json:"sheet"`
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// PreInvoice is the parsed content of an uploaded invoice workbook
type PreInvoice struct {
	Layout  string       `json:"layout"`
	Rows    []InvoiceRow `json:"rows"`
	Skipped []SkippedRow `json:"skipped"`
}

// ParsePreInvoice looks for the pre-invoice header pair in the first 20 rows
// of every sheet, first match wins. Without one it falls back to the legacy
// layout: first sheet, first row naming "barcode" and "quantity" columns.
func ParsePreInvoice(sheets []Sheet) (*PreInvoice, error) {
	for _, sh := range sheets {
		limit := min(len(sh.Rows), headerScanRows)
		for r := 0; r < limit; r++ {
			bc := indexOf(sh.Rows[r], PreInvoiceBarcodeHeader, false)
			qty := indexOf(sh.Rows[r], PreInvoiceQuantityHeader, false)
			if bc >= 0 && qty >= 0 {
				out := &PreInvoice{Layout: LayoutPreInvoice}
				out.collect(sh, r, bc, qty, PreInvoiceBarcodeHeader, PreInvoiceQuantityHeader)
				return out, nil
			}
		}
	}

	if len(sheets) > 0 && len(sheets[0].Rows) > 0 {
		sh := sheets[0]
		bc := indexOf(sh.Rows[0], "barcode", true)
		qty := indexOf(sh.Rows[0], "quantity", true)
		if bc >= 0 && qty >= 0 {
			out := &PreInvoice{Layout: LayoutLegacy}
			out.collect(sh, 0, bc, qty, "barcode", "quantity")
			return out, nil
		}
	}
	return nil, ErrNoInvoiceLayout
}

func (p *PreInvoice) collect(sh Sheet, headerRow, bcCol, qtyCol int, bcHeader, qtyHeader string) {
	p.Rows = []InvoiceRow{}
	p.Skipped = []SkippedRow{}
	for r := headerRow + 1; r < len(sh.Rows); r++ {
		rawBC := strings.TrimSpace(cell(sh.Rows[r], bcCol))
		rawQty := strings.TrimSpace(cell(sh.Rows[r], qtyCol))
		if rawBC == "" && rawQty == "" {
			continue
		}
		skip := func(reason string) {
			p.Skipped = append(p.Skipped, SkippedRow{Sheet: sh.Name, Row: r + 1, Reason: reason})
		}

		// repeated header rows from merged exports
		if strings.EqualFold(rawBC, bcHeader) || strings.EqualFold(rawQty, qtyHeader) {
			skip("repeated header")
			continue
		}

		code := normalizeCode(rawBC)
		if !utils.IsBarcode(code) {
			skip("barcode must be 13 digits")
			continue
		}
		q, ok := parseNumber(rawQty)
		if !ok {
			skip("quantity is not a number")
			continue
		}
		if !q.IsInteger() || !q.IsPositive() || q.IntPart() > maxLineQuantity {
			skip("quantity must be a positive whole number")
			continue
		}
		p.Rows = append(p.Rows, InvoiceRow{Sheet: sh.Name, Row: r + 1, Barcode: code, Quantity: int(q.IntPart())})
	}
}

// maxLineQuantity caps a single line, far above any real order
const maxLineQuantity = 1_000_000

func indexOf(row []string, header string, fold bool) int {
	for i, c := range row {
		c = strings.TrimSpace(c)
		if c == header || (fold && strings.EqualFold(c, header)) {
			return i
		}
	}
	return -1
}
