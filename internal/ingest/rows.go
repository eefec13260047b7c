package ingest

import (
	"encoding/json"
	"strings"
)

// Candidate is one catalog update read from a data row. Empty strings and a
// nil InStock mean the sheet had nothing for that field.
type Candidate struct {
	Row     int             `json:"row"`
	Code    string          `json:"code"`
	Name    string          `json:"name,omitempty"`
	Model   string          `json:"model,omitempty"`
	BoxNum  string          `json:"box_num,omitempty"`
	InStock json.RawMessage `json:"in_stock,omitempty"`
}

// Empty reports whether the row carries no field besides the barcode
func (c Candidate) Empty() bool {
	return c.Name == "" && c.Model == "" && c.BoxNum == "" && len(c.InStock) == 0
}

// ExtractRows reads every data row below the header into candidates.
// Duplicated codes are kept in sheet order.
func ExtractRows(grid [][]string, m HeaderMatch, kw Keywords) []Candidate {
	bc := m.Column(FieldBarcode)
	if bc < 0 {
		return nil
	}
	nameCol := m.Column(FieldName)
	modelCol := m.Column(FieldModel)
	boxCol := m.Column(FieldBoxNum)
	stockCol := m.Column(FieldInStock)

	var out []Candidate
	for r := m.Row + 1; r < len(grid); r++ {
		row := grid[r]
		code := normalizeCode(cell(row, bc))
		if code == "" {
			continue
		}

		c := Candidate{Row: r, Code: code}
		if name := strings.TrimSpace(cell(row, nameCol)); name != "" && !kw.AdminValue.MatchString(Normalize(name)) {
			c.Name = name
		}
		c.Model = strings.TrimSpace(cell(row, modelCol))
		c.BoxNum = strings.TrimSpace(cell(row, boxCol))
		c.InStock = stockValue(cell(row, stockCol))

		if c.Empty() {
			continue
		}
		out = append(out, c)
	}
	return out
}

// stockValue keeps numbers as JSON numbers and anything else as text
func stockValue(raw string) json.RawMessage {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if d, ok := parseNumber(raw); ok {
		return json.RawMessage(d.String())
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	return b
}

// SampleColumns returns up to limit non-empty values under the header for
// every detected column, for eyeballing a detection.
func SampleColumns(grid [][]string, m HeaderMatch, limit int) map[string][]string {
	out := make(map[string][]string, len(m.Columns))
	for field, col := range m.Columns {
		vals := []string{}
		for r := m.Row + 1; r < len(grid) && len(vals) < limit; r++ {
			if v := strings.TrimSpace(cell(grid[r], col)); v != "" {
				vals = append(vals, v)
			}
		}
		out[field] = vals
	}
	return out
}
