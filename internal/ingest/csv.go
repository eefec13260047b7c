package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jszwec/csvutil"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CatalogRecord is one row of a catalog export with fixed English headers:
// code,name,model,box_num,in_stock. Only code is required.
type CatalogRecord struct {
	Code    string `csv:"code"`
	Name    string `csv:"name,omitempty"`
	Model   string `csv:"model,omitempty"`
	BoxNum  string `csv:"box_num,omitempty"`
	InStock string `csv:"in_stock,omitempty"`
}

var (
	ErrEmptyCSV     = errors.New("csv is empty")
	ErrNoCodeColumn = errors.New("csv has no code column")
)

// ReadCatalogCSV decodes a catalog CSV into update candidates. Rows with no
// code or nothing besides it are dropped, like spreadsheet rows.
func ReadCatalogCSV(r io.Reader) ([]Candidate, error) {
	// spreadsheet programs prefix UTF-8 exports with a BOM
	r = transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	dec, err := csvutil.NewDecoder(cr)
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyCSV
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV decoder: %w", err)
	}
	hasCode := false
	for _, h := range dec.Header() {
		if strings.TrimSpace(h) == "code" {
			hasCode = true
		}
	}
	if !hasCode {
		return nil, ErrNoCodeColumn
	}

	var out []Candidate
	for line := 2; ; line++ {
		var rec CatalogRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		code := normalizeCode(rec.Code)
		if code == "" {
			continue
		}
		c := Candidate{
			Row:     line - 1,
			Code:    code,
			Name:    strings.TrimSpace(rec.Name),
			Model:   strings.TrimSpace(rec.Model),
			BoxNum:  strings.TrimSpace(rec.BoxNum),
			InStock: stockValue(rec.InStock),
		}
		if c.Empty() {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
