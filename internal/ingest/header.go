package ingest

import "regexp"

// Catalog columns the detector looks for
const (
	FieldBarcode = "barcode"
	FieldName    = "name"
	FieldModel   = "model"
	FieldBoxNum  = "boxNum"
	FieldInStock = "inStock"
)

const (
	headerScanRows   = 20
	nameSampleRows   = 7
	adminNameMaxRate = 0.6
)

// Keywords is the pattern table used to recognise header cells. All patterns
// are matched against Normalize(cell).
type Keywords struct {
	Barcode     *regexp.Regexp
	Model       *regexp.Regexp
	BoxNum      *regexp.Regexp
	InStock     *regexp.Regexp
	NameAllow   *regexp.Regexp
	NameDeny    *regexp.Regexp
	GenericName *regexp.Regexp
	// AdminValue matches values that name a warehouse unit, not a product
	AdminValue *regexp.Regexp
}

// DefaultKeywords returns the table tuned on supplier exports
func DefaultKeywords() Keywords {
	return Keywords{
		Barcode:     regexp.MustCompile(`بارکد`),
		Model:       regexp.MustCompile(`مدلکالا|مدل`),
		BoxNum:      regexp.MustCompile(`تعداددرکارتن|تعدادکارتن|تعداددرجعبه|جعبه|کارتن`),
		InStock:     regexp.MustCompile(`موجودیاصلی|موجودی`),
		NameAllow:   regexp.MustCompile(`نامکالا|ناممحصول|شرحکالا|شرحمحصول|شرح|عنوانکالا|عنوانمحصول`),
		NameDeny:    regexp.MustCompile(`مرکز|نامانبار|انبار|واحد|مشتری|فروشنده|طرف|حساب`),
		GenericName: regexp.MustCompile(`(^|[^آ-ی])نام($|[^آ-ی])`),
		AdminValue:  regexp.MustCompile(`مرکز|انبار|واحد|اداره|بخش`),
	}
}

// HeaderMatch is the detected header row and the 0-based column of each
// field found on it. Absent fields are not in Columns.
type HeaderMatch struct {
	Row     int            `json:"row"`
	Columns map[string]int `json:"columns"`
}

// Column returns the index of field, or -1
func (m HeaderMatch) Column(field string) int {
	if idx, ok := m.Columns[field]; ok {
		return idx
	}
	return -1
}

// DetectHeader finds the first row among the top 20 that holds a barcode
// column and maps the other catalog fields on that row.
func DetectHeader(grid [][]string, kw Keywords) (HeaderMatch, bool) {
	limit := min(len(grid), headerScanRows)
	for r := 0; r < limit; r++ {
		cols := matchRow(grid[r], kw)
		if _, ok := cols[FieldBarcode]; !ok {
			continue
		}
		if idx, ok := cols[FieldName]; ok && adminColumn(grid, r, idx, kw) {
			delete(cols, FieldName)
		}
		return HeaderMatch{Row: r, Columns: cols}, true
	}
	return HeaderMatch{}, false
}

func matchRow(row []string, kw Keywords) map[string]int {
	cols := make(map[string]int, 5)
	set := func(field string, idx int) {
		if _, ok := cols[field]; !ok {
			cols[field] = idx
		}
	}

	norm := make([]string, len(row))
	for i, c := range row {
		norm[i] = Normalize(c)
	}

	for i, h := range norm {
		if h == "" {
			continue
		}
		if kw.Barcode.MatchString(h) {
			set(FieldBarcode, i)
		}
		if kw.Model.MatchString(h) {
			set(FieldModel, i)
		}
		if kw.BoxNum.MatchString(h) {
			set(FieldBoxNum, i)
		}
		if kw.InStock.MatchString(h) {
			set(FieldInStock, i)
		}
		if kw.NameAllow.MatchString(h) && !kw.NameDeny.MatchString(h) {
			set(FieldName, i)
		}
	}

	if _, ok := cols[FieldName]; !ok {
		for i, h := range norm {
			if kw.GenericName.MatchString(h) && !kw.NameDeny.MatchString(h) {
				set(FieldName, i)
				break
			}
		}
	}
	return cols
}

// adminColumn samples the rows under the header and reports whether the
// name column mostly holds warehouse/department names.
func adminColumn(grid [][]string, headerRow, col int, kw Keywords) bool {
	seen, bad := 0, 0
	end := min(len(grid), headerRow+1+nameSampleRows)
	for r := headerRow + 1; r < end; r++ {
		v := Normalize(cell(grid[r], col))
		if v == "" {
			continue
		}
		seen++
		if kw.AdminValue.MatchString(v) {
			bad++
		}
	}
	return seen > 0 && float64(bad)/float64(seen) > adminNameMaxRate
}
