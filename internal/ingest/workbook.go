package ingest

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ErrEmptyWorkbook is returned for workbooks without any sheet
var ErrEmptyWorkbook = errors.New("workbook has no sheets")

// ReadWorkbook decodes an xlsx stream into one grid per sheet, in workbook
// order. Cells are read raw so numeric barcodes keep all their digits.
func ReadWorkbook(r io.Reader) ([]Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	names := f.GetSheetList()
	if len(names) == 0 {
		return nil, ErrEmptyWorkbook
	}

	sheets := make([]Sheet, 0, len(names))
	for _, name := range names {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		sheets = append(sheets, Sheet{Name: name, Rows: rows})
	}
	return sheets, nil
}

// FirstSheet returns the grid catalog updates are read from
func FirstSheet(sheets []Sheet) [][]string {
	if len(sheets) == 0 {
		return nil
	}
	return sheets[0].Rows
}
