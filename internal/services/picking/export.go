package picking

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/hybrid-bistoon/anbar/internal/apperr"
	"github.com/hybrid-bistoon/anbar/internal/models"
	"github.com/jszwec/csvutil"
	"github.com/xuri/excelize/v2"
)

// Export formats
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// exportRow is one invoice line as written to a file
type exportRow struct {
	Barcode   string `csv:"barcode"`
	Name      string `csv:"name"`
	Model     string `csv:"model"`
	Quantity  int    `csv:"quantity"`
	Collected int    `csv:"collected"`
	Remaining int    `csv:"remaining"`
	BoxNum    string `csv:"box_num"`
	BoxCode   string `csv:"box_code"`
	SingleNum int    `csv:"single_num"`
}

var exportHeader = []any{"barcode", "name", "model", "quantity", "collected", "remaining", "box_num", "box_code", "single_num"}

// Export is a rendered invoice file
type Export struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Export renders an invoice's lines as CSV or XLSX
func (s *Service) Export(ctx context.Context, id, format string) (*Export, error) {
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatXLSX {
		return nil, apperr.Validation("format must be %q or %q", FormatCSV, FormatXLSX)
	}

	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	rows := exportRows(inv)

	var buf bytes.Buffer
	out := &Export{Filename: fmt.Sprintf("invoice-%s.%s", inv.ID, format)}
	switch format {
	case FormatCSV:
		out.ContentType = "text/csv; charset=utf-8"
		err = writeCSV(&buf, rows)
	case FormatXLSX:
		out.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = writeXLSX(&buf, rows)
	}
	if err != nil {
		return nil, apperr.Internal("failed to export invoice", err)
	}
	out.Body = buf.Bytes()
	return out, nil
}

func exportRows(inv *models.Invoice) []exportRow {
	rows := make([]exportRow, len(inv.Items))
	for i, l := range inv.Items {
		rows[i] = exportRow{
			Barcode:   l.Barcode,
			Name:      l.Name,
			Model:     l.Model,
			Quantity:  l.Quantity,
			Collected: l.Collected,
			Remaining: l.Quantity - l.Collected,
			BoxNum:    l.BoxNum,
			BoxCode:   l.BoxCode,
			SingleNum: l.SingleNum,
		}
	}
	return rows
}

func writeCSV(w io.Writer, rows []exportRow) error {
	// BOM so spreadsheet apps open Persian text as UTF-8
	if _, err := w.Write([]byte("\xEF\xBB\xBF")); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if len(rows) == 0 {
		if err := enc.EncodeHeader(exportRow{}); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, rows []exportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	if err := f.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		return err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{r.Barcode, r.Name, r.Model, r.Quantity, r.Collected, r.Remaining, r.BoxNum, r.BoxCode, r.SingleNum}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	_, err := f.WriteTo(w)
	return err
}
