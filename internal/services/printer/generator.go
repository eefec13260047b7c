package printer

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/hybrid-bistoon/anbar/internal/utils"
	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"
)

// MaxSheetLabels caps one PDF request
const MaxSheetLabels = 2000

// SheetConfig holds configuration for PDF generation
type SheetConfig struct {
	Codes      []string `json:"codes"`
	Cols       int      `json:"cols"`
	Rows       int      `json:"rows"`
	MarginTop  float64  `json:"marginTop"`
	MarginLeft float64  `json:"marginLeft"`
	GapX       float64  `json:"gapX"`
	GapY       float64  `json:"gapY"`
	// QR adds a QR code of the digits next to the bars
	QR bool `json:"qr"`
}

func (c *SheetConfig) normalize() error {
	if len(c.Codes) == 0 {
		return errors.New("codes list is empty")
	}
	if len(c.Codes) > MaxSheetLabels {
		return fmt.Errorf("at most %d labels per sheet", MaxSheetLabels)
	}
	for i, code := range c.Codes {
		code = utils.NormalizeDigits(code)
		if !utils.IsBarcode(code) {
			return fmt.Errorf("code %d is not a 13-digit barcode", i+1)
		}
		c.Codes[i] = code
	}
	if c.Cols <= 0 {
		c.Cols = 3
	}
	if c.Rows <= 0 {
		c.Rows = 8
	}
	if c.MarginTop < 0 || c.MarginLeft < 0 || c.GapX < 0 || c.GapY < 0 {
		return errors.New("margins and gaps must not be negative")
	}
	return nil
}

// GenerateSheetPDF lays the codes out on A4 pages, one label per grid cell
func GenerateSheetPDF(cfg SheetConfig) ([]byte, error) {
	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSheet, err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Courier", "B", 9)

	pageWidth, pageHeight := 210.0, 297.0

	// symmetric margins
	availW := pageWidth - cfg.MarginLeft*2 - float64(cfg.Cols-1)*cfg.GapX
	availH := pageHeight - cfg.MarginTop*2 - float64(cfg.Rows-1)*cfg.GapY
	labelW := availW / float64(cfg.Cols)
	labelH := availH / float64(cfg.Rows)
	if labelW < 10 || labelH < 8 {
		return nil, fmt.Errorf("%w: labels would be smaller than 10×8 mm", ErrBadSheet)
	}

	labelsPerPage := cfg.Cols * cfg.Rows
	imgOptions := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}

	for i, code := range cfg.Codes {
		if i%labelsPerPage == 0 {
			pdf.AddPage()
		}
		indexOnPage := i % labelsPerPage
		col := indexOnPage % cfg.Cols
		row := indexOnPage / cfg.Cols
		x := cfg.MarginLeft + float64(col)*(labelW+cfg.GapX)
		y := cfg.MarginTop + float64(row)*(labelH+cfg.GapY)

		barsPng, err := Code128PNG(code, 600, 180)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadSheet, code, err)
		}

		barsW := labelW * 0.9
		barsX := x + (labelW-barsW)/2
		if cfg.QR {
			qrPng, err := qrcode.Encode(code, qrcode.Low, 256)
			if err != nil {
				return nil, err
			}
			qrName := fmt.Sprintf("qr_%d", i)
			pdf.RegisterImageOptionsReader(qrName, imgOptions, bytes.NewReader(qrPng))

			qrSize := min(labelH*0.7, labelW*0.3)
			pdf.ImageOptions(qrName, x+labelW-qrSize-1, y+(labelH-qrSize)/2-2, qrSize, qrSize, false, imgOptions, 0, "")
			barsW = labelW - qrSize - 4
			barsX = x + 1
		}

		barsName := fmt.Sprintf("bars_%d", i)
		pdf.RegisterImageOptionsReader(barsName, imgOptions, bytes.NewReader(barsPng))
		pdf.ImageOptions(barsName, barsX, y+2, barsW, labelH*0.6, false, imgOptions, 0, "")

		// digits below the bars
		pdf.SetXY(x, y+labelH-6)
		pdf.CellFormat(labelW, 5, code, "", 0, "C", false, 0, "")
	}

	if err := pdf.Error(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ErrBadSheet wraps every invalid sheet request
var ErrBadSheet = errors.New("invalid label sheet")
