// Package printer renders barcode labels as SVG and as printable PDF sheets.
package printer

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"os"
	"strings"
	"text/template"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/hybrid-bistoon/anbar/internal/config"
	"github.com/hybrid-bistoon/anbar/internal/utils"
)

// ErrBadCode is returned for anything that is not a 13-digit barcode
var ErrBadCode = errors.New("bad code")

// CartonPrefix is put in front of the product name on carton labels
const CartonPrefix = "کارتن "

// Label is the content of one 100×60 mm label
type Label struct {
	Code   string
	Name   string
	Model  string
	Carton bool
}

// Renderer draws labels with an optional embedded font and brand line
type Renderer struct {
	font64 string
	brand  string
}

// NewRenderer loads the label font when one is configured
func NewRenderer(cfg config.LabelConfig) (*Renderer, error) {
	r := &Renderer{brand: cfg.Brand}
	if cfg.FontPath != "" {
		data, err := os.ReadFile(cfg.FontPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read label font: %w", err)
		}
		r.font64 = base64.StdEncoding.EncodeToString(data)
	}
	return r, nil
}

var labelTemplate = template.Must(template.New("label").Funcs(template.FuncMap{"xml": escapeXML}).Parse(
	`<svg xmlns="http://www.w3.org/2000/svg" width="100mm" height="60mm" viewBox="0 0 100 60">
{{- if .Font}}
  <defs>
    <style>
      @font-face{font-family:'labelfont';src:url(data:font/ttf;base64,{{.Font}}) format('truetype');}
      text{font-family:'labelfont';}
    </style>
  </defs>
{{- end}}
  <rect width="100%" height="100%" fill="#ffffff"/>
  <text x="50" y="12" font-size="5pt" font-weight="bold" direction="rtl" text-anchor="middle" style="unicode-bidi:bidi-override">{{xml .Title}}</text>
{{- if .Model}}
  <text x="50" y="21" font-size="5pt" font-weight="bold" direction="rtl" text-anchor="middle" style="unicode-bidi:bidi-override">{{xml .Model}}</text>
{{- end}}
  <image href="data:image/png;base64,{{.PNG}}" x="5" y="25" width="90" height="27"/>
{{- if .Brand}}
  <text x="50" y="55" font-size="3pt" direction="rtl" text-anchor="middle" style="unicode-bidi:bidi-override">{{xml .Brand}}</text>
{{- end}}
</svg>
`))

// LabelSVG renders a label with the Code128 barcode embedded as a PNG
func (r *Renderer) LabelSVG(l Label) (string, error) {
	code := strings.TrimSpace(l.Code)
	if !utils.IsBarcode(code) {
		return "", ErrBadCode
	}
	pngData, err := Code128PNG(code, 900, 270)
	if err != nil {
		return "", err
	}

	title := strings.TrimSpace(l.Name)
	if l.Carton {
		title = CartonPrefix + title
	}

	var buf bytes.Buffer
	err = labelTemplate.Execute(&buf, map[string]string{
		"Font":  r.font64,
		"Title": title,
		"Model": strings.TrimSpace(l.Model),
		"PNG":   base64.StdEncoding.EncodeToString(pngData),
		"Brand": r.brand,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Code128PNG encodes code as a Code128 image scaled to width×height pixels
func Code128PNG(code string, width, height int) ([]byte, error) {
	bc, err := code128.Encode(code)
	if err != nil {
		return nil, fmt.Errorf("code128 encode: %w", err)
	}
	scaled, err := barcode.Scale(bc, width, height)
	if err != nil {
		return nil, fmt.Errorf("code128 scale: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const (
	moduleWidth = 3  // px per bar module
	barHeight   = 90 // px
	quietZone   = 10 // modules on each side
	digitsSize  = 24 // px
)

// BarcodeSVG draws the Code128 bars of code as vector rectangles with the
// digits underneath
func BarcodeSVG(code string) (string, error) {
	code = strings.TrimSpace(code)
	if !utils.IsBarcode(code) {
		return "", ErrBadCode
	}
	bc, err := code128.Encode(code)
	if err != nil {
		return "", fmt.Errorf("code128 encode: %w", err)
	}

	modules := bc.Bounds().Dx()
	width := (modules + 2*quietZone) * moduleWidth
	height := barHeight + digitsSize + 20

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, width, height, width, height)
	fmt.Fprintf(&b, `<rect width="100%%" height="100%%" fill="#ffffff"/>`)

	// merge neighbouring dark modules into one rect
	for x := 0; x < modules; {
		if !isDark(bc, x) {
			x++
			continue
		}
		start := x
		for x < modules && isDark(bc, x) {
			x++
		}
		fmt.Fprintf(&b, `<rect x="%d" y="10" width="%d" height="%d" fill="#000000"/>`,
			(start+quietZone)*moduleWidth, (x-start)*moduleWidth, barHeight)
	}
	fmt.Fprintf(&b, `<text x="%d" y="%d" font-family="monospace" font-size="%d" text-anchor="middle">%s</text>`,
		width/2, barHeight+10+digitsSize, digitsSize, escapeXML(code))
	b.WriteString(`</svg>`)
	return b.String(), nil
}

func isDark(bc barcode.Barcode, x int) bool {
	origin := bc.Bounds().Min
	gray := color.GrayModel.Convert(bc.At(origin.X+x, origin.Y)).(color.Gray)
	return gray.Y < 128
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
