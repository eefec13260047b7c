package printer

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hybrid-bistoon/anbar/internal/config"
)

const code = "1410622069641"

func TestLabelSVG(t *testing.T) {
	r, err := NewRenderer(config.LabelConfig{Brand: "هیبرید بیستون"})
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}

	svg, err := r.LabelSVG(Label{Code: code, Name: "شیر <آب> & دوش", Model: "A1", Carton: true})
	if err != nil {
		t.Fatalf("label: %v", err)
	}
	for _, want := range []string{
		`width="100mm" height="60mm"`,
		"کارتن شیر &lt;آب&gt; &amp; دوش",
		">A1</text>",
		`direction="rtl"`,
		"data:image/png;base64,",
		"هیبرید بیستون",
	} {
		if !strings.Contains(svg, want) {
			t.Errorf("svg missing %q", want)
		}
	}
	if strings.Contains(svg, "@font-face") {
		t.Error("no font configured, no font-face expected")
	}

	plain, err := r.LabelSVG(Label{Code: code, Name: "x"})
	if err != nil {
		t.Fatalf("plain label: %v", err)
	}
	if strings.Contains(plain, CartonPrefix) || strings.Count(plain, "<text") != 2 {
		t.Errorf("unit label without model should have title and brand only:\n%s", plain)
	}

	if _, err := r.LabelSVG(Label{Code: "12345"}); !errors.Is(err, ErrBadCode) {
		t.Errorf("expected ErrBadCode, got %v", err)
	}
}

func TestLabelFont(t *testing.T) {
	path := filepath.Join(t.TempDir(), "font.ttf")
	if err := os.WriteFile(path, []byte("fake-font"), 0o600); err != nil {
		t.Fatal(err)
	}
	r, err := NewRenderer(config.LabelConfig{FontPath: path})
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	svg, err := r.LabelSVG(Label{Code: code})
	if err != nil {
		t.Fatalf("label: %v", err)
	}
	if !strings.Contains(svg, "base64,ZmFrZS1mb250") {
		t.Error("font should be embedded")
	}

	if _, err := NewRenderer(config.LabelConfig{FontPath: filepath.Join(t.TempDir(), "missing.ttf")}); err == nil {
		t.Error("missing font should fail")
	}
}

func TestBarcodeSVG(t *testing.T) {
	svg, err := BarcodeSVG(" " + code + " ")
	if err != nil {
		t.Fatalf("svg: %v", err)
	}
	if !strings.HasPrefix(svg, "<svg") || !strings.Contains(svg, ">"+code+"</text>") {
		t.Errorf("unexpected svg: %s", svg)
	}
	if strings.Count(svg, `fill="#000000"`) < 10 {
		t.Error("expected bar rectangles")
	}
	if _, err := BarcodeSVG("abc"); !errors.Is(err, ErrBadCode) {
		t.Errorf("expected ErrBadCode, got %v", err)
	}
}

func TestGenerateSheetPDF(t *testing.T) {
	codes := make([]string, 25)
	for i := range codes {
		codes[i] = code
	}
	pdf, err := GenerateSheetPDF(SheetConfig{Codes: codes, Cols: 3, Rows: 8, MarginTop: 5, MarginLeft: 5, QR: true})
	if err != nil {
		t.Fatalf("pdf: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Error("output is not a PDF")
	}

	for name, cfg := range map[string]SheetConfig{
		"empty":    {},
		"bad code": {Codes: []string{"123"}},
		"tiny":     {Codes: []string{code}, Cols: 50, Rows: 50},
		"negative": {Codes: []string{code}, GapX: -1},
	} {
		if _, err := GenerateSheetPDF(cfg); !errors.Is(err, ErrBadSheet) {
			t.Errorf("%s: expected ErrBadSheet, got %v", name, err)
		}
	}
}
