package ingest

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"نام کالا":        "نامکالا",
		"موجودي اصلي":     "موجودیاصلی",
		"تعداد\nدر كارتن": "تعداددرکارتن",
		"نام\u200cکالا":   "نامکالا",
		"۱۲۳ ٤٥":          "12345",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetectHeaderFourColumns(t *testing.T) {
	grid := [][]string{
		{"بارکد", "مدل", "نام کالا", "تعداد در کارتن"},
		{"1231231231231", "مدل۱", "نام۱", "6"},
	}
	m, ok := DetectHeader(grid, DefaultKeywords())
	if !ok {
		t.Fatal("header not detected")
	}
	want := map[string]int{FieldBarcode: 0, FieldModel: 1, FieldName: 2, FieldBoxNum: 3}
	if m.Row != 0 || !reflect.DeepEqual(m.Columns, want) {
		t.Errorf("got row %d columns %v, want %v", m.Row, m.Columns, want)
	}

	again, _ := DetectHeader(grid, DefaultKeywords())
	if !reflect.DeepEqual(m, again) {
		t.Error("detection should be idempotent")
	}
}

func TestDetectHeaderSkipsPreamble(t *testing.T) {
	grid := [][]string{
		{"گزارش موجودی کالا"},
		{"تاریخ", "۱۴۰۴/۰۵/۰۷"},
		{"ردیف", "نام انبار", "شرح کالا", "بارکد", "موجودی اصلی"},
		{"1", "انبار مرکزی", "حوله ۵۰×۱۰۰", "1410622069641", "12"},
	}
	m, ok := DetectHeader(grid, DefaultKeywords())
	if !ok || m.Row != 2 {
		t.Fatalf("got %+v, %v", m, ok)
	}
	if m.Column(FieldName) != 2 {
		t.Errorf("name should skip the warehouse column, got %d", m.Column(FieldName))
	}
	if m.Column(FieldInStock) != 4 || m.Column(FieldBarcode) != 3 {
		t.Errorf("columns: %v", m.Columns)
	}
}

func TestDetectHeaderGenericNameAndAdminSanity(t *testing.T) {
	grid := [][]string{
		{"نام", "بارکد"},
		{"انبار مرکزی", "1000000000017"},
		{"واحد فروش", "1000000000024"},
		{"حوله", "1000000000031"},
	}
	m, ok := DetectHeader(grid, DefaultKeywords())
	if !ok {
		t.Fatal("header not detected")
	}
	// two of three sampled values are administrative (66% > 60%)
	if _, has := m.Columns[FieldName]; has {
		t.Errorf("name column should be dropped, got %v", m.Columns)
	}

	grid[2][0] = "پتو"
	m, _ = DetectHeader(grid, DefaultKeywords())
	if m.Column(FieldName) != 0 {
		t.Errorf("generic name column expected, got %v", m.Columns)
	}
}

func TestDetectHeaderOnlyScansTwentyRows(t *testing.T) {
	grid := make([][]string, 25)
	grid[21] = []string{"بارکد"}
	if _, ok := DetectHeader(grid, DefaultKeywords()); ok {
		t.Error("header below row 20 must not be detected")
	}
}

func TestExtractRows(t *testing.T) {
	grid := [][]string{
		{"بارکد", "نام کالا", "مدل", "کارتن", "موجودی"},
		{"1.410622069641E+12", "حوله", "M1", " 6 ", "۱,۲۵۰"},
		{"", "بی‌بارکد", "", "", ""},
		{"1000000000017", "انبار مرکزی", "", "", "زیاد"},
		{"1000000000024", "", "", "", ""},
	}
	kw := DefaultKeywords()
	m, ok := DetectHeader(grid, kw)
	if !ok {
		t.Fatal("header not detected")
	}
	rows := ExtractRows(grid, m, kw)
	if len(rows) != 2 {
		t.Fatalf("got %d candidates: %+v", len(rows), rows)
	}

	first := rows[0]
	if first.Code != "1410622069641" || first.Name != "حوله" || first.Model != "M1" || first.BoxNum != "6" {
		t.Errorf("first row: %+v", first)
	}
	if string(first.InStock) != "1250" {
		t.Errorf("in_stock: got %s", first.InStock)
	}

	second := rows[1]
	if second.Name != "" {
		t.Errorf("administrative name should be rejected, got %q", second.Name)
	}
	if string(second.InStock) != `"زیاد"` {
		t.Errorf("text stock: got %s", second.InStock)
	}

	samples := SampleColumns(grid, m, 5)
	if len(samples[FieldBarcode]) != 3 {
		t.Errorf("barcode samples: %v", samples[FieldBarcode])
	}
}

func TestParsePreInvoice(t *testing.T) {
	sheets := []Sheet{
		{Name: "Summary", Rows: [][]string{{"جمع"}}},
		{Name: "Lines", Rows: [][]string{
			{"شرکت"},
			{"ردیف", "بارکد", "شرح", "مقدار اصلی"},
			{"1", "1410622069641", "حوله", "7"},
			{"2", "۱۰۰۰۰۰۰۰۰۰۰۱۷", "", "۳"},
			{"ردیف", "بارکد", "شرح", "مقدار اصلی"},
			{"3", "12345", "", "1"},
			{"4", "1000000000024", "", "two"},
			{"5", "1000000000031", "", "1.5"},
			{"", "", "", ""},
		}},
	}
	got, err := ParsePreInvoice(sheets)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Layout != LayoutPreInvoice {
		t.Errorf("layout: %s", got.Layout)
	}
	want := []InvoiceRow{
		{Sheet: "Lines", Row: 3, Barcode: "1410622069641", Quantity: 7},
		{Sheet: "Lines", Row: 4, Barcode: "1000000000017", Quantity: 3},
	}
	if !reflect.DeepEqual(got.Rows, want) {
		t.Errorf("rows: %+v", got.Rows)
	}
	if len(got.Skipped) != 4 {
		t.Errorf("skipped: %+v", got.Skipped)
	}
}

func TestParsePreInvoiceLegacyFallback(t *testing.T) {
	sheets := []Sheet{{Name: "Sheet1", Rows: [][]string{
		{"Barcode", "Quantity"},
		{"1410622069641", "2"},
	}}}
	got, err := ParsePreInvoice(sheets)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Layout != LayoutLegacy || len(got.Rows) != 1 || got.Rows[0].Quantity != 2 {
		t.Errorf("got %+v", got)
	}

	_, err = ParsePreInvoice([]Sheet{{Name: "x", Rows: [][]string{{"a", "b"}}}})
	if !errors.Is(err, ErrNoInvoiceLayout) {
		t.Errorf("expected ErrNoInvoiceLayout, got %v", err)
	}
}

func TestReadWorkbook(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetRow("Sheet1", "A1", &[]any{"بارکد", "مقدار اصلی"}); err != nil {
		t.Fatal(err)
	}
	if err := f.SetSheetRow("Sheet1", "A2", &[]any{1410622069641, 4}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.NewSheet("Second"); err != nil {
		t.Fatal(err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	sheets, err := ReadWorkbook(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(sheets) != 2 || sheets[0].Name != "Sheet1" {
		t.Fatalf("sheets: %+v", sheets)
	}

	inv, err := ParsePreInvoice(sheets)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(inv.Rows) != 1 || inv.Rows[0].Barcode != "1410622069641" || inv.Rows[0].Quantity != 4 {
		t.Errorf("rows: %+v", inv.Rows)
	}

	if _, err := ReadWorkbook(bytes.NewReader([]byte("not a zip"))); err == nil {
		t.Error("garbage input should fail")
	}
}

func TestReadCatalogCSV(t *testing.T) {
	data := "\xEF\xBB\xBFcode,name,model,box_num,in_stock\n" +
		"1410622069641,شیر,A1,12,5\n" +
		"1.410622069642E+12,,,,\n" +
		",orphan,,,\n" +
		"1000000000017,,M2,,کم\n"

	got, err := ReadCatalogCSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %+v", got)
	}
	if got[0].Code != "1410622069641" || got[0].Name != "شیر" || got[0].BoxNum != "12" || string(got[0].InStock) != "5" {
		t.Errorf("first row: %+v", got[0])
	}
	if got[1].Model != "M2" || string(got[1].InStock) != `"کم"` {
		t.Errorf("second row: %+v", got[1])
	}

	if _, err := ReadCatalogCSV(strings.NewReader("name,model\nx,y\n")); !errors.Is(err, ErrNoCodeColumn) {
		t.Errorf("expected ErrNoCodeColumn, got %v", err)
	}
	if _, err := ReadCatalogCSV(strings.NewReader("")); !errors.Is(err, ErrEmptyCSV) {
		t.Errorf("expected ErrEmptyCSV, got %v", err)
	}
}
