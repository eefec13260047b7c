package models

import "testing"

func TestInvoiceStatus(t *testing.T) {
	for _, s := range []InvoiceStatus{InvoiceStatusPending, InvoiceStatusInProgress} {
		if !s.Valid() || s.Terminal() {
			t.Errorf("%s should be valid and non-terminal", s)
		}
	}
	for _, s := range []InvoiceStatus{InvoiceStatusDone, InvoiceStatusSkipped} {
		if !s.Valid() || !s.Terminal() {
			t.Errorf("%s should be valid and terminal", s)
		}
	}
	if InvoiceStatus("archived").Valid() {
		t.Error("unknown status should be invalid")
	}
}

func TestLineMultipliers(t *testing.T) {
	cases := []struct {
		line   InvoiceLine
		carton int
		unit   int
	}{
		{InvoiceLine{BoxNum: "4", SingleNum: 1}, 4, 1},
		{InvoiceLine{BoxNum: " ۱۲ ", SingleNum: 2}, 12, 2},
		{InvoiceLine{BoxNum: "", SingleNum: 0}, 1, 1},
		{InvoiceLine{BoxNum: "box", SingleNum: -3}, 1, 1},
		{InvoiceLine{BoxNum: "0"}, 1, 1},
	}
	for _, c := range cases {
		if got := c.line.CartonUnits(); got != c.carton {
			t.Errorf("CartonUnits(%q): got %d, want %d", c.line.BoxNum, got, c.carton)
		}
		if got := c.line.UnitMultiplier(); got != c.unit {
			t.Errorf("UnitMultiplier(%d): got %d, want %d", c.line.SingleNum, got, c.unit)
		}
	}
}

func TestInvoiceLookups(t *testing.T) {
	inv := Invoice{Items: []InvoiceLine{
		{Barcode: "1000000000001", Quantity: 2, Collected: 2, BoxCode: "2000000000001"},
		{Barcode: "1000000000002", Quantity: 3, Collected: 1},
	}}

	if inv.Line("1000000000002") != 1 {
		t.Error("Line should find the second row")
	}
	if inv.Line("1999999999999") != -1 {
		t.Error("Line should return -1 for unknown barcodes")
	}
	if inv.LineByBoxCode("2000000000001") != 0 {
		t.Error("LineByBoxCode should match the carton label")
	}
	if inv.LineByBoxCode("") != -1 {
		t.Error("empty box code must never match")
	}

	first := inv.FirstIncomplete()
	if first == nil || first.Barcode != "1000000000002" {
		t.Fatalf("FirstIncomplete: got %+v", first)
	}

	q, c := inv.Totals()
	if q != 5 || c != 3 {
		t.Errorf("Totals: got %d/%d, want 5/3", q, c)
	}

	inv.Items[1].Collected = 3
	if inv.FirstIncomplete() != nil {
		t.Error("complete invoice should have no incomplete line")
	}
}

func TestProductInStockValue(t *testing.T) {
	p := Product{InStock: []byte(`12.5`)}
	if v, ok := p.InStockValue().(float64); !ok || v != 12.5 {
		t.Errorf("numeric stock: got %#v", p.InStockValue())
	}
	p.InStock = []byte(`"زیاد"`)
	if v, ok := p.InStockValue().(string); !ok || v != "زیاد" {
		t.Errorf("text stock: got %#v", p.InStockValue())
	}
	p.InStock = nil
	if p.InStockValue() != nil {
		t.Error("empty stock should decode to nil")
	}
}
