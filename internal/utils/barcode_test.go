package utils

import "testing"

func TestGenerateCandidate(t *testing.T) {
	for i := 0; i < 500; i++ {
		code := GenerateCandidate()

		if !IsBarcode(code) {
			t.Fatalf("Generated code is not 13 digits: %q", code)
		}
		if code[0] != '1' {
			t.Fatalf("Generated code must start with 1: %s", code)
		}
		if !ValidChecksum(code) {
			t.Fatalf("Checksum mismatch for %s", code)
		}
	}
}

func TestCheckDigit(t *testing.T) {
	// 1*1 + 4*3 + 1*1 + 0*3 + 6*1 + 2*3 + 2*1 + 0*3 + 6*1 + 9*3 + 6*1 + 4*3 = 79
	if got := CheckDigit("141062206964"); got != 1 {
		t.Errorf("CheckDigit: got %d, want 1", got)
	}
	if !ValidChecksum("1410622069641") {
		t.Error("1410622069641 should carry a valid checksum")
	}
	if ValidChecksum("1410622069642") {
		t.Error("1410622069642 should fail the checksum")
	}
}

func TestIsBarcode(t *testing.T) {
	cases := map[string]bool{
		"1410622069641":  true,
		"141062206964":   false,
		"14106220696411": false,
		"14106220696a1":  false,
		"":               false,
	}
	for in, want := range cases {
		if got := IsBarcode(in); got != want {
			t.Errorf("IsBarcode(%q): got %v, want %v", in, got, want)
		}
	}
}

func TestCartonUnitMapping(t *testing.T) {
	unit := "1410622069641"

	carton, err := CartonCode(unit)
	if err != nil {
		t.Fatalf("CartonCode failed: %v", err)
	}
	if carton != "2410622069641" {
		t.Errorf("CartonCode: got %s", carton)
	}
	if !IsCartonCode(carton) {
		t.Error("carton code should be recognised")
	}

	back, err := UnitCode(carton)
	if err != nil {
		t.Fatalf("UnitCode failed: %v", err)
	}
	if back != unit {
		t.Errorf("UnitCode: got %s, want %s", back, unit)
	}

	same, _ := UnitCode(unit)
	if same != unit {
		t.Errorf("UnitCode should keep unit codes, got %s", same)
	}

	if _, err := UnitCode("abc"); err == nil {
		t.Error("expected error for malformed code")
	}
}
