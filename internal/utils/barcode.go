package utils

import (
	"errors"
	"math/rand"
	"strings"
)

// ==========================================
// 13-digit product barcodes
// Format: S PPPPPPPPPPP C
// S: scheme digit (1 = unit label, 2 = carton label)
// P: 11 random payload digits
// C: check digit over the first 12 digits, weights 1,3,1,3...
// ==========================================

const (
	BarcodeLength = 13
	UnitScheme    = '1'
	CartonScheme  = '2'
)

var ErrNotBarcode = errors.New("not a 13-digit barcode")

// GenerateCandidate returns a random unit barcode with a valid check digit.
// Uniqueness is the caller's job (insert and retry on collision).
func GenerateCandidate() string {
	var b strings.Builder
	b.Grow(BarcodeLength)
	b.WriteByte(UnitScheme)
	for i := 0; i < 11; i++ {
		b.WriteByte(byte('0' + rand.Intn(10)))
	}
	base := b.String()
	return base + string(rune('0'+CheckDigit(base)))
}

// CheckDigit computes the weighted checksum digit of a 12-digit base
func CheckDigit(base string) int {
	sum := 0
	for i := 0; i < len(base); i++ {
		d := int(base[i] - '0')
		if i%2 == 0 {
			sum += d
		} else {
			sum += d * 3
		}
	}
	return (10 - sum%10) % 10
}

// IsBarcode reports whether code is exactly 13 ASCII digits
func IsBarcode(code string) bool {
	if len(code) != BarcodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// ValidChecksum reports whether the last digit matches CheckDigit of the rest
func ValidChecksum(code string) bool {
	if !IsBarcode(code) {
		return false
	}
	return int(code[12]-'0') == CheckDigit(code[:12])
}

// IsCartonCode reports whether code carries the carton scheme digit
func IsCartonCode(code string) bool {
	return IsBarcode(code) && code[0] == CartonScheme
}

// UnitCode maps a carton barcode to the unit barcode of the same product.
// Unit codes are returned unchanged.
func UnitCode(code string) (string, error) {
	if !IsBarcode(code) {
		return "", ErrNotBarcode
	}
	if code[0] == CartonScheme {
		return string(UnitScheme) + code[1:], nil
	}
	return code, nil
}

// CartonCode maps a unit barcode to its carton counterpart
func CartonCode(code string) (string, error) {
	if !IsBarcode(code) {
		return "", ErrNotBarcode
	}
	if code[0] == UnitScheme {
		return string(CartonScheme) + code[1:], nil
	}
	return code, nil
}
