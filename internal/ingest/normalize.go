// Package ingest turns uploaded spreadsheets into catalog updates and
// invoice lines. Everything here works on in-memory grids and does no I/O
// besides decoding the workbook bytes.
package ingest

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

const zwnj = '\u200c'

var stripSpace = runes.Remove(runes.Predicate(func(r rune) bool {
	return unicode.IsSpace(r) || r == zwnj
}))

var foldLetters = runes.Map(func(r rune) rune {
	switch r {
	case 'ي', 'ى':
		return 'ی'
	case 'ك':
		return 'ک'
	}
	switch {
	case r >= '۰' && r <= '۹':
		return '0' + (r - '۰')
	case r >= '٠' && r <= '٩':
		return '0' + (r - '٠')
	}
	return r
})

// Normalize folds a header or value for keyword matching: all whitespace and
// ZWNJ removed, Arabic yeh/kaf mapped to their Persian forms, digits latinized.
func Normalize(s string) string {
	out, _, err := transform.String(transform.Chain(stripSpace, foldLetters), s)
	if err != nil {
		return s
	}
	return out
}

// numberSeparators are thousands separators seen in exported sheets
var numberSeparators = strings.NewReplacer(",", "", "،", "", "٬", "", "٫", ".")

// parseNumber reads a spreadsheet number with Persian digits and separators
func parseNumber(s string) (decimal.Decimal, bool) {
	s = numberSeparators.Replace(Normalize(s))
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// normalizeCode cleans a barcode cell. Codes typed into numeric cells come
// back as 1.410622069641E+12, which is expanded to its integer digits.
func normalizeCode(s string) string {
	s = Normalize(s)
	if strings.ContainsAny(s, "eE.") {
		if d, err := decimal.NewFromString(s); err == nil && d.IsInteger() {
			return d.String()
		}
	}
	return s
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
