package utils

import (
	"strings"
	"time"

	ptime "github.com/yaa110/go-persian-calendar"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// JalaliLayout is the display layout stored alongside invoice timestamps
const JalaliLayout = "yyyy/MM/dd HH:mm:ss"

var latinDigits = runes.Map(func(r rune) rune {
	switch {
	case r >= '۰' && r <= '۹': // Extended Arabic-Indic (Persian)
		return '0' + (r - '۰')
	case r >= '٠' && r <= '٩': // Arabic-Indic
		return '0' + (r - '٠')
	}
	return r
})

var persianDigits = runes.Map(func(r rune) rune {
	if r >= '0' && r <= '9' {
		return '۰' + (r - '0')
	}
	return r
})

// NormalizeDigits trims s and converts Persian/Arabic digits to ASCII
func NormalizeDigits(s string) string {
	out, _, err := transform.String(latinDigits, strings.TrimSpace(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return out
}

// PersianDigits converts ASCII digits to Persian digits
func PersianDigits(s string) string {
	out, _, err := transform.String(persianDigits, s)
	if err != nil {
		return s
	}
	return out
}

// FormatJalali renders t in loc as a Persian-calendar string with Persian digits,
// e.g. ۱۴۰۴/۰۵/۰۷ ۱۵:۲۳:۱۰
func FormatJalali(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return PersianDigits(ptime.New(t.In(loc)).Format(JalaliLayout))
}
