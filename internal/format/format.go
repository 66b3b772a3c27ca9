// Package format renders numbers and dates for templates.
package format

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FmtDistance renders kilometres with locale digit grouping, e.g. "1,234.50 km".
func FmtDistance(km float64, lang string) string {
	return printer(lang).Sprintf("%.2f km", km)
}

// FmtCount renders an integer with locale digit grouping.
func FmtCount(n int, lang string) string {
	return printer(lang).Sprintf("%d", n)
}

// FmtDate formats time in a locale-friendly short form.
func FmtDate(t time.Time, lang string) string {
	if t.IsZero() {
		return ""
	}
	switch strings.ToLower(lang) {
	case "ja":
		return t.Format("2006-01-02 15:04")
	default:
		return t.Format("Jan 2, 2006 15:04")
	}
}

func printer(lang string) *message.Printer {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.English
	}
	return message.NewPrinter(tag)
}
