package assemble

import (
	"strconv"
	"strings"
	"time"
)

// stripLabelPrefix removes an embedded field label from recognized text:
// crops sometimes include the printed label, e.g. "INVOICE DATE: 12-03-2025".
// Everything through the first colon goes.
func stripLabelPrefix(s string) string {
	if i := strings.Index(s, ":"); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return strings.TrimSpace(s)
}

// parseAmount normalizes a currency amount: label prefixes, currency symbols
// and thousands separators are stripped, including Indian digit grouping
// ("₹5,00,000" -> 500000). Returns false if no parseable number remains.
func parseAmount(raw string) (float64, bool) {
	s := stripLabelPrefix(raw)

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' && b.Len() > 0:
			// decimal point; a dot before any digit ("Rs.") is not one
			b.WriteRune(r)
		case r == ',':
			// grouping separator, dropped
		}
	}
	digits := b.String()
	if digits == "" {
		return 0, false
	}

	n, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseDate tries each accepted layout in order and returns the first match
// normalized to YYYY-MM-DD.
func parseDate(raw string, layouts []string) (string, bool) {
	s := stripLabelPrefix(raw)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
