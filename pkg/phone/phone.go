// Package phone normalizes phone numbers for providers that expect bare
// international digits (no '+', no separators).
package phone

import "strings"

// DefaultCountryCode is prefixed to 10-digit mobile numbers starting with 3.
const DefaultCountryCode = "57"

func Normalize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if len(digits) == 10 && strings.HasPrefix(digits, "3") {
		return DefaultCountryCode + digits
	}
	return digits
}

// WithPlus formats a directory number as +<country><number> when it has no prefix.
func WithPlus(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "+") {
		return raw
	}
	return "+" + DefaultCountryCode + raw
}
