package utils

import (
	"fmt"
	"regexp"
)

var urlPattern = regexp.MustCompile(`^https?://`)

// ShortAddress compacts a chain address for display: 0x1234...abcd.
func ShortAddress(addr string) string {
	if len(addr) < 10 {
		return addr
	}
	return fmt.Sprintf("%s...%s", addr[:6], addr[len(addr)-4:])
}

// FormatAmount renders a number with K/M suffixes the way chart UIs do.
func FormatAmount(n float64, decimals int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.*fM", decimals, n/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.*fK", decimals, n/1_000)
	default:
		return fmt.Sprintf("%.*f", decimals, n)
	}
}

// ValidURL reports whether s looks like an http(s) link.
func ValidURL(s string) bool {
	return urlPattern.MatchString(s)
}
