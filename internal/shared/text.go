package shared

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText applies NFKC normalisation and trims surrounding whitespace so
// visually identical input is stored identically.
func NormalizeText(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}

// IsBlank reports whether s has no visible content.
func IsBlank(s string) bool {
	return NormalizeText(s) == ""
}
