package utils

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func Capitalize(s string) string {
	return cases.Title(language.English).String(strings.ToLower(s))
}

// Obfuscate hides all but the last four characters of s.
func Obfuscate(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

// MaskSecret shows only the first and last 4 characters of a secret.
func MaskSecret(s string) string {
	if len(s) > 8 {
		return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
	}
	return strings.Repeat("*", len(s))
}
