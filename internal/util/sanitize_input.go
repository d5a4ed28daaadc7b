package util

import (
	"html"
	"strings"
)

// SanitizeInput trims whitespace and escapes HTML/script-like characters
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}
