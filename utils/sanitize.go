package utils

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	sanitizer     = bluemonday.UGCPolicy()
	textSanitizer = bluemonday.StrictPolicy()
)

// Sanitize cleans HTML content to prevent XSS attacks.
func Sanitize(input string) string {
	return sanitizer.Sanitize(input)
}

// SanitizeText strips all markup and surrounding whitespace.
func SanitizeText(input string) string {
	return strings.TrimSpace(textSanitizer.Sanitize(input))
}
