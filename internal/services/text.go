package services

import (
	"regexp"
	"strings"
)

var nameDisallowed = regexp.MustCompile(`[^a-zA-Z0-9\s.,_-]`)

// SanitizeFullName strips characters outside [A-Za-z0-9 whitespace . , _ -].
// Names that end up empty become "Unknown".
func SanitizeFullName(name string) string {
	clean := strings.TrimSpace(nameDisallowed.ReplaceAllString(name, ""))
	if clean == "" {
		return "Unknown"
	}
	return clean
}
