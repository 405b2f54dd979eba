// Package names holds the shared display-name sanitation rules for
// player and lobby names.
package names

import "strings"

const allowed = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890-_"

// Sanitize replaces every rune outside the allow-list with an underscore
// and truncates the result to maxLen runes.
func Sanitize(name string, maxLen int) string {
	sanitized := strings.Map(func(r rune) rune {
		if strings.ContainsRune(allowed, r) {
			return r
		}
		return '_'
	}, name)
	if len(sanitized) > maxLen {
		sanitized = sanitized[:maxLen]
	}
	return sanitized
}
