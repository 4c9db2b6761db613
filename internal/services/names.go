package services

import "strings"

// splitName splits on the first space. The last name keeps any further spaces.
func splitName(name string) (first, last string) {
	first, last, _ = strings.Cut(strings.TrimSpace(name), " ")
	return first, strings.TrimSpace(last)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
