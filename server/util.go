package main

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// GenerateUUID returns a random (v4) UUID string
func GenerateUUID() string {
	return uuid.NewString()
}

// cleanName trims s and cuts it to at most max runes, falling back to def when empty
func cleanName(s string, max int, def string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	if utf8.RuneCountInString(s) > max {
		s = string([]rune(s)[:max])
	}
	return s
}
