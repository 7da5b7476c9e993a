// Package sanitize cleans user supplied text before it is fanned out to other clients.
package sanitize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxChatMessageLength caps a group chat message, in runes
	MaxChatMessageLength = 2000

	// MaxDisplayNameLength caps a participant display name, in runes
	MaxDisplayNameLength = 64
)

// ChatMessage strips control characters except line breaks and tabs,
// trims surrounding whitespace and truncates to MaxChatMessageLength.
func ChatMessage(input string) string {
	input = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, input)
	return truncate(strings.TrimSpace(input), MaxChatMessageLength)
}

// DisplayName collapses a display name to a single trimmed line
func DisplayName(input string) string {
	input = StripControlCharacters(input)
	input = strings.Join(strings.Fields(input), " ")
	return truncate(input, MaxDisplayNameLength)
}

// StripControlCharacters removes control characters from string
func StripControlCharacters(input string) string {
	var result strings.Builder
	for _, r := range input {
		if !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func truncate(input string, max int) string {
	if utf8.RuneCountInString(input) <= max {
		return input
	}
	runes := []rune(input)
	return strings.TrimSpace(string(runes[:max]))
}
