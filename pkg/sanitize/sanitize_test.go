package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestChatMessage(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "hello class", "hello class"},
		{"trims", "  hi  \n", "hi"},
		{"keeps line breaks", "line one\nline two", "line one\nline two"},
		{"drops control characters", "be\x00ep\x07", "beep"},
		{"only whitespace", " \t\n ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChatMessage(tt.input))
		})
	}
}

func TestChatMessage_Truncates(t *testing.T) {
	got := ChatMessage(strings.Repeat("é", MaxChatMessageLength+50))
	assert.Equal(t, MaxChatMessageLength, utf8.RuneCountInString(got))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", DisplayName("  Ada\n  Lovelace\t"))
	assert.Equal(t, "", DisplayName("\x00\x01"))
	assert.Equal(t, MaxDisplayNameLength, utf8.RuneCountInString(DisplayName(strings.Repeat("a", 200))))
}
