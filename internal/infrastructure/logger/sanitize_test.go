package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "podcast.mp3", "podcast.mp3"},
		{"newline", "line1\nline2", "line1\\nline2"},
		{"carriage return", "a\rb", "a\\rb"},
		{"tab", "a\tb", "a\\tb"},
		{"escape sequence", "\x1b[31mred", "\\x1b[31mred"},
		{"delete char", "a\x7fb", "a\\x7fb"},
		{"unicode preserved", "эпизод №1", "эпизод №1"},
		{"empty", "", ""},
		{"forged entry", "ok\nERROR fake log line", "ok\\nERROR fake log line"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeForLog(tt.input))
		})
	}
}
