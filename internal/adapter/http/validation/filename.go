package validation

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// maxFilenameLength is the maximum allowed filename length (common filesystem limit).
const maxFilenameLength = 255

// dangerousChars are replaced in stored filenames: they can break
// Content-Disposition headers or enable path traversal.
var dangerousChars = map[rune]bool{
	'"':  true,
	'\\': true,
	'/':  true,
	':':  true,
	'\n': true,
	'\r': true,
}

// SanitizeFilename makes an uploaded filename safe to use as an on-disk name
// and in response headers. Unicode is preserved; dangerous and control
// characters become underscores; the result is truncated to 255 bytes while
// keeping the extension. Empty input yields "file".
func SanitizeFilename(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))

	for _, r := range name {
		if r < 32 || r == 127 || dangerousChars[r] {
			sb.WriteRune('_')
		} else {
			sb.WriteRune(r)
		}
	}

	result := strings.TrimSpace(sb.String())
	if result == "" || strings.Trim(result, "_") == "" {
		return "file"
	}

	if len(result) > maxFilenameLength {
		result = truncatePreservingExtension(result)
	}
	return result
}

func truncatePreservingExtension(name string) string {
	ext := filepath.Ext(name)
	if ext == "" || len(ext) >= maxFilenameLength {
		return truncateToBytes(name, maxFilenameLength)
	}
	base := name[:len(name)-len(ext)]
	return truncateToBytes(base, maxFilenameLength-len(ext)) + ext
}

// truncateToBytes cuts a UTF-8 string to at most maxBytes without splitting
// a multi-byte character.
func truncateToBytes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 {
		if r, _ := utf8.DecodeLastRuneInString(s[:maxBytes]); r != utf8.RuneError {
			break
		}
		maxBytes--
	}
	return s[:maxBytes]
}
