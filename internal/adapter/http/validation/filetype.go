// Package validation provides upload boundary checks: the extension
// allowlist that gates submission plus advisory content sniffing.
package validation

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// allowedExtensions is the accepted audio upload allowlist.
var allowedExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".ogg":  true,
	".flac": true,
	".webm": true,
}

// AllowedExtension reports whether the filename carries an accepted audio
// extension (case-insensitive).
func AllowedExtension(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// audioMIMETypes are the sniffed types considered consistent with the
// extension allowlist.
var audioMIMETypes = map[string]bool{
	"audio/mpeg":      true,
	"audio/wav":       true,
	"audio/wave":      true,
	"audio/x-wav":     true,
	"audio/ogg":       true,
	"application/ogg": true,
	"audio/flac":      true,
	"audio/x-flac":    true,
	"audio/mp4":       true,
	"video/mp4":       true, // m4a shares the ftyp container
	"video/webm":      true,
	"audio/webm":      true,
}

const sniffBufferSize = 512

// SniffAudio reads the file's magic bytes and reports the detected MIME type
// and whether it looks like one of the accepted audio containers. Detection
// is advisory; the extension allowlist decides acceptance.
func SniffAudio(path string) (mime string, matched bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close() //nolint:errcheck

	buf := make([]byte, sniffBufferSize)
	n, err := f.Read(buf)
	if n == 0 || (err != nil && !errors.Is(err, io.EOF)) {
		return "application/octet-stream", false
	}
	buf = buf[:n]

	mime = detectAudioMagicBytes(buf)
	if mime == "" {
		mime = http.DetectContentType(buf)
	}
	return mime, audioMIMETypes[mime]
}

// detectAudioMagicBytes covers audio formats http.DetectContentType does not
// recognize reliably.
func detectAudioMagicBytes(buf []byte) string {
	if len(buf) < 4 {
		return ""
	}

	// FLAC: "fLaC"
	if buf[0] == 'f' && buf[1] == 'L' && buf[2] == 'a' && buf[3] == 'C' {
		return "audio/flac"
	}

	// ID3 tag (common for MP3)
	if buf[0] == 'I' && buf[1] == 'D' && buf[2] == '3' {
		return "audio/mpeg"
	}

	// MP3 without ID3: MPEG Audio Layer III frame sync
	if buf[0] == 0xFF {
		switch buf[1] & 0xFE {
		case 0xFA, 0xF2:
			return "audio/mpeg"
		}
	}

	// WebM/Matroska: EBML header
	if buf[0] == 0x1A && buf[1] == 0x45 && buf[2] == 0xDF && buf[3] == 0xA3 {
		return "video/webm"
	}

	// M4A/MP4: ftyp box at offset 4
	if len(buf) >= 12 && buf[4] == 'f' && buf[5] == 't' && buf[6] == 'y' && buf[7] == 'p' {
		if string(buf[8:12]) == "M4A " {
			return "audio/mp4"
		}
		return "video/mp4"
	}

	return ""
}
