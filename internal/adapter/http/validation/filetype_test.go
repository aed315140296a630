package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowedExtension(t *testing.T) {
	tests := []struct {
		filename string
		want     bool
	}{
		{"podcast.mp3", true},
		{"podcast.wav", true},
		{"podcast.m4a", true},
		{"podcast.ogg", true},
		{"podcast.flac", true},
		{"podcast.webm", true},
		{"PODCAST.MP3", true},
		{"Podcast.Flac", true},
		{"archive.tar.mp3", true},
		{"video.mov", false},
		{"video.mp4", false},
		{"document.pdf", false},
		{"noextension", false},
		{"", false},
		{".mp3", true},
		{"podcast.mp3.exe", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, AllowedExtension(tt.filename), "filename=%q", tt.filename)
	}
}

func writeTemp(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func TestSniffAudio(t *testing.T) {
	pad := make([]byte, 64)

	tests := []struct {
		name    string
		content []byte
		mime    string
		matched bool
	}{
		{"flac", append([]byte("fLaC"), pad...), "audio/flac", true},
		{"mp3 with id3", append([]byte("ID3\x04\x00"), pad...), "audio/mpeg", true},
		{"mp3 frame sync", append([]byte{0xFF, 0xFB, 0x90}, pad...), "audio/mpeg", true},
		{"webm", append([]byte{0x1A, 0x45, 0xDF, 0xA3}, pad...), "video/webm", true},
		{"m4a", append([]byte{0, 0, 0, 0x20, 'f', 't', 'y', 'p', 'M', '4', 'A', ' '}, pad...), "audio/mp4", true},
		{"plain text", []byte("just some text that is long enough"), "text/plain; charset=utf-8", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, "sample", tt.content)
			mime, matched := SniffAudio(path)
			assert.Equal(t, tt.mime, mime)
			assert.Equal(t, tt.matched, matched)
		})
	}
}

func TestSniffAudioMissingFile(t *testing.T) {
	mime, matched := SniffAudio(filepath.Join(t.TempDir(), "missing"))
	assert.Empty(t, mime)
	assert.False(t, matched)
}

func TestSniffAudioEmptyFile(t *testing.T) {
	path := writeTemp(t, "empty", nil)
	mime, matched := SniffAudio(path)
	assert.Equal(t, "application/octet-stream", mime)
	assert.False(t, matched)
}
