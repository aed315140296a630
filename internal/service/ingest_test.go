package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podscribe/podscribe/internal/adapter/storage/memory"
	"github.com/podscribe/podscribe/internal/domain"
)

func newIngest(t *testing.T) (*IngestService, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewIngestService(store, t.TempDir(), 1), store
}

func TestSubmit(t *testing.T) {
	svc, store := newIngest(t)

	content := "ID3 fake mp3 payload"
	job, err := svc.Submit("episode one.mp3", "audio/mpeg", int64(len(content)), strings.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, "episode one.mp3", job.SourceLabel)
	assert.Equal(t, int64(len(content)), job.SourceSize)
	assert.Equal(t, domain.JobStateQueued, job.State)
	assert.Equal(t, 0, job.Progress)
	assert.False(t, job.IsDemo)

	// Visible in the store immediately.
	snap, err := store.Snapshot(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateQueued, snap.State)

	// The upload landed on disk under the job id.
	saved, err := os.ReadFile(job.SourcePath)
	require.NoError(t, err)
	assert.Equal(t, content, string(saved))
	assert.Contains(t, filepath.Base(job.SourcePath), job.ID)
}

func TestSubmitUnsupportedFormat(t *testing.T) {
	svc, store := newIngest(t)

	for _, name := range []string{"video.mov", "notes.txt", "archive.zip", "noextension"} {
		_, err := svc.Submit(name, "", 10, strings.NewReader("0123456789"))
		assert.ErrorIs(t, err, domain.ErrUnsupportedFormat, "filename=%s", name)
	}

	// Rejected submissions create no job.
	n, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSubmitAcceptsAllowedExtensionsCaseInsensitive(t *testing.T) {
	svc, _ := newIngest(t)

	for _, name := range []string{"a.mp3", "b.WAV", "c.M4a", "d.ogg", "e.flac", "f.webm"} {
		_, err := svc.Submit(name, "", 4, strings.NewReader("data"))
		assert.NoError(t, err, "filename=%s", name)
	}
}

func TestSubmitEmptyFile(t *testing.T) {
	svc, store := newIngest(t)

	_, err := svc.Submit("empty.mp3", "", 0, strings.NewReader(""))
	assert.ErrorIs(t, err, domain.ErrEmptyFile)

	n, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSubmitFileTooLarge(t *testing.T) {
	svc, store := newIngest(t)

	// Limit is 1MB; a declared size above it is rejected before any I/O.
	_, err := svc.Submit("big.mp3", "", 2<<20, strings.NewReader("x"))
	assert.ErrorIs(t, err, domain.ErrFileTooLarge)

	n, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSubmitBodyLargerThanDeclared(t *testing.T) {
	svc, _ := newIngest(t)

	// A body that exceeds the limit is rejected even if the declared size lied.
	body := strings.Repeat("x", (1<<20)+1)
	_, err := svc.Submit("liar.mp3", "", 10, strings.NewReader(body))
	assert.ErrorIs(t, err, domain.ErrFileTooLarge)
}

func TestSubmitDemo(t *testing.T) {
	svc, store := newIngest(t)

	job, err := svc.SubmitDemo()
	require.NoError(t, err)

	assert.True(t, job.IsDemo)
	assert.Equal(t, domain.DemoSourceLabel, job.SourceLabel)
	assert.Equal(t, domain.JobStateQueued, job.State)

	snap, err := store.Snapshot(job.ID)
	require.NoError(t, err)
	assert.True(t, snap.IsDemo)
}

func TestConcurrentSubmitsAreIndependent(t *testing.T) {
	svc, store := newIngest(t)

	a, err := svc.Submit("a.mp3", "", 4, strings.NewReader("aaaa"))
	require.NoError(t, err)
	b, err := svc.Submit("b.mp3", "", 4, strings.NewReader("bbbb"))
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)

	snapA, err := store.Snapshot(a.ID)
	require.NoError(t, err)
	snapB, err := store.Snapshot(b.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.mp3", snapA.SourceLabel)
	assert.Equal(t, "b.mp3", snapB.SourceLabel)
}

func TestDeleteRemovesUpload(t *testing.T) {
	svc, _ := newIngest(t)

	job, err := svc.Submit("a.mp3", "", 4, strings.NewReader("data"))
	require.NoError(t, err)
	path := job.SourcePath
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(job.ID))

	_, err = svc.Get(job.ID)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteNotFound(t *testing.T) {
	svc, _ := newIngest(t)
	assert.ErrorIs(t, svc.Delete("missing"), domain.ErrJobNotFound)
}
