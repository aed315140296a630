package service

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/podscribe/podscribe/internal/adapter/http/validation"
	"github.com/podscribe/podscribe/internal/domain"
	"github.com/podscribe/podscribe/internal/infrastructure/logger"
	"github.com/podscribe/podscribe/internal/port"
)

// IngestService accepts uploads, validates them at the protocol boundary and
// creates Queued jobs. Exactly one job is created per successful submit;
// failed validation creates no job and leaves no file behind.
type IngestService struct {
	store     port.JobStore
	uploadDir string
	maxBytes  int64
}

func NewIngestService(store port.JobStore, dataDir string, maxUploadSizeMB int) *IngestService {
	return &IngestService{
		store:     store,
		uploadDir: filepath.Join(dataDir, "uploads"),
		maxBytes:  int64(maxUploadSizeMB) * 1024 * 1024,
	}
}

// Submit validates and persists an upload, then creates its job. The job is
// visible in the store before the id is returned, so a status fetch for a
// returned id can never miss.
func (s *IngestService) Submit(filename, declaredMIME string, size int64, file io.Reader) (*domain.Job, error) {
	if !validation.AllowedExtension(filename) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, filepath.Ext(filename))
	}
	if size == 0 {
		return nil, domain.ErrEmptyFile
	}
	if size > s.maxBytes {
		return nil, fmt.Errorf("%w: maximum size %dMB", domain.ErrFileTooLarge, s.maxBytes/(1024*1024))
	}

	if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}

	job := domain.NewJob(filename, "", size)
	uploadPath := filepath.Join(s.uploadDir, job.ID+"_"+validation.SanitizeFilename(filename))

	written, err := saveUpload(uploadPath, file, s.maxBytes)
	if err != nil {
		return nil, err
	}
	if written == 0 {
		_ = os.Remove(uploadPath)
		return nil, domain.ErrEmptyFile
	}

	// Sniffed type is advisory only; the extension allowlist decides.
	if mime, matched := validation.SniffAudio(uploadPath); !matched {
		logger.Warn.Printf("upload %s: declared %s, sniffed %s; accepting by extension",
			logger.SanitizeForLog(filename), logger.SanitizeForLog(declaredMIME), mime)
	}

	job.SourcePath = uploadPath
	job.SourceSize = written
	if err := s.store.Create(job); err != nil {
		_ = os.Remove(uploadPath)
		return nil, fmt.Errorf("create job: %w", err)
	}

	logger.Info.Printf("job created: id=%s, filename=%s, size=%d", job.ID, logger.SanitizeForLog(filename), written)
	return job.Snapshot(), nil
}

// SubmitDemo creates a job backed by the fixed synthetic input.
func (s *IngestService) SubmitDemo() (*domain.Job, error) {
	job := domain.NewDemoJob()
	if err := s.store.Create(job); err != nil {
		return nil, fmt.Errorf("create demo job: %w", err)
	}
	logger.Info.Printf("demo job created: id=%s", job.ID)
	return job.Snapshot(), nil
}

func (s *IngestService) Get(id string) (*domain.Job, error) {
	return s.store.Snapshot(id)
}

func (s *IngestService) List() ([]*domain.Job, error) {
	return s.store.List()
}

func (s *IngestService) Count() (int, error) {
	return s.store.Count()
}

// Delete is the explicit external cleanup hook; stores never evict on their
// own.
func (s *IngestService) Delete(id string) error {
	job, err := s.store.Snapshot(id)
	if err != nil {
		return err
	}
	if job.SourcePath != "" {
		_ = os.Remove(job.SourcePath)
	}
	return s.store.Delete(id)
}

func saveUpload(path string, src io.Reader, limit int64) (int64, error) {
	dst, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("save upload: %w", err)
	}
	written, err := io.Copy(dst, io.LimitReader(src, limit+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("save upload: %w", err)
	}
	if written > limit {
		_ = os.Remove(path)
		return 0, domain.ErrFileTooLarge
	}
	return written, nil
}
