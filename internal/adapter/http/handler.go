package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/podscribe/podscribe/internal/domain"
	"github.com/podscribe/podscribe/internal/infrastructure/logger"
	"github.com/podscribe/podscribe/internal/service"
)

// JobService is the ingestion surface the handlers consume.
type JobService interface {
	Submit(filename, declaredMIME string, size int64, file io.Reader) (*domain.Job, error)
	SubmitDemo() (*domain.Job, error)
	Get(id string) (*domain.Job, error)
	List() ([]*domain.Job, error)
	Count() (int, error)
	Delete(id string) error
}

// JobController exposes the driver operations reachable from the API.
type JobController interface {
	Cancel(id string) error
}

type Handlers struct {
	jobSvc    JobService
	driver    JobController
	maxSizeMB int
}

func NewHandlers(jobSvc JobService, driver JobController, maxSizeMB int) *Handlers {
	return &Handlers{
		jobSvc:    jobSvc,
		driver:    driver,
		maxSizeMB: maxSizeMB,
	}
}

func (h *Handlers) Upload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxBytes := int64(h.maxSizeMB) * 1024 * 1024
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1)

		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, domain.ErrFileTooLarge, "file too large or malformed upload")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "InvalidUpload", "missing file field")
			return
		}
		defer file.Close() //nolint:errcheck

		job, err := h.jobSvc.Submit(header.Filename, header.Header.Get("Content-Type"), header.Size, file)
		if err != nil {
			status := http.StatusBadRequest
			if !isValidationError(err) {
				logger.Error.Printf("upload error for %s: %v", logger.SanitizeForLog(header.Filename), err)
				status = http.StatusInternalServerError
			}
			writeError(w, status, err, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"job_id":   job.ID,
			"filename": job.SourceLabel,
			"size":     job.SourceSize,
		})
	}
}

func (h *Handlers) StartDemo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := h.jobSvc.SubmitDemo()
		if err != nil {
			logger.Error.Printf("demo start error: %v", err)
			writeJSONError(w, http.StatusInternalServerError, "Internal", "demo failed to start")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"job_id":   job.ID,
			"filename": job.SourceLabel,
			"is_demo":  true,
		})
	}
}

func (h *Handlers) Status() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := h.jobSvc.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusNotFound, domain.ErrJobNotFound, "Job not found")
			return
		}
		writeJSON(w, http.StatusOK, snapshotView(job))
	}
}

func (h *Handlers) Results() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := h.jobSvc.Get(r.PathValue("id"))
		if err != nil || job.State != domain.JobStateComplete {
			writeError(w, http.StatusNotFound, domain.ErrResultNotReady, "Results not ready")
			return
		}
		writeJSON(w, http.StatusOK, job.Result)
	}
}

func (h *Handlers) Download() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := h.jobSvc.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusNotFound, domain.ErrJobNotFound, "Job not found")
			return
		}

		format := r.PathValue("format")
		export, err := service.Export(job, format)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidFormat):
				writeError(w, http.StatusBadRequest, err, "Invalid format")
			case errors.Is(err, domain.ErrResultNotReady):
				writeError(w, http.StatusNotFound, err, "Results not ready")
			default:
				writeJSONError(w, http.StatusInternalServerError, "Internal", err.Error())
			}
			return
		}

		// JSON downloads return the result verbatim; other formats wrap the
		// rendered content with its suggested filename.
		if format == service.FormatJSON {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(export.Content))
			return
		}
		writeJSON(w, http.StatusOK, export)
	}
}

func (h *Handlers) Cancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := h.driver.Cancel(id); err != nil {
			switch {
			case errors.Is(err, domain.ErrJobNotFound):
				writeError(w, http.StatusNotFound, err, "Job not found")
			case errors.Is(err, domain.ErrJobNotCancellable), errors.Is(err, domain.ErrJobTerminal):
				writeError(w, http.StatusConflict, err, "Job already finished")
			default:
				writeJSONError(w, http.StatusInternalServerError, "Internal", err.Error())
			}
			return
		}

		job, err := h.jobSvc.Get(id)
		if err != nil {
			writeError(w, http.StatusNotFound, domain.ErrJobNotFound, "Job not found")
			return
		}
		writeJSON(w, http.StatusAccepted, snapshotView(job))
	}
}

func (h *Handlers) DeleteJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.jobSvc.Delete(r.PathValue("id")); err != nil {
			writeError(w, http.StatusNotFound, domain.ErrJobNotFound, "Job not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handlers) ListJobs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := h.jobSvc.List()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "Internal", err.Error())
			return
		}
		views := make([]*domain.Job, 0, len(jobs))
		for _, job := range jobs {
			views = append(views, snapshotView(job))
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
	}
}

func (h *Handlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := h.jobSvc.Count()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "Internal", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "healthy",
			"jobs_count": count,
		})
	}
}

// snapshotView normalizes a snapshot for the wire: partial collections
// marshal as empty arrays, never null.
func snapshotView(job *domain.Job) *domain.Job {
	if job.Segments == nil {
		job.Segments = []domain.TranscriptSegment{}
	}
	if job.Topics == nil {
		job.Topics = []domain.TopicSegment{}
	}
	return job
}

func isValidationError(err error) bool {
	return errors.Is(err, domain.ErrUnsupportedFormat) ||
		errors.Is(err, domain.ErrEmptyFile) ||
		errors.Is(err, domain.ErrFileTooLarge)
}

// errorCode maps sentinel errors to the protocol's stable error names.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return "UnsupportedFormat"
	case errors.Is(err, domain.ErrEmptyFile):
		return "EmptyFile"
	case errors.Is(err, domain.ErrFileTooLarge):
		return "FileTooLarge"
	case errors.Is(err, domain.ErrJobNotFound):
		return "JobNotFound"
	case errors.Is(err, domain.ErrResultNotReady):
		return "NotReady"
	case errors.Is(err, domain.ErrInvalidFormat):
		return "InvalidFormat"
	case errors.Is(err, domain.ErrJobNotCancellable), errors.Is(err, domain.ErrJobTerminal):
		return "NotCancellable"
	default:
		return "Internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error, detail string) {
	writeJSONError(w, status, errorCode(err), detail)
}

func writeJSONError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{
		"error":  code,
		"detail": detail,
	})
}
