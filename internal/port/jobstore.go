package port

import "github.com/podscribe/podscribe/internal/domain"

// JobStore owns every job record for the process lifetime. Mutation beyond
// Create goes through the processing driver, which claims each job exactly
// once; stores serialize mutation per job and permit concurrent lookups.
// Neither implementation evicts records: stores grow unbounded unless jobs
// are deleted explicitly.
type JobStore interface {
	Create(job *domain.Job) error
	Snapshot(id string) (*domain.Job, error)
	List() ([]*domain.Job, error)
	Count() (int, error)

	// ClaimQueued atomically moves at most one Queued job to Processing and
	// returns its snapshot. Returns (nil, nil) when nothing is queued.
	ClaimQueued() (*domain.Job, error)

	AppendProgress(id string, delta domain.ProgressDelta) error
	Complete(id string, result *domain.AnalysisResult) error
	Fail(id string, reason string) error
	Cancel(id string, reason string) error

	Delete(id string) error
	Close() error
}
