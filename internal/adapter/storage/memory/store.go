package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/podscribe/podscribe/internal/domain"
	"github.com/podscribe/podscribe/internal/port"
)

// Store is the default in-process JobStore: a mutex-guarded map handing out
// deep snapshots. One instance is constructed at process start and injected;
// nothing here is package-global state.
type Store struct {
	mu    sync.RWMutex
	jobs  map[string]*domain.Job
	order []string
}

func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*domain.Job),
	}
}

func (s *Store) Create(job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job.Snapshot()
	s.order = append(s.order, job.ID)
	return nil
}

func (s *Store) Snapshot(id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job.Snapshot(), nil
}

func (s *Store) List() ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Job, 0, len(s.order))
	for _, id := range s.order {
		if job, ok := s.jobs[id]; ok {
			out = append(out, job.Snapshot())
		}
	}
	return out, nil
}

func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs), nil
}

// ClaimQueued hands the oldest Queued job to exactly one caller by flipping
// it to Processing under the lock. This is the single-writer handoff: a job
// can never be claimed twice.
func (s *Store) ClaimQueued() (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		job, ok := s.jobs[id]
		if !ok || job.State != domain.JobStateQueued {
			continue
		}
		job.State = domain.JobStateProcessing
		job.StartedAt = time.Now().UTC()
		return job.Snapshot(), nil
	}
	return nil, nil
}

func (s *Store) AppendProgress(id string, delta domain.ProgressDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if err := appendGuard(job, delta); err != nil {
		return err
	}

	job.Segments = append(job.Segments, delta.Segments...)
	job.Topics = append(job.Topics, delta.Topics...)
	job.Progress = delta.Progress
	job.ElapsedMediaTime = delta.ElapsedMediaTime
	return nil
}

func (s *Store) Complete(id string, result *domain.AnalysisResult) error {
	return s.finalize(id, domain.JobStateComplete, func(job *domain.Job) {
		job.Result = result.Copy()
		job.Progress = 100
	})
}

func (s *Store) Fail(id string, reason string) error {
	return s.finalize(id, domain.JobStateFailed, func(job *domain.Job) {
		job.ErrorMessage = reason
	})
}

func (s *Store) Cancel(id string, reason string) error {
	err := s.finalize(id, domain.JobStateCancelled, func(job *domain.Job) {
		job.ErrorMessage = reason
	})
	if err == domain.ErrJobTerminal {
		return domain.ErrJobNotCancellable
	}
	return err
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return domain.ErrJobNotFound
	}
	delete(s.jobs, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) finalize(id string, to domain.JobState, apply func(*domain.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.State.Terminal() {
		return domain.ErrJobTerminal
	}
	if !domain.ValidTransition(job.State, to) {
		return fmt.Errorf("invalid transition: %s -> %s", job.State, to)
	}
	job.State = to
	job.CompletedAt = time.Now().UTC()
	apply(job)
	return nil
}

// appendGuard enforces the append-time invariants: appends only while
// Processing, counters never regress.
func appendGuard(job *domain.Job, delta domain.ProgressDelta) error {
	if job.State.Terminal() {
		return domain.ErrJobTerminal
	}
	if job.State != domain.JobStateProcessing {
		return fmt.Errorf("cannot append progress in state %s", job.State)
	}
	if delta.Progress < job.Progress || delta.ElapsedMediaTime < job.ElapsedMediaTime {
		return domain.ErrProgressRegression
	}
	return nil
}

var _ port.JobStore = (*Store)(nil)
