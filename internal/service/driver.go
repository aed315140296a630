package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/podscribe/podscribe/internal/domain"
	"github.com/podscribe/podscribe/internal/infrastructure/logger"
	"github.com/podscribe/podscribe/internal/port"
)

type EventPublisher interface {
	Publish(jobID string, event Event)
}

// Driver owns all writer access to jobs after creation. A pool of workers
// claims Queued jobs from the store; the claim is the single-writer handoff,
// so advancement steps for one job are never concurrent. Jobs progress
// independently: a slow backend call for one job never blocks another.
type Driver struct {
	store        port.JobStore
	backend      port.Transcriber
	bus          EventPublisher
	workers      int
	pollInterval time.Duration
	dedupeTopics bool

	group     *errgroup.Group
	cancelAll context.CancelFunc

	mu      sync.Mutex // guards running; held across claim so Cancel never races a handoff
	running map[string]*runningJob
}

type runningJob struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	reason string
}

type DriverOptions struct {
	Workers      int
	PollInterval time.Duration
	DedupeTopics bool
}

func NewDriver(store port.JobStore, backend port.Transcriber, bus EventPublisher, opts DriverOptions) *Driver {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 200 * time.Millisecond
	}
	return &Driver{
		store:        store,
		backend:      backend,
		bus:          bus,
		workers:      opts.Workers,
		pollInterval: opts.PollInterval,
		dedupeTopics: opts.DedupeTopics,
		running:      make(map[string]*runningJob),
	}
}

func (d *Driver) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancelAll = cancel
	d.group, ctx = errgroup.WithContext(ctx)

	for i := range d.workers {
		d.group.Go(func() error {
			d.runWorker(ctx, i)
			return nil
		})
	}
	logger.Info.Printf("started %d workers", d.workers)
}

// Stop cancels all workers and waits for in-flight steps to finish.
func (d *Driver) Stop() {
	if d.cancelAll != nil {
		d.cancelAll()
	}
	if d.group != nil {
		_ = d.group.Wait()
	}
}

func (d *Driver) runWorker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			logger.Info.Printf("worker %d shutting down", id)
			return
		default:
		}

		job, rj, err := d.claimNext(ctx)
		if err != nil {
			logger.Error.Printf("worker %d: failed to claim job: %v", id, err)
			d.idle(ctx, 2*time.Second)
			continue
		}
		if job == nil {
			d.idle(ctx, d.pollInterval)
			continue
		}

		logger.Info.Printf("worker %d: processing job %s (source=%s)", id, job.ID, logger.SanitizeForLog(job.SourceLabel))
		d.process(job, rj)
	}
}

func (d *Driver) idle(ctx context.Context, delay time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// claimNext atomically claims a Queued job and registers it as running, so
// Cancel always observes a job as either queued, registered, or terminal.
func (d *Driver) claimNext(ctx context.Context) (*domain.Job, *runningJob, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	job, err := d.store.ClaimQueued()
	if err != nil || job == nil {
		return nil, nil, err
	}

	jobCtx, cancel := context.WithCancel(ctx)
	rj := &runningJob{
		ctx:    jobCtx,
		cancel: cancel,
		done:   make(chan struct{}),
		reason: "processing aborted",
	}
	d.running[job.ID] = rj
	return job, rj, nil
}

func (d *Driver) unregister(id string, rj *runningJob) {
	d.mu.Lock()
	delete(d.running, id)
	d.mu.Unlock()
	rj.cancel()
	close(rj.done)
}

func (d *Driver) process(job *domain.Job, rj *runningJob) {
	defer d.unregister(job.ID, rj)

	d.publish(job.ID, Event{Type: EventTypeUpdate, State: domain.JobStateProcessing})

	var (
		allSegments []domain.TranscriptSegment
		allTopics   []domain.TopicSegment
	)

	emit := func(chunk port.Chunk) error {
		topics := chunk.Topics
		if d.dedupeTopics {
			topics = dedupe(allTopics, topics)
		}
		delta := domain.ProgressDelta{
			Progress:         progressPercent(chunk.CurrentTime, chunk.TotalDuration),
			ElapsedMediaTime: chunk.CurrentTime,
			Segments:         chunk.Segments,
			Topics:           topics,
		}
		if err := d.store.AppendProgress(job.ID, delta); err != nil {
			return err
		}
		allSegments = append(allSegments, chunk.Segments...)
		allTopics = append(allTopics, topics...)
		d.publish(job.ID, Event{Type: EventTypeUpdate, State: domain.JobStateProcessing})
		return nil
	}

	src := port.Source{Path: job.SourcePath, Label: job.SourceLabel, Size: job.SourceSize, IsDemo: job.IsDemo}
	summary, err := d.backend.Stream(rj.ctx, src, emit)
	if err != nil {
		d.finishAborted(job.ID, rj, err)
		return
	}

	result := &domain.AnalysisResult{
		Transcription: allSegments,
		Topics:        allTopics,
		FullText:      domain.JoinSegmentTexts(allSegments),
		Metadata: domain.ResultMetadata{
			Accuracy: summary.Accuracy,
			Duration: summary.Duration,
		},
	}
	if err := d.store.Complete(job.ID, result); err != nil {
		logger.Error.Printf("job %s: failed to finalize: %v", job.ID, err)
		d.finishAborted(job.ID, rj, err)
		return
	}

	logger.Info.Printf("job %s completed", job.ID)
	d.publish(job.ID, Event{Type: EventTypeFinal, State: domain.JobStateComplete})
}

// finishAborted performs the terminal Failed or Cancelled transition. The
// driver never retries; retry is a caller decision.
func (d *Driver) finishAborted(jobID string, rj *runningJob, cause error) {
	if errors.Is(cause, context.Canceled) {
		if err := d.store.Cancel(jobID, rj.reason); err != nil {
			logger.Error.Printf("job %s: failed to mark cancelled: %v", jobID, err)
		}
		logger.Info.Printf("job %s cancelled", jobID)
		d.publish(jobID, Event{Type: EventTypeError, State: domain.JobStateCancelled, Message: rj.reason})
		return
	}

	reason := cause.Error()
	if err := d.store.Fail(jobID, reason); err != nil {
		logger.Error.Printf("job %s: failed to mark failed: %v", jobID, err)
	}
	logger.Error.Printf("job %s failed: %v", jobID, cause)
	d.publish(jobID, Event{Type: EventTypeError, State: domain.JobStateFailed, Message: reason})
}

// Cancel transitions a job to the terminal Cancelled state. Queued jobs are
// cancelled directly in the store; for a running job the in-flight step is
// aborted and Cancel waits until the worker has written the terminal state.
func (d *Driver) Cancel(id string) error {
	d.mu.Lock()
	rj, isRunning := d.running[id]
	if !isRunning {
		// Still holding the lock excludes a concurrent claim handoff, so the
		// job is either Queued or already terminal, never mid-step.
		err := d.store.Cancel(id, "cancelled by client")
		d.mu.Unlock()
		return err
	}
	rj.reason = "cancelled by client"
	rj.cancel()
	d.mu.Unlock()

	<-rj.done

	snap, err := d.store.Snapshot(id)
	if err != nil {
		return err
	}
	if snap.State != domain.JobStateCancelled {
		// The job reached another terminal state before the abort landed.
		return domain.ErrJobNotCancellable
	}
	return nil
}

func (d *Driver) publish(jobID string, event Event) {
	if d.bus != nil {
		d.bus.Publish(jobID, event)
	}
}

func progressPercent(current, total float64) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(current / total * 100))
	if p > 100 {
		p = 100
	}
	return p
}

// dedupe drops incoming topics whose name and category match the most
// recently appended topic.
func dedupe(existing, incoming []domain.TopicSegment) []domain.TopicSegment {
	out := make([]domain.TopicSegment, 0, len(incoming))
	var last *domain.TopicSegment
	if len(existing) > 0 {
		last = &existing[len(existing)-1]
	}
	for i := range incoming {
		t := incoming[i]
		if last != nil && last.Name == t.Name && last.Category == t.Category {
			continue
		}
		out = append(out, t)
		last = &out[len(out)-1]
	}
	return out
}
