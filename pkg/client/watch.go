package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/podscribe/podscribe/internal/domain"
)

// ErrPollTimeout is returned when a job does not reach a terminal state
// within the polling deadline.
var ErrPollTimeout = errors.New("polling deadline exceeded before job finished")

var errStillRunning = errors.New("job still running")

// PollOptions bounds the polling loop. Intervals grow from Interval along a
// fibonacci curve, capped at MaxInterval; the loop gives up entirely after
// MaxDuration.
type PollOptions struct {
	Interval    time.Duration
	MaxInterval time.Duration
	MaxDuration time.Duration
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = 500 * time.Millisecond
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 5 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 10 * time.Minute
	}
	return o
}

// PollUntilDone polls job status until the job is terminal, the context is
// cancelled, or MaxDuration elapses. It returns the last snapshot seen.
func (c *Client) PollUntilDone(ctx context.Context, jobID string, opts PollOptions) (*domain.Job, error) {
	opts = opts.withDefaults()

	backoff := retry.NewFibonacci(opts.Interval)
	backoff = retry.WithCappedDuration(opts.MaxInterval, backoff)
	backoff = retry.WithMaxDuration(opts.MaxDuration, backoff)

	var last *domain.Job
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		job, err := c.Status(ctx, jobID)
		if err != nil {
			if IsNotFound(err) {
				return err
			}
			// Transient transport errors keep the loop alive.
			return retry.RetryableError(err)
		}
		last = job
		if job.State.Terminal() {
			return nil
		}
		return retry.RetryableError(errStillRunning)
	})
	if err != nil {
		if errors.Is(err, errStillRunning) {
			return last, fmt.Errorf("%w: job %s last seen in state %s", ErrPollTimeout, jobID, stateOf(last))
		}
		return last, err
	}
	return last, nil
}

func stateOf(job *domain.Job) domain.JobState {
	if job == nil {
		return ""
	}
	return job.State
}

// StreamEvent is one progress-channel emission as seen by the client. Type is
// "update", "final" or "error"; the other fields are populated according to
// the type.
type StreamEvent struct {
	Type        string                     `json:"type"`
	Progress    int                        `json:"progress"`
	CurrentTime float64                    `json:"current_time"`
	NewSegments []domain.TranscriptSegment `json:"new_segments"`
	NewTopics   []domain.TopicSegment      `json:"new_topics"`
	Result      *domain.AnalysisResult     `json:"result"`
	Status      domain.JobState            `json:"status"`
	Error       string                     `json:"error"`
}

// Terminal reports whether this event ends the stream.
func (e StreamEvent) Terminal() bool {
	return e.Type == "final" || e.Type == "error"
}

// Watch follows a job over SSE, invoking fn for each event until a terminal
// event arrives. If the SSE transport fails before a terminal event, Watch
// falls back to polling and synthesizes events from snapshots, so callers
// always observe a terminal event unless the context is cancelled or the
// polling deadline passes.
func (c *Client) Watch(ctx context.Context, jobID string, opts PollOptions, fn func(StreamEvent) error) error {
	done, err := c.watchSSE(ctx, jobID, fn)
	if done || ctx.Err() != nil {
		return err
	}

	// Transport failed mid-stream; fall back to polling.
	job, err := c.PollUntilDone(ctx, jobID, opts)
	if err != nil {
		return err
	}
	return fn(snapshotEvent(job))
}

// watchSSE returns done=true when a terminal event was delivered or fn
// rejected an event; done=false means the transport failed and the caller
// should fall back to polling.
func (c *Client) watchSSE(ctx context.Context, jobID string, fn func(StreamEvent) error) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/events/"+jobID, nil)
	if err != nil {
		return true, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return true, apiErr
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var ev StreamEvent
			if err := json.Unmarshal([]byte(data.String()), &ev); err != nil {
				data.Reset()
				continue
			}
			data.Reset()
			if err := fn(ev); err != nil {
				return true, err
			}
			if ev.Terminal() {
				return true, nil
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event: names and comments carry no payload of their own
		}
	}
	if err := scanner.Err(); err != nil {
		return false, err
	}
	// Stream ended without a terminal event.
	return false, nil
}

// snapshotEvent converts a terminal snapshot into the event the SSE stream
// would have carried.
func snapshotEvent(job *domain.Job) StreamEvent {
	if job.State == domain.JobStateComplete {
		return StreamEvent{Type: "final", Result: job.Result}
	}
	return StreamEvent{Type: "error", Status: job.State, Error: job.ErrorMessage}
}
