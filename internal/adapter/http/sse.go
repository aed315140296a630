package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/podscribe/podscribe/internal/domain"
	"github.com/podscribe/podscribe/internal/service"
)

// SSEHandler is the push half of the progress channel. Bus events are only
// nudges; every emission re-reads the store snapshot and sends the delta
// against what this session has already delivered, so observers see strictly
// ordered, monotone updates even if bus events are dropped. The server
// closes the stream after the terminal event.
type SSEHandler struct {
	eventBus *service.EventBus
	jobSvc   JobService

	keepAliveInterval time.Duration
}

func NewSSEHandler(eventBus *service.EventBus, jobSvc JobService) *SSEHandler {
	return &SSEHandler{
		eventBus:          eventBus,
		jobSvc:            jobSvc,
		keepAliveInterval: 15 * time.Second,
	}
}

// streamState tracks what one SSE session has already delivered.
type streamState struct {
	sentSegments int
	sentTopics   int
	progress     int
	elapsed      float64
	started      bool
}

type updateEvent struct {
	Type        string                     `json:"type"`
	Progress    int                        `json:"progress"`
	CurrentTime float64                    `json:"current_time"`
	NewSegments []domain.TranscriptSegment `json:"new_segments"`
	NewTopics   []domain.TopicSegment      `json:"new_topics"`
}

type finalEvent struct {
	Type   string                 `json:"type"`
	Result *domain.AnalysisResult `json:"result"`
}

type errorEvent struct {
	Type   string          `json:"type"`
	Status domain.JobState `json:"status"`
	Error  string          `json:"error"`
}

// sseWrite writes one SSE event, handling multi-line data correctly.
func sseWrite(w http.ResponseWriter, eventName string, data string) {
	_, _ = fmt.Fprintf(w, "event: %s\n", eventName)
	for _, line := range strings.Split(data, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// sendKeepAlive writes an SSE comment to keep the connection active.
func sendKeepAlive(w http.ResponseWriter) {
	_, _ = fmt.Fprint(w, ": keep-alive\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// sendUpdate emits an update event if the snapshot advanced past what this
// session already delivered.
func (h *SSEHandler) sendUpdate(w http.ResponseWriter, job *domain.Job, st *streamState) error {
	newSegments := job.Segments[min(st.sentSegments, len(job.Segments)):]
	newTopics := job.Topics[min(st.sentTopics, len(job.Topics)):]

	advanced := len(newSegments) > 0 || len(newTopics) > 0 ||
		job.Progress > st.progress || job.ElapsedMediaTime > st.elapsed || !st.started
	if !advanced {
		return nil
	}

	payload, err := json.Marshal(updateEvent{
		Type:        service.EventTypeUpdate,
		Progress:    job.Progress,
		CurrentTime: job.ElapsedMediaTime,
		NewSegments: emptyIfNil(newSegments),
		NewTopics:   emptyIfNilTopics(newTopics),
	})
	if err != nil {
		return err
	}
	sseWrite(w, service.EventTypeUpdate, string(payload))

	st.sentSegments = len(job.Segments)
	st.sentTopics = len(job.Topics)
	st.progress = job.Progress
	st.elapsed = job.ElapsedMediaTime
	st.started = true
	return nil
}

// sendTerminal emits exactly one final or error event.
func (h *SSEHandler) sendTerminal(w http.ResponseWriter, job *domain.Job) error {
	if job.State == domain.JobStateComplete {
		payload, err := json.Marshal(finalEvent{Type: service.EventTypeFinal, Result: job.Result})
		if err != nil {
			return err
		}
		sseWrite(w, service.EventTypeFinal, string(payload))
		return nil
	}

	payload, err := json.Marshal(errorEvent{
		Type:   service.EventTypeError,
		Status: job.State,
		Error:  job.ErrorMessage,
	})
	if err != nil {
		return err
	}
	sseWrite(w, service.EventTypeError, string(payload))
	return nil
}

func (h *SSEHandler) Events() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, err := h.jobSvc.Get(id); err != nil {
			writeError(w, http.StatusNotFound, domain.ErrJobNotFound, "Job not found")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		// Subscribe before the snapshot that seeds the session. A terminal
		// transition between the lookup and here is then visible either in
		// that snapshot or as a bus event, never lost to both.
		ch := h.eventBus.Subscribe(id)
		defer h.eventBus.Unsubscribe(id, ch)

		st := &streamState{}
		job, err := h.jobSvc.Get(id)
		if err != nil {
			return
		}
		if err := h.sendUpdate(w, job, st); err != nil {
			return
		}
		if job.State.Terminal() {
			_ = h.sendTerminal(w, job)
			return
		}

		ctx := r.Context()
		keepAlive := time.NewTicker(h.keepAliveInterval)
		defer keepAlive.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-keepAlive.C:
				// The bus drops events for slow subscribers; the periodic
				// re-read keeps a dropped terminal nudge from stranding the
				// session.
				job, err := h.jobSvc.Get(id)
				if err != nil {
					return
				}
				if err := h.sendUpdate(w, job, st); err != nil {
					return
				}
				if job.State.Terminal() {
					_ = h.sendTerminal(w, job)
					return
				}
				sendKeepAlive(w)
			case _, ok := <-ch:
				if !ok {
					return
				}
				job, err := h.jobSvc.Get(id)
				if err != nil {
					return
				}
				if err := h.sendUpdate(w, job, st); err != nil {
					return
				}
				if job.State.Terminal() {
					_ = h.sendTerminal(w, job)
					return
				}
			}
		}
	}
}

func emptyIfNil(segments []domain.TranscriptSegment) []domain.TranscriptSegment {
	if segments == nil {
		return []domain.TranscriptSegment{}
	}
	return segments
}

func emptyIfNilTopics(topics []domain.TopicSegment) []domain.TopicSegment {
	if topics == nil {
		return []domain.TopicSegment{}
	}
	return topics
}
