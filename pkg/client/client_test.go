package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/podscribe/podscribe/internal/adapter/http"
	"github.com/podscribe/podscribe/internal/adapter/storage/memory"
	"github.com/podscribe/podscribe/internal/adapter/transcriber/sim"
	"github.com/podscribe/podscribe/internal/domain"
	"github.com/podscribe/podscribe/internal/service"
)

// newTestServer wires the real stack. workers=0 leaves jobs Queued forever.
func newTestServer(t *testing.T, workers int) *httptest.Server {
	t.Helper()

	store := memory.NewStore()
	bus := service.NewEventBus()
	ingest := service.NewIngestService(store, t.TempDir(), 1)
	driver := service.NewDriver(store, sim.New(0), bus, service.DriverOptions{
		Workers:      max(workers, 1),
		PollInterval: 5 * time.Millisecond,
	})
	if workers > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		driver.Start(ctx)
		t.Cleanup(func() {
			cancel()
			driver.Stop()
		})
	}

	server := httptest.NewServer(httpadapter.NewServer(ingest, driver, bus, 1))
	t.Cleanup(server.Close)
	return server
}

func fastPoll() PollOptions {
	return PollOptions{
		Interval:    2 * time.Millisecond,
		MaxInterval: 10 * time.Millisecond,
		MaxDuration: 5 * time.Second,
	}
}

func TestSubmitAndPollUntilDone(t *testing.T) {
	c := New(newTestServer(t, 1).URL)

	created, err := c.Submit(context.Background(), "episode.mp3", strings.NewReader("fake audio bytes"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.JobID)
	assert.Equal(t, "episode.mp3", created.Filename)
	assert.Equal(t, int64(len("fake audio bytes")), created.Size)

	job, err := c.PollUntilDone(context.Background(), created.JobID, fastPoll())
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateComplete, job.State)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.Result)
	assert.NotEmpty(t, job.Result.FullText)
}

func TestSubmitDemoAndResults(t *testing.T) {
	c := New(newTestServer(t, 1).URL)

	created, err := c.SubmitDemo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DemoSourceLabel, created.Filename)
	assert.True(t, created.IsDemo)

	job, err := c.PollUntilDone(context.Background(), created.JobID, fastPoll())
	require.NoError(t, err)
	require.Equal(t, domain.JobStateComplete, job.State)

	result, err := c.Results(context.Background(), created.JobID)
	require.NoError(t, err)
	assert.Len(t, result.Transcription, 16)
	assert.Len(t, result.Topics, 6)
	assert.Equal(t, 0.94, result.Metadata.Accuracy)
}

func TestStatusNotFound(t *testing.T) {
	c := New(newTestServer(t, 0).URL)

	_, err := c.Status(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "JobNotFound", apiErr.Code)
}

func TestExportFormats(t *testing.T) {
	c := New(newTestServer(t, 1).URL)

	created, err := c.SubmitDemo(context.Background())
	require.NoError(t, err)
	_, err = c.PollUntilDone(context.Background(), created.JobID, fastPoll())
	require.NoError(t, err)

	srt, err := c.Export(context.Background(), created.JobID, "srt")
	require.NoError(t, err)
	assert.Equal(t, "transcript.srt", srt.Filename)
	assert.True(t, strings.HasPrefix(srt.Content, "1\n00:00:00,000 --> "))

	csv, err := c.Export(context.Background(), created.JobID, "csv")
	require.NoError(t, err)
	assert.Equal(t, "transcript.csv", csv.Filename)
	assert.True(t, strings.HasPrefix(csv.Content, "start,end,text\n"))

	jsonFile, err := c.Export(context.Background(), created.JobID, "json")
	require.NoError(t, err)
	assert.Equal(t, "transcript.json", jsonFile.Filename)
	var result domain.AnalysisResult
	require.NoError(t, json.Unmarshal([]byte(jsonFile.Content), &result))
	assert.Len(t, result.Transcription, 16)

	_, err = c.Export(context.Background(), created.JobID, "pdf")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "InvalidFormat", apiErr.Code)
}

func TestExportBeforeComplete(t *testing.T) {
	c := New(newTestServer(t, 0).URL)

	created, err := c.Submit(context.Background(), "a.mp3", strings.NewReader("data"))
	require.NoError(t, err)

	_, err = c.Export(context.Background(), created.JobID, "srt")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "NotReady", apiErr.Code)
}

func TestSubmitRejectedFormat(t *testing.T) {
	c := New(newTestServer(t, 0).URL)

	_, err := c.Submit(context.Background(), "clip.mov", strings.NewReader("data"))
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "UnsupportedFormat", apiErr.Code)
}

func TestCancelQueued(t *testing.T) {
	c := New(newTestServer(t, 0).URL)

	created, err := c.Submit(context.Background(), "a.mp3", strings.NewReader("data"))
	require.NoError(t, err)

	job, err := c.Cancel(context.Background(), created.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateCancelled, job.State)
}

func TestDelete(t *testing.T) {
	c := New(newTestServer(t, 0).URL)

	created, err := c.Submit(context.Background(), "a.mp3", strings.NewReader("data"))
	require.NoError(t, err)

	require.NoError(t, c.Delete(context.Background(), created.JobID))

	_, err = c.Status(context.Background(), created.JobID)
	assert.True(t, IsNotFound(err))
}

func TestPollUntilDoneTimesOut(t *testing.T) {
	c := New(newTestServer(t, 0).URL)

	created, err := c.Submit(context.Background(), "a.mp3", strings.NewReader("data"))
	require.NoError(t, err)

	opts := PollOptions{
		Interval:    2 * time.Millisecond,
		MaxInterval: 5 * time.Millisecond,
		MaxDuration: 50 * time.Millisecond,
	}
	job, err := c.PollUntilDone(context.Background(), created.JobID, opts)
	require.ErrorIs(t, err, ErrPollTimeout)
	require.NotNil(t, job)
	assert.Equal(t, domain.JobStateQueued, job.State)
}

func TestPollUntilDoneRespectsContext(t *testing.T) {
	c := New(newTestServer(t, 0).URL)

	created, err := c.Submit(context.Background(), "a.mp3", strings.NewReader("data"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = c.PollUntilDone(ctx, created.JobID, fastPoll())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPollTimeout)
}

func TestWatchDeliversUpdatesThenFinal(t *testing.T) {
	c := New(newTestServer(t, 1).URL)

	created, err := c.SubmitDemo(context.Background())
	require.NoError(t, err)

	var events []StreamEvent
	err = c.Watch(context.Background(), created.JobID, fastPoll(), func(ev StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, "final", last.Type)
	require.NotNil(t, last.Result)
	assert.Len(t, last.Result.Transcription, 16)

	for _, ev := range events[:len(events)-1] {
		assert.Equal(t, "update", ev.Type)
	}
}

func TestWatchFallsBackToPolling(t *testing.T) {
	// A server whose SSE stream dies before the terminal event; status reports
	// the job as Complete, so the fallback path must deliver a final event.
	completed := domain.NewJob("a.mp3", "", 4)
	completed.State = domain.JobStateComplete
	completed.Progress = 100
	completed.Result = &domain.AnalysisResult{FullText: "done"}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: update\ndata: {\"type\":\"update\",\"progress\":10}\n\n")
		// Connection drops here without a final event.
	})
	mux.HandleFunc("GET /api/status/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completed)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	c := New(server.URL)

	var events []StreamEvent
	err := c.Watch(context.Background(), completed.ID, fastPoll(), func(ev StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "update", events[0].Type)
	assert.Equal(t, 10, events[0].Progress)
	assert.Equal(t, "final", events[1].Type)
	require.NotNil(t, events[1].Result)
	assert.Equal(t, "done", events[1].Result.FullText)
}
