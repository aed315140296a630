package domain

import (
	"time"

	"github.com/google/uuid"
)

type JobState string

const (
	JobStateQueued     JobState = "Queued"
	JobStateProcessing JobState = "Processing"
	JobStateComplete   JobState = "Complete"
	JobStateFailed     JobState = "Failed"
	JobStateCancelled  JobState = "Cancelled"
)

// DemoSourceLabel is the display name of the fixed synthetic input used for
// demo jobs.
const DemoSourceLabel = "demo_sample.mp3"

// Job is one tracked unit of work from upload to final result. After creation
// only the processing driver mutates a Job, and all mutation goes through the
// store so observers only ever see consistent snapshots.
type Job struct {
	ID               string              `json:"id"`
	SourceLabel      string              `json:"filename"`
	IsDemo           bool                `json:"is_demo"`
	SourcePath       string              `json:"-"`
	SourceSize       int64               `json:"size"`
	State            JobState            `json:"status"`
	Progress         int                 `json:"progress"`
	ElapsedMediaTime float64             `json:"current_time"`
	Segments         []TranscriptSegment `json:"segments"`
	Topics           []TopicSegment      `json:"topics"`
	Result           *AnalysisResult     `json:"result,omitempty"`
	ErrorMessage     string              `json:"error,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	StartedAt        time.Time           `json:"started_at,omitzero"`
	CompletedAt      time.Time           `json:"completed_at,omitzero"`
}

func NewJob(sourceLabel, sourcePath string, sourceSize int64) *Job {
	return &Job{
		ID:          uuid.NewString(),
		SourceLabel: sourceLabel,
		SourcePath:  sourcePath,
		SourceSize:  sourceSize,
		State:       JobStateQueued,
		CreatedAt:   time.Now().UTC(),
	}
}

func NewDemoJob() *Job {
	job := NewJob(DemoSourceLabel, "", 0)
	job.IsDemo = true
	return job
}

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobStateComplete || s == JobStateFailed || s == JobStateCancelled
}

// ValidTransition enforces the allowed job state machine edges.
func ValidTransition(from, to JobState) bool {
	switch from {
	case JobStateQueued:
		return to == JobStateProcessing || to == JobStateFailed || to == JobStateCancelled
	case JobStateProcessing:
		return to == JobStateComplete || to == JobStateFailed || to == JobStateCancelled
	default:
		return false
	}
}

// Snapshot returns a deep copy safe to hand to observers while the driver
// keeps appending to the live record.
func (j *Job) Snapshot() *Job {
	cp := *j
	cp.Segments = append([]TranscriptSegment(nil), j.Segments...)
	cp.Topics = append([]TopicSegment(nil), j.Topics...)
	if j.Result != nil {
		cp.Result = j.Result.Copy()
	}
	return &cp
}

// ProgressDelta is one advancement step: zero or more new segments and topics
// plus the values of the monotone counters after the step.
type ProgressDelta struct {
	Progress         int
	ElapsedMediaTime float64
	Segments         []TranscriptSegment
	Topics           []TopicSegment
}
