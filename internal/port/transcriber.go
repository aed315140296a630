package port

import (
	"context"

	"github.com/podscribe/podscribe/internal/domain"
)

// Source describes the input handed to the analysis backend.
type Source struct {
	Path   string
	Label  string
	Size   int64
	IsDemo bool
}

// Chunk is one incremental batch of analysis output. Segments arrive in
// non-decreasing start order; a topic appears only once every segment inside
// its time range has been emitted.
type Chunk struct {
	Segments      []domain.TranscriptSegment
	Topics        []domain.TopicSegment
	CurrentTime   float64
	TotalDuration float64
	Final         bool
}

// Summary carries backend metadata available once the stream ends.
type Summary struct {
	Accuracy float64
	Duration float64
}

// Transcriber is the opaque transcription/topic-classification backend.
// Stream calls emit for each chunk until the source is exhausted, the context
// is cancelled, or emit returns an error.
type Transcriber interface {
	Stream(ctx context.Context, src Source, emit func(Chunk) error) (Summary, error)
}
