// Package sim is a deterministic stand-in for the external
// transcription/topic-classification backend. It streams a fixed script in
// timed chunks, honoring the same ordering contract a real backend adapter
// would: segments in non-decreasing start order, topics only after their
// time range is fully transcribed.
package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/podscribe/podscribe/internal/domain"
	"github.com/podscribe/podscribe/internal/port"
)

var sentences = []string{
	"Welcome to the Podcast Topic Analyzer demo.",
	"This is a real-time streaming transcription powered by simulated AI.",
	"We are currently analyzing the audio for semantic shifts.",
	"As the speaker continues, the topic segmentation engine identifies boundaries.",
	"In this segment, the discussion is shifting towards technology and its impact.",
	"Artificial Intelligence is revolutionizing how we process large datasets.",
	"Next, we might see a shift towards business and market trends.",
	"Companies are investing heavily in LLMs and generative models.",
	"This concludes our short demonstration of real-time processing.",
	"Thank you for watching the live transcription feed.",
}

var topicScript = []struct {
	name     string
	category string
}{
	{"Welcome", "Introduction"},
	{"AI Overview", "Technology"},
	{"Data Analysis", "Technology"},
	{"Market Trends", "Business"},
	{"LLM Investment", "Technology"},
	{"Summary", "Conclusion"},
}

const (
	demoDuration      = 120.0
	chunkDuration     = 15.0
	sentencesPerChunk = 2
	demoAccuracy      = 0.94
	fileAccuracy      = 0.92

	// Synthetic media seconds per uploaded byte, roughly a 256 kbit/s stream.
	bytesPerMediaSecond = 32000
	minFileDuration     = 30.0
	maxFileDuration     = 1800.0
)

// Transcriber simulates streaming analysis. StepDelay is the artificial
// per-chunk processing delay; zero makes the stream synchronous, which is
// what tests use.
type Transcriber struct {
	StepDelay time.Duration
}

func New(stepDelay time.Duration) *Transcriber {
	return &Transcriber{StepDelay: stepDelay}
}

func (t *Transcriber) Stream(ctx context.Context, src port.Source, emit func(port.Chunk) error) (port.Summary, error) {
	total := demoDuration
	accuracy := demoAccuracy
	if !src.IsDemo {
		total = syntheticDuration(src.Size)
		accuracy = fileAccuracy
	}

	numChunks := int(total / chunkDuration)
	topicSpan := total / float64(len(topicScript))
	nextTopic := 0
	sentenceIdx := 0

	for i := range numChunks {
		if err := t.pause(ctx); err != nil {
			return port.Summary{}, err
		}

		chunkStart := float64(i) * chunkDuration
		chunkEnd := chunkStart + chunkDuration

		segments := make([]domain.TranscriptSegment, 0, sentencesPerChunk)
		span := chunkDuration / sentencesPerChunk
		for j := range sentencesPerChunk {
			start := chunkStart + float64(j)*span
			segments = append(segments, domain.TranscriptSegment{
				Start: start,
				End:   start + span,
				Text:  sentences[sentenceIdx%len(sentences)],
			})
			sentenceIdx++
		}

		// Release a topic only once every segment inside its range has
		// been emitted.
		var topics []domain.TopicSegment
		for nextTopic < len(topicScript) && float64(nextTopic+1)*topicSpan <= chunkEnd {
			topics = append(topics, makeTopic(nextTopic, topicSpan, segments[0].Text))
			nextTopic++
		}

		err := emit(port.Chunk{
			Segments:      segments,
			Topics:        topics,
			CurrentTime:   chunkEnd,
			TotalDuration: total,
			Final:         i == numChunks-1,
		})
		if err != nil {
			return port.Summary{}, err
		}
	}

	return port.Summary{Accuracy: accuracy, Duration: total}, nil
}

func (t *Transcriber) pause(ctx context.Context) error {
	if t.StepDelay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(t.StepDelay):
		return nil
	}
}

func makeTopic(idx int, span float64, text string) domain.TopicSegment {
	script := topicScript[idx]
	return domain.TopicSegment{
		ID:       idx + 1,
		Name:     fmt.Sprintf("Topic: %s", script.name),
		Category: script.category,
		Start:    float64(idx) * span,
		End:      float64(idx+1) * span,
		Text:     text,
		// Deterministic spread over [0.85, 0.99].
		Confidence: 0.85 + 0.02*float64(idx%8),
	}
}

// syntheticDuration derives a plausible media length from the upload size so
// larger files take proportionally longer, snapped to whole chunks.
func syntheticDuration(size int64) float64 {
	d := float64(size) / bytesPerMediaSecond
	if d < minFileDuration {
		d = minFileDuration
	}
	if d > maxFileDuration {
		d = maxFileDuration
	}
	chunks := int(d / chunkDuration)
	if chunks < 1 {
		chunks = 1
	}
	return float64(chunks) * chunkDuration
}

var _ port.Transcriber = (*Transcriber)(nil)
