package domain

import (
	"fmt"
	"strings"
)

// TranscriptSegment is a time-bounded span of transcript text.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Validate checks the 0 <= start < end invariant.
func (s TranscriptSegment) Validate() error {
	if s.Start < 0 {
		return fmt.Errorf("segment start %v is negative", s.Start)
	}
	if s.Start >= s.End {
		return fmt.Errorf("segment start %v is not before end %v", s.Start, s.End)
	}
	return nil
}

// TopicSegment is a time-bounded, labeled span grouping transcript segments.
// IDs are positive and unique within a job.
type TopicSegment struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	Start      float64 `json:"startTime"`
	End        float64 `json:"endTime"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func (t TopicSegment) Validate() error {
	if t.ID <= 0 {
		return fmt.Errorf("topic id %d is not positive", t.ID)
	}
	if t.Start >= t.End {
		return fmt.Errorf("topic start %v is not before end %v", t.Start, t.End)
	}
	if t.Confidence < 0 || t.Confidence > 1 {
		return fmt.Errorf("topic confidence %v outside [0,1]", t.Confidence)
	}
	return nil
}

// ResultMetadata summarizes a completed analysis.
type ResultMetadata struct {
	Accuracy float64 `json:"accuracy"`
	Duration float64 `json:"duration"`
}

// AnalysisResult is the canonical final output of a completed job. It is
// immutable once set on a job.
type AnalysisResult struct {
	Transcription []TranscriptSegment `json:"transcription"`
	Topics        []TopicSegment      `json:"topics"`
	FullText      string              `json:"full_text"`
	Metadata      ResultMetadata      `json:"metadata"`
}

func (r *AnalysisResult) Copy() *AnalysisResult {
	cp := *r
	cp.Transcription = append([]TranscriptSegment(nil), r.Transcription...)
	cp.Topics = append([]TopicSegment(nil), r.Topics...)
	return &cp
}

// JoinSegmentTexts builds the full_text field: segment texts in order joined
// by single spaces.
func JoinSegmentTexts(segments []TranscriptSegment) string {
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}
	return strings.Join(texts, " ")
}
