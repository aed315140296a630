package service

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/podscribe/podscribe/internal/domain"
)

const (
	FormatJSON = "json"
	FormatSRT  = "srt"
	FormatCSV  = "csv"
)

// ExportFile is a rendered export plus its suggested download name.
type ExportFile struct {
	Content     string `json:"content"`
	Filename    string `json:"filename"`
	ContentType string `json:"-"`
}

// Export renders a completed job's result in the requested format. It is a
// pure read of the snapshot; the job is never touched.
func Export(job *domain.Job, format string) (*ExportFile, error) {
	switch format {
	case FormatJSON, FormatSRT, FormatCSV:
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidFormat, format)
	}
	if job.State != domain.JobStateComplete || job.Result == nil {
		return nil, domain.ErrResultNotReady
	}

	switch format {
	case FormatJSON:
		content, err := json.Marshal(job.Result)
		if err != nil {
			return nil, fmt.Errorf("marshal result: %w", err)
		}
		return &ExportFile{Content: string(content), Filename: "transcript.json", ContentType: "application/json"}, nil
	case FormatSRT:
		return &ExportFile{Content: GenerateSRT(job.Result.Transcription), Filename: "transcript.srt", ContentType: "application/x-subrip"}, nil
	default:
		content, err := GenerateCSV(job.Result.Transcription)
		if err != nil {
			return nil, err
		}
		return &ExportFile{Content: content, Filename: "transcript.csv", ContentType: "text/csv"}, nil
	}
}

// GenerateSRT renders segments as SubRip cues: 1-indexed, HH:MM:SS,mmm
// timestamps, blank-line separated.
func GenerateSRT(segments []domain.TranscriptSegment) string {
	if len(segments) == 0 {
		return ""
	}
	cues := make([]string, len(segments))
	for i, seg := range segments {
		cues[i] = fmt.Sprintf("%d\n%s --> %s\n%s",
			i+1, FormatTimestamp(seg.Start), FormatTimestamp(seg.End), strings.TrimSpace(seg.Text))
	}
	return strings.Join(cues, "\n\n") + "\n"
}

// GenerateCSV renders segments as start,end,text rows with RFC 4180 quoting.
func GenerateCSV(segments []domain.TranscriptSegment) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write([]string{"start", "end", "text"}); err != nil {
		return "", err
	}
	for _, seg := range segments {
		row := []string{
			strconv.FormatFloat(seg.Start, 'f', -1, 64),
			strconv.FormatFloat(seg.End, 'f', -1, 64),
			strings.TrimSpace(seg.Text),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return sb.String(), w.Error()
}

// FormatTimestamp renders seconds as the SubRip HH:MM:SS,mmm form.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMillis := int64(seconds*1000 + 0.5)
	hours := totalMillis / 3600000
	minutes := (totalMillis % 3600000) / 60000
	secs := (totalMillis % 60000) / 1000
	millis := totalMillis % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}
