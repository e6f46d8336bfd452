// Package output persists a job's artifacts: the transcript text and the
// run statistics record.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Artifact file names inside a job's output folder.
const (
	TranscriptFileName = "transcription.txt"
	StatsFileName      = "stats.json"
)

// Stats is the write-once run record serialized alongside the transcript.
// ConversionTime is omitted for audio inputs that skip extraction.
type Stats struct {
	ConversionTime    float64 `json:"conversion_time,omitempty"`
	TranscriptionTime float64 `json:"transcription_time"`
	DetectedLanguage  string  `json:"detected_language"`
	Timestamp         string  `json:"timestamp"`
}

// NewStats builds a Stats record, rounding durations to centiseconds and
// stamping the completion time.
func NewStats(conversion, transcription time.Duration, language string, completedAt time.Time) Stats {
	return Stats{
		ConversionTime:    roundSeconds(conversion),
		TranscriptionTime: roundSeconds(transcription),
		DetectedLanguage:  language,
		Timestamp:         completedAt.Format(time.RFC3339),
	}
}

func roundSeconds(d time.Duration) float64 {
	return float64(int64(d.Seconds()*100+0.5)) / 100
}

// Writer persists artifacts into job output folders.
type Writer struct{}

// NewWriter creates an artifact writer.
func NewWriter() *Writer {
	return &Writer{}
}

// FolderName returns the timestamped output folder name for a source stem,
// e.g. "talk" at 2026-08-23 10:15:00 -> "talk_20260823_101500".
func FolderName(stem string, ts time.Time) string {
	return stem + "_" + ts.Format("20060102_150405")
}

// CreateFolder creates the job's output folder under outputDir and
// returns its path. The folder is owned by exactly one job.
func (w *Writer) CreateFolder(outputDir, stem string, ts time.Time) (string, error) {
	folder := filepath.Join(outputDir, FolderName(stem, ts))
	if err := os.MkdirAll(folder, 0755); err != nil {
		return "", fmt.Errorf("create output folder: %w", err)
	}
	return folder, nil
}

// WriteTranscript writes the raw UTF-8 transcript text into the folder and
// returns the transcript path.
func (w *Writer) WriteTranscript(folder, text string) (string, error) {
	path := filepath.Join(folder, TranscriptFileName)
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return path, nil
}

// WriteStats serializes the stats record into the folder and returns the
// stats path.
func (w *Writer) WriteStats(folder string, stats Stats) (string, error) {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal stats: %w", err)
	}

	path := filepath.Join(folder, StatsFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write stats: %w", err)
	}
	return path, nil
}
