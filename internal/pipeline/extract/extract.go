// Package extract invokes ffmpeg to pull a transcription-ready audio
// track out of a video file.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// AudioFileName is the name of the extracted track inside a job's output
// folder.
const AudioFileName = "extracted_audio.wav"

// Runner executes an external command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner implements Runner with os/exec.
type ExecRunner struct{}

// Run executes the command, capturing stderr into the error for debugging.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		if stderrStr != "" {
			return "", fmt.Errorf("command %q failed: %w\nstderr: %s", name, err, stderrStr)
		}
		return "", fmt.Errorf("command %q failed: %w", name, err)
	}
	return stdout.String(), nil
}

// FFmpegExtractor implements audio extraction by shelling out to ffmpeg.
type FFmpegExtractor struct {
	// Binary is the ffmpeg executable name or path (default "ffmpeg").
	Binary string
	runner Runner
}

// NewFFmpegExtractor creates an extractor using the given runner.
func NewFFmpegExtractor(runner Runner) *FFmpegExtractor {
	return &FFmpegExtractor{
		Binary: "ffmpeg",
		runner: runner,
	}
}

// Extract converts the media file's audio track into a mono 16kHz 16-bit
// PCM WAV inside outDir and returns the WAV path. Fails on unreadable or
// corrupt input.
func (e *FFmpegExtractor) Extract(ctx context.Context, mediaPath, outDir string) (string, error) {
	audioPath := filepath.Join(outDir, AudioFileName)

	// -vn drops the video stream; 16kHz mono pcm_s16le is the format
	// the transcription engine expects.
	args := []string{
		"-i", mediaPath,
		"-vn",
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-y",
		audioPath,
	}

	if _, err := e.runner.Run(ctx, e.Binary, args...); err != nil {
		return "", fmt.Errorf("extract audio from %s: %w", filepath.Base(mediaPath), err)
	}
	return audioPath, nil
}
