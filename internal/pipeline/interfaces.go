// Package pipeline implements the file-intake pipeline: the state machine
// that takes a file from "just written" in the watch directory through
// claiming, staging, extraction, transcription, and finalization or
// rollback.
package pipeline

import (
	"context"

	"github.com/TechnicallyShaun/whisperwatch/internal/pipeline/client"
	"github.com/TechnicallyShaun/whisperwatch/internal/pipeline/watcher"
)

// FileWatcher detects files created in a directory.
type FileWatcher interface {
	// Watch subscribes to creation events for dir.
	Watch(ctx context.Context, dir string) (<-chan watcher.FileEvent, error)
	// Stop stops the watcher.
	Stop() error
}

// CompletionWaiter blocks until a file has finished being written.
type CompletionWaiter interface {
	WaitStable(ctx context.Context, path string) error
}

// Extractor produces a transcription-ready WAV from a media file.
type Extractor interface {
	// Extract writes a mono 16kHz PCM WAV into outDir and returns its path.
	Extract(ctx context.Context, mediaPath, outDir string) (string, error)
}

// Transcriber converts an audio file to text. The implementation is a
// shared, read-only handle constructed once at startup; jobs never mutate
// or reinitialize it.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, opts client.TranscribeOptions) (*client.TranscriptionResult, error)
}
