package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TechnicallyShaun/whisperwatch/internal/pipeline/claim"
	"github.com/TechnicallyShaun/whisperwatch/internal/pipeline/client"
	"github.com/TechnicallyShaun/whisperwatch/internal/pipeline/logging"
	"github.com/TechnicallyShaun/whisperwatch/internal/pipeline/output"
	"github.com/TechnicallyShaun/whisperwatch/internal/pipeline/stage"
)

// State is a Job's position in its lifecycle.
type State int

const (
	StateDetected State = iota
	StateAwaitingCompletion
	StateClaimed
	StateStaged
	StateExtracting
	StateTranscribing
	StateFinalized
	StateRolledBack
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateDetected:
		return "detected"
	case StateAwaitingCompletion:
		return "awaiting-completion"
	case StateClaimed:
		return "claimed"
	case StateStaged:
		return "staged"
	case StateExtracting:
		return "extracting"
	case StateTranscribing:
		return "transcribing"
	case StateFinalized:
		return "finalized"
	case StateRolledBack:
		return "rolled-back"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can occur.
func (s State) Terminal() bool {
	switch s {
	case StateFinalized, StateRolledBack, StateAbandoned:
		return true
	}
	return false
}

// Job is the unit of work for one detected file. A Job is owned exclusively
// by the pipeline goroutine that runs it; nothing else mutates it.
type Job struct {
	ID         string
	SourcePath string
	State      State
	DetectedAt time.Time

	// SkipReason is set when the job terminated before claiming
	// (filter, completion timeout, or disappearance).
	SkipReason string

	// Set as the job progresses.
	PendingPath  string
	OutputFolder string
	FinalPath    string
	Stats        output.Stats

	// Err is the failure that triggered rollback; RestoredPath is where
	// the file went back to. RollbackErr is set when rollback itself
	// failed (pending file already gone).
	Err          error
	RestoredPath string
	RollbackErr  error
}

// Supported extensions. Video inputs get an extraction step; audio inputs
// are transcribed directly from pending.
var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mkv": {}, ".avi": {}, ".mov": {},
}

var audioExtensions = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".m4a": {},
}

// IsVideo reports whether ext (lowercase, with dot) is a supported video
// extension.
func IsVideo(ext string) bool {
	_, ok := videoExtensions[ext]
	return ok
}

// skipReason returns a non-empty reason if the event at path should be
// ignored with no side effects.
func skipReason(path string) string {
	name := filepath.Base(path)

	if strings.HasPrefix(name, ".") {
		return "hidden or system file"
	}
	if claim.IsMarker(name) {
		return "claim marker"
	}

	ext := strings.ToLower(filepath.Ext(name))
	if _, video := videoExtensions[ext]; !video {
		if _, audio := audioExtensions[ext]; !audio {
			return "unsupported file type"
		}
	}

	info, err := os.Lstat(path)
	if err != nil {
		return "file no longer exists"
	}
	if info.IsDir() {
		return "directory"
	}
	return ""
}

// Pipeline runs the lifecycle of individual files. All collaborators are
// injected at construction and shared across jobs.
type Pipeline struct {
	cfg         *Config
	logger      *logging.FileLogger
	waiter      CompletionWaiter
	claims      *claim.Registry
	mover       *stage.Mover
	extractor   Extractor
	transcriber Transcriber
	writer      *output.Writer

	// now is swappable for tests that pin the output-folder timestamp.
	now func() time.Time
}

// NewPipeline wires a Pipeline from its collaborators.
func NewPipeline(cfg *Config, logger *logging.FileLogger, waiter CompletionWaiter, extractor Extractor, transcriber Transcriber) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		logger:      logger.WithComponent("pipeline"),
		waiter:      waiter,
		claims:      claim.NewRegistry(),
		mover:       stage.NewMover(cfg.WatchDir, cfg.PendingDir),
		extractor:   extractor,
		transcriber: transcriber,
		writer:      output.NewWriter(),
		now:         time.Now,
	}
}

// Run processes one creation event to a terminal state and returns the
// Job. It never returns an error: every outcome, including failure and
// rollback, is recorded on the Job and logged, so one file's failure
// cannot stop the watch loop.
func (p *Pipeline) Run(ctx context.Context, path string, detectedAt time.Time) *Job {
	job := &Job{
		ID:         uuid.NewString(),
		SourcePath: path,
		State:      StateDetected,
		DetectedAt: detectedAt,
	}

	// Step 1: eligibility filter. Ineligible events terminate here with
	// no side effects and no claim.
	if reason := skipReason(path); reason != "" {
		job.SkipReason = reason
		p.logger.Debug("event ignored",
			logging.String("path", path),
			logging.String("reason", reason),
		)
		return job
	}

	// Step 2: wait for the writer to finish.
	job.State = StateAwaitingCompletion
	if err := p.waiter.WaitStable(ctx, path); err != nil {
		job.SkipReason = "file did not stabilize: " + err.Error()
		p.logger.Info("skipping unstable file",
			logging.String("job", job.ID),
			logging.String("path", path),
			logging.String("reason", err.Error()),
		)
		return job
	}

	// Step 3: the file may have been moved by another actor between
	// completion and the claim attempt.
	if _, err := os.Lstat(path); err != nil {
		job.SkipReason = "file disappeared after stabilizing"
		p.logger.Info("file disappeared after stabilizing",
			logging.String("job", job.ID),
			logging.String("path", path),
		)
		return job
	}

	// Step 4: claim. Exactly one concurrent job per file name wins.
	held, err := p.claims.Acquire(path, job.ID)
	if err != nil {
		if errors.Is(err, claim.ErrAlreadyClaimed) {
			job.State = StateAbandoned
			p.logger.Info("file already claimed, abandoning",
				logging.String("job", job.ID),
				logging.String("path", path),
			)
			return job
		}
		job.SkipReason = "claim failed: " + err.Error()
		p.logger.Error("claim acquisition failed", err,
			logging.String("job", job.ID),
			logging.String("path", path),
		)
		return job
	}
	// The claim is released on every exit path from here on.
	defer func() {
		if rerr := held.Release(); rerr != nil {
			p.logger.Error("claim release failed", rerr,
				logging.String("job", job.ID),
				logging.String("path", path),
			)
		}
	}()
	job.State = StateClaimed

	p.logger.Info("processing file",
		logging.String("job", job.ID),
		logging.String("path", path),
	)

	// Step 5: create the job's output folder and take custody of the file.
	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(name))
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	folder, err := p.writer.CreateFolder(p.cfg.OutputDir, stem, p.now())
	if err != nil {
		return p.fail(job, err)
	}
	job.OutputFolder = folder

	pendingPath, err := p.mover.ToPending(path)
	if err != nil {
		return p.fail(job, err)
	}
	job.PendingPath = pendingPath
	job.State = StateStaged

	// Step 6: video inputs get an audio extraction pass; audio inputs
	// are transcribed straight from pending.
	audioPath := pendingPath
	var conversionTime time.Duration
	if IsVideo(ext) {
		job.State = StateExtracting
		extractStart := time.Now()
		audioPath, err = p.extractor.Extract(ctx, pendingPath, folder)
		if err != nil {
			return p.fail(job, err)
		}
		conversionTime = time.Since(extractStart)
		p.logger.Info("audio extracted",
			logging.String("job", job.ID),
			logging.String("audio", audioPath),
			logging.Duration("conversion_time", conversionTime),
		)
	}

	// Step 7: transcription.
	job.State = StateTranscribing
	transcribeStart := time.Now()
	result, err := p.transcriber.Transcribe(ctx, audioPath, client.TranscribeOptions{
		Model: p.cfg.Model,
	})
	if err != nil {
		return p.fail(job, err)
	}
	transcriptionTime := time.Since(transcribeStart)

	language := result.Language
	if language == "" {
		language = "unknown"
	}

	// Step 8: transcript and stats must both be durable before the final
	// media move, so a folder holding the media copy is always complete.
	job.Stats = output.NewStats(conversionTime, transcriptionTime, language, time.Now())
	if _, err := p.writer.WriteTranscript(folder, result.Text); err != nil {
		return p.fail(job, err)
	}
	if _, err := p.writer.WriteStats(folder, job.Stats); err != nil {
		return p.fail(job, err)
	}

	// Step 9: move the original media into the output folder.
	finalPath, err := p.mover.ToOutput(pendingPath, folder)
	if err != nil {
		return p.fail(job, err)
	}
	job.FinalPath = finalPath
	job.State = StateFinalized

	p.logger.Info("file processing complete",
		logging.String("path", path),
		logging.String("output", folder),
		logging.String("job", job.ID),
		logging.String("language", language),
		logging.Float64("transcription_time", job.Stats.TranscriptionTime),
	)
	return job
}

// fail rolls the job back: if the file reached pending, a best-effort
// restore returns it to the watch directory so a fresh drop or event can
// retry it. The claim is released by Run's deferred cleanup.
func (p *Pipeline) fail(job *Job, cause error) *Job {
	job.Err = cause
	p.logger.Error("processing failed", cause,
		logging.String("job", job.ID),
		logging.String("path", job.SourcePath),
		logging.String("state", job.State.String()),
	)

	if job.PendingPath != "" {
		restorePath, rerr := p.mover.ToWatch(job.PendingPath)
		if rerr != nil {
			job.RollbackErr = rerr
			p.logger.Error("rollback failed, pending file may be gone", rerr,
				logging.String("job", job.ID),
				logging.String("pending", job.PendingPath),
			)
		} else {
			job.RestoredPath = restorePath
			p.logger.Info("file restored to watch directory",
				logging.String("job", job.ID),
				logging.String("restored", restorePath),
			)
		}
	}

	job.State = StateRolledBack
	return job
}
