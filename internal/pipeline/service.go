package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/gofrs/flock"

	"github.com/TechnicallyShaun/whisperwatch/internal/pipeline/client"
	"github.com/TechnicallyShaun/whisperwatch/internal/pipeline/extract"
	"github.com/TechnicallyShaun/whisperwatch/internal/pipeline/logging"
	"github.com/TechnicallyShaun/whisperwatch/internal/pipeline/pidfile"
	"github.com/TechnicallyShaun/whisperwatch/internal/pipeline/stabilizer"
	"github.com/TechnicallyShaun/whisperwatch/internal/pipeline/watcher"
)

// LockFileName is the single-instance lock inside the watch directory.
// Two daemons watching the same directory would double-process rollbacks,
// so the second instance refuses to start.
const LockFileName = ".whisperwatch.lock"

// Service runs the watch loop: it consumes creation events and dispatches
// each eligible one to the pipeline on its own goroutine. Files are
// independent; a slow job never blocks detection of other files.
type Service struct {
	cfg      *Config
	logger   *logging.FileLogger
	watcher  FileWatcher
	pipeline *Pipeline

	lock    *flock.Flock
	pidPath string

	wg sync.WaitGroup
}

// NewService validates the configuration, creates the pipeline
// directories, and wires all components. The transcription client is
// constructed once here and shared read-only by every job.
func NewService(cfg *Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	logConfig := logging.DefaultConfig()
	logConfig.Component = "service"
	logConfig.Echo = os.Stdout
	logger, err := logging.New(logConfig)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	fw, err := watcher.NewCreateWatcher()
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	waiter := stabilizer.NewWaiter(cfg.StabilizeInterval, cfg.StabilizeTimeout)
	extractor := extract.NewFFmpegExtractor(extract.ExecRunner{})
	transcriber := client.NewWhisperASRClient(cfg.APIURL)

	pidPath, err := pidfile.DefaultPath()
	if err != nil {
		logger.Close()
		return nil, err
	}

	return &Service{
		cfg:      cfg,
		logger:   logger,
		watcher:  fw,
		pipeline: NewPipeline(cfg, logger, waiter, extractor, transcriber),
		lock:     flock.New(filepath.Join(cfg.WatchDir, LockFileName)),
		pidPath:  pidPath,
	}, nil
}

// Run starts the watch loop and blocks until the context is cancelled or
// SIGINT/SIGTERM arrives. Shutdown stops intake immediately but lets
// in-flight jobs reach a terminal state.
func (s *Service) Run(ctx context.Context) error {
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another instance is already watching %s", s.cfg.WatchDir)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Error("failed to release instance lock", err)
		}
	}()

	if err := pidfile.Write(s.pidPath, os.Getpid()); err != nil {
		s.logger.Error("failed to write PID file", err)
	}
	defer func() {
		if err := pidfile.Remove(s.pidPath); err != nil {
			s.logger.Error("failed to remove PID file", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.logger.Info("starting watch service",
		logging.String("watch_dir", s.cfg.WatchDir),
		logging.String("pending_dir", s.cfg.PendingDir),
		logging.String("output_dir", s.cfg.OutputDir),
		logging.String("api_url", s.cfg.APIURL),
		logging.String("model", s.cfg.Model),
	)

	events, err := s.watcher.Watch(ctx, s.cfg.WatchDir)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	// Jobs run under a context detached from shutdown cancellation so
	// they can finalize or roll back after intake stops.
	jobCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("context cancelled, shutting down")
			return s.shutdown()

		case sig := <-sigCh:
			s.logger.Info("received signal, shutting down",
				logging.String("signal", sig.String()),
			)
			cancel()
			return s.shutdown()

		case event, ok := <-events:
			if !ok {
				s.logger.Info("watcher channel closed")
				return s.shutdown()
			}
			s.dispatch(jobCtx, event)
		}
	}
}

// dispatch runs the pipeline for one event on its own goroutine. The
// dispatcher never blocks on job work.
func (s *Service) dispatch(ctx context.Context, event watcher.FileEvent) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pipeline.Run(ctx, event.Path, event.Timestamp)
	}()
}

// shutdown stops intake and waits for in-flight jobs.
func (s *Service) shutdown() error {
	if err := s.watcher.Stop(); err != nil {
		s.logger.Error("error stopping watcher", err)
	}

	s.logger.Info("waiting for in-flight jobs to finish")
	s.wg.Wait()

	s.logger.Info("watch service stopped")
	return s.logger.Close()
}
