package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/TechnicallyShaun/whisperwatch/internal/pipeline/logging"
	"github.com/TechnicallyShaun/whisperwatch/internal/pipeline/watcher"
)

func newTestService(t *testing.T) (*Service, *testEnv) {
	t.Helper()

	env := newTestEnv(t)

	logger, err := logging.New(logging.Config{
		LogDir: filepath.Join(t.TempDir(), "logs"),
		Prefix: "test",
	})
	if err != nil {
		t.Fatalf("create logger: %v", err)
	}

	fw, err := watcher.NewCreateWatcher()
	if err != nil {
		t.Fatalf("create watcher: %v", err)
	}

	svc := &Service{
		cfg:      env.cfg,
		logger:   logger,
		watcher:  fw,
		pipeline: env.pipeline,
		lock:     flock.New(filepath.Join(env.cfg.WatchDir, LockFileName)),
		pidPath:  filepath.Join(t.TempDir(), "test.pid"),
	}
	return svc, env
}

func TestService_ProcessesDroppedFile(t *testing.T) {
	svc, env := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	// Give the watcher a moment to register before dropping the file.
	time.Sleep(100 * time.Millisecond)
	env.dropFile(t, "talk.mp4", "video payload")

	deadline := time.After(5 * time.Second)
	for {
		if folders := dirNames(t, env.cfg.OutputDir); len(folders) == 1 {
			folder := filepath.Join(env.cfg.OutputDir, folders[0])
			if _, err := os.Stat(filepath.Join(folder, "stats.json")); err == nil {
				break
			}
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for output folder")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("service did not shut down")
	}

	// PID file removed on the way out.
	if _, err := os.Stat(svc.pidPath); !os.IsNotExist(err) {
		t.Error("PID file not removed on shutdown")
	}
	if names := dirNames(t, env.cfg.PendingDir); len(names) != 0 {
		t.Errorf("pending dir not empty after shutdown: %v", names)
	}
}

func TestService_RefusesSecondInstance(t *testing.T) {
	svc, env := newTestService(t)

	// Another process already holds the watch-directory lock.
	other := flock.New(filepath.Join(env.cfg.WatchDir, LockFileName))
	ok, err := other.TryLock()
	if err != nil || !ok {
		t.Fatalf("failed to take lock: ok=%v err=%v", ok, err)
	}
	defer other.Unlock()

	if err := svc.Run(context.Background()); err == nil {
		t.Error("Run succeeded with lock already held")
	}
	svc.logger.Close()
}

func TestService_ShutdownWaitsForInFlightJobs(t *testing.T) {
	svc, env := newTestService(t)
	env.transcriber.delay = 300 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	path := env.dropFile(t, "talk.mp4", "video payload")

	// Cancel while the job is still transcribing. The staged file must not
	// be stranded: the job either finalizes or rolls back before Run
	// returns.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("service did not shut down")
	}

	if names := dirNames(t, env.cfg.PendingDir); len(names) != 0 {
		t.Errorf("file stranded in pending after shutdown: %v", names)
	}

	folders := dirNames(t, env.cfg.OutputDir)
	finalized := false
	if len(folders) == 1 {
		if _, err := os.Stat(filepath.Join(env.cfg.OutputDir, folders[0], "talk.mp4")); err == nil {
			finalized = true
		}
	}
	if !finalized {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("file neither finalized nor restored to watch: %v", err)
		}
	}
}
