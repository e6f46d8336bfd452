package claim

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestRegistry_AcquireCreatesMarker(t *testing.T) {
	tmpDir := t.TempDir()
	source := filepath.Join(tmpDir, "talk.mp4")

	reg := NewRegistry()
	c, err := reg.Acquire(source, "job-1")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	markerPath := filepath.Join(tmpDir, "talk.mp4.processing")
	if c.MarkerPath() != markerPath {
		t.Errorf("marker path = %q, want %q", c.MarkerPath(), markerPath)
	}

	data, err := os.ReadFile(markerPath)
	if err != nil {
		t.Fatalf("marker not created: %v", err)
	}
	if !strings.Contains(string(data), "owner=job-1") {
		t.Errorf("marker body missing owner, got: %q", data)
	}
}

func TestRegistry_SecondAcquireFails(t *testing.T) {
	tmpDir := t.TempDir()
	source := filepath.Join(tmpDir, "note.wav")

	reg := NewRegistry()
	c, err := reg.Acquire(source, "job-1")
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	defer c.Release()

	if _, err := reg.Acquire(source, "job-2"); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("second Acquire = %v, want ErrAlreadyClaimed", err)
	}
}

func TestRegistry_ConcurrentAcquireSingleWinner(t *testing.T) {
	tmpDir := t.TempDir()
	source := filepath.Join(tmpDir, "clip.mp4")

	reg := NewRegistry()

	const attempts = 32
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Acquire(source, "racer")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrAlreadyClaimed):
		default:
			t.Errorf("unexpected acquire error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
}

func TestClaim_ReleaseIsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	source := filepath.Join(tmpDir, "talk.mkv")

	reg := NewRegistry()
	c, err := reg.Acquire(source, "job-1")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if err := c.Release(); err != nil {
		t.Fatalf("first Release failed: %v", err)
	}
	if err := c.Release(); err != nil {
		t.Fatalf("second Release failed: %v", err)
	}

	if _, err := os.Stat(c.MarkerPath()); !os.IsNotExist(err) {
		t.Errorf("marker still exists after release")
	}
}

func TestClaim_ReleaseAfterExternalRemoval(t *testing.T) {
	tmpDir := t.TempDir()
	source := filepath.Join(tmpDir, "talk.mov")

	reg := NewRegistry()
	c, err := reg.Acquire(source, "job-1")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if err := os.Remove(c.MarkerPath()); err != nil {
		t.Fatalf("failed to remove marker externally: %v", err)
	}

	if err := c.Release(); err != nil {
		t.Errorf("Release after external removal failed: %v", err)
	}
}

func TestRegistry_ReacquireAfterRelease(t *testing.T) {
	tmpDir := t.TempDir()
	source := filepath.Join(tmpDir, "talk.mp3")

	reg := NewRegistry()
	c, err := reg.Acquire(source, "job-1")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := c.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	c2, err := reg.Acquire(source, "job-2")
	if err != nil {
		t.Fatalf("re-Acquire after release failed: %v", err)
	}
	c2.Release()
}

func TestIsMarker(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"talk.mp4.processing", true},
		{"note.wav.processing", true},
		{"talk.mp4", false},
		{".processing", false},
		{"processing", false},
	}
	for _, tt := range tests {
		if got := IsMarker(tt.name); got != tt.want {
			t.Errorf("IsMarker(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
