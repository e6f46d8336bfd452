// Package claim provides per-file processing locks for the intake pipeline.
//
// A claim is a marker file named <name><suffix>.processing created next to
// the source file. Its existence is the mutual-exclusion signal: across any
// number of concurrent dispatches for the same file name, exactly one
// acquirer wins and all others observe ErrAlreadyClaimed.
package claim

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// MarkerSuffix is appended to the full file name to form the marker name.
const MarkerSuffix = ".processing"

// ErrAlreadyClaimed is returned when another job holds the claim.
var ErrAlreadyClaimed = errors.New("file is already claimed for processing")

// Registry hands out claims backed by exclusive file creation. The
// create-or-fail syscall is the arbitration point, so there is no
// check-then-act window between concurrent acquirers.
type Registry struct{}

// NewRegistry creates a claim registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Claim represents a held processing lock for one file.
type Claim struct {
	markerPath string

	mu       sync.Mutex
	released bool
}

// Acquire atomically creates the marker for the file at path. The owner
// string (typically the job ID) and the acquisition time are recorded in
// the marker body for operator forensics.
//
// Returns ErrAlreadyClaimed if the marker already exists.
func (r *Registry) Acquire(path, owner string) (*Claim, error) {
	markerPath := MarkerPath(path)

	f, err := os.OpenFile(markerPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrAlreadyClaimed
		}
		return nil, fmt.Errorf("create claim marker: %w", err)
	}

	fmt.Fprintf(f, "owner=%s\nacquired=%s\n", owner, time.Now().UTC().Format(time.RFC3339))
	if err := f.Close(); err != nil {
		os.Remove(markerPath)
		return nil, fmt.Errorf("write claim marker: %w", err)
	}

	return &Claim{markerPath: markerPath}, nil
}

// IsClaimed reports whether a marker currently exists for the file at path.
func (r *Registry) IsClaimed(path string) bool {
	_, err := os.Stat(MarkerPath(path))
	return err == nil
}

// Release removes the marker. It is idempotent: releasing twice, or
// releasing after the marker was removed externally, is not an error.
func (c *Claim) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return nil
	}
	c.released = true

	if err := os.Remove(c.markerPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove claim marker: %w", err)
	}
	return nil
}

// MarkerPath returns the marker path for the file at path
// (e.g. /watch/talk.mp4 -> /watch/talk.mp4.processing).
func (c *Claim) MarkerPath() string {
	return c.markerPath
}

// MarkerPath returns the marker path for the given source path.
func MarkerPath(path string) string {
	return path + MarkerSuffix
}

// IsMarker reports whether name is a claim marker file name.
func IsMarker(name string) bool {
	return len(name) > len(MarkerSuffix) && name[len(name)-len(MarkerSuffix):] == MarkerSuffix
}
