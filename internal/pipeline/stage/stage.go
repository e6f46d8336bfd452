// Package stage performs the durable location transitions of the intake
// pipeline: watch→pending when a job takes custody, pending→output on
// success, and pending→watch on rollback.
//
// Every transition is a single rename, so the file is only ever visible at
// exactly one of the two locations. The watch, pending, and output
// directories must live on the same filesystem; a cross-device move fails
// with a MoveError instead of degrading to copy+delete.
package stage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MoveError reports a failed stage transition.
type MoveError struct {
	Transition string // "to-pending", "to-output", "to-watch"
	Source     string
	Dest       string
	Err        error
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("stage %s: move %s -> %s: %v", e.Transition, e.Source, e.Dest, e.Err)
}

func (e *MoveError) Unwrap() error { return e.Err }

// Mover moves files between the pipeline's three directories.
type Mover struct {
	watchDir   string
	pendingDir string
}

// NewMover creates a stage mover for the given watch and pending directories.
func NewMover(watchDir, pendingDir string) *Mover {
	return &Mover{
		watchDir:   watchDir,
		pendingDir: pendingDir,
	}
}

// ToPending moves a file from the watch directory into pending and returns
// the pending path. Fails if the destination name is taken or the source
// vanished.
func (m *Mover) ToPending(sourcePath string) (string, error) {
	pendingPath := filepath.Join(m.pendingDir, filepath.Base(sourcePath))

	if _, err := os.Lstat(pendingPath); err == nil {
		return "", &MoveError{
			Transition: "to-pending",
			Source:     sourcePath,
			Dest:       pendingPath,
			Err:        os.ErrExist,
		}
	}

	if err := os.Rename(sourcePath, pendingPath); err != nil {
		return "", &MoveError{Transition: "to-pending", Source: sourcePath, Dest: pendingPath, Err: err}
	}
	return pendingPath, nil
}

// ToOutput moves the pending media file into the job's output folder and
// returns the final path. Called only after the transcript and stats are
// durably written, so any folder containing the media copy is complete.
func (m *Mover) ToOutput(pendingPath, outputFolder string) (string, error) {
	finalPath := filepath.Join(outputFolder, filepath.Base(pendingPath))

	if _, err := os.Lstat(finalPath); err == nil {
		return "", &MoveError{
			Transition: "to-output",
			Source:     pendingPath,
			Dest:       finalPath,
			Err:        os.ErrExist,
		}
	}

	if err := os.Rename(pendingPath, finalPath); err != nil {
		return "", &MoveError{Transition: "to-output", Source: pendingPath, Dest: finalPath, Err: err}
	}
	return finalPath, nil
}

// ToWatch restores a pending file to the watch directory after a processing
// failure, returning the restore path. If the original name has been
// reoccupied by a newer drop, the restore target is versioned
// (name.restored-N.ext) rather than overwriting it.
func (m *Mover) ToWatch(pendingPath string) (string, error) {
	restorePath := filepath.Join(m.watchDir, filepath.Base(pendingPath))

	if _, err := os.Lstat(restorePath); err == nil {
		versioned, verr := m.versionedRestorePath(restorePath)
		if verr != nil {
			return "", &MoveError{Transition: "to-watch", Source: pendingPath, Dest: restorePath, Err: verr}
		}
		restorePath = versioned
	}

	if err := os.Rename(pendingPath, restorePath); err != nil {
		return "", &MoveError{Transition: "to-watch", Source: pendingPath, Dest: restorePath, Err: err}
	}
	return restorePath, nil
}

// versionedRestorePath finds a free name of the form stem.restored-N.ext in
// the watch directory.
func (m *Mover) versionedRestorePath(occupied string) (string, error) {
	base := filepath.Base(occupied)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for i := 1; i <= 1000; i++ {
		candidate := filepath.Join(m.watchDir, fmt.Sprintf("%s.restored-%d%s", stem, i, ext))
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free restore name for %s", base)
}
