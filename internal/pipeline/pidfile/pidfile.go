// Package pidfile manages the daemon PID file used by the stop and
// status commands.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Common errors.
var (
	ErrNoPIDFile       = errors.New("no PID file found")
	ErrInvalidPID      = errors.New("invalid PID in file")
	ErrProcessNotFound = errors.New("process not found")
)

const fileName = "whisperwatch.pid"

// DefaultPath returns ~/.whisperwatch/whisperwatch.pid.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".whisperwatch", fileName), nil
}

// Write creates the PID file at path with the given process ID, creating
// parent directories if needed.
func Write(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	content := strconv.Itoa(pid) + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	return nil
}

// Read reads the PID from path. Returns ErrNoPIDFile if the file does not
// exist and ErrInvalidPID if it holds anything but a positive integer.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNoPIDFile
		}
		return 0, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, ErrInvalidPID
	}
	return pid, nil
}

// Remove deletes the PID file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove PID file: %w", err)
	}
	return nil
}

// IsRunning reports whether the process named by the PID file is alive.
// Returns (running, pid, error). A missing PID file yields (false, 0, nil);
// a stale file yields (false, pid, nil).
func IsRunning(path string) (bool, int, error) {
	pid, err := Read(path)
	if err != nil {
		if errors.Is(err, ErrNoPIDFile) {
			return false, 0, nil
		}
		return false, 0, err
	}

	// Signal 0 probes for existence without delivering anything.
	err = syscall.Kill(pid, 0)
	if err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return false, pid, nil
		}
		if errors.Is(err, syscall.EPERM) {
			return true, pid, nil
		}
		return false, pid, fmt.Errorf("check process: %w", err)
	}
	return true, pid, nil
}

// CleanStale removes the PID file if its process is no longer running.
// Returns true if a stale file was removed.
func CleanStale(path string) (bool, error) {
	running, _, err := IsRunning(path)
	if err != nil {
		return false, err
	}

	if !running {
		if _, err := os.Stat(path); err == nil {
			if err := Remove(path); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}
