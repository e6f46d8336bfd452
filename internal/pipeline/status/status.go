// Package status parses the daemon's log files for status display.
package status

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Stats holds counters parsed from one day's log file.
type Stats struct {
	FilesProcessed int
	FilesRestored  int
	Errors         int
	LastProcessed  *ProcessedFile
}

// ProcessedFile describes the most recent successfully processed file.
type ProcessedFile struct {
	Timestamp time.Time
	Path      string
	Output    string
}

func logDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".whisperwatch", "logs"), nil
}

// TodayLogPath returns the path to today's daemon log file.
func TodayLogPath() (string, error) {
	dir, err := logDir()
	if err != nil {
		return "", err
	}
	today := time.Now().UTC().Format("2006-01-02")
	return filepath.Join(dir, "whisperwatch-"+today+".log"), nil
}

// ParseTodayStats parses today's log file and returns statistics.
// Returns empty stats if the log file doesn't exist.
func ParseTodayStats() (*Stats, error) {
	logPath, err := TodayLogPath()
	if err != nil {
		return nil, err
	}
	return ParseLogFile(logPath)
}

// Log line shapes this parser depends on:
//
//	2026-08-23T14:30:00Z INFO  [pipeline] file processing complete path=/w/a.mp4 output=/c/a_20260823_143000 ...
//	2026-08-23T14:31:00Z INFO  [pipeline] file restored to watch directory ...
//	2026-08-23T14:31:00Z ERROR [pipeline] processing failed ...
var (
	completedPattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z)\s+INFO\s+\[pipeline\]\s+file processing complete\s+path=(\S+)\s+output=(\S+)`)
	restoredPattern  = regexp.MustCompile(`\s+INFO\s+\[pipeline\]\s+file restored to watch directory\s`)
	errorPattern     = regexp.MustCompile(`\s+ERROR\s+`)
)

// ParseLogFile parses a log file and returns statistics.
// Returns empty stats if the file doesn't exist.
func ParseLogFile(path string) (*Stats, error) {
	stats := &Stats{}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()

		if matches := completedPattern.FindStringSubmatch(line); matches != nil {
			stats.FilesProcessed++
			timestamp, err := time.Parse(time.RFC3339, matches[1])
			if err == nil {
				stats.LastProcessed = &ProcessedFile{
					Timestamp: timestamp,
					Path:      unquoteIfNeeded(matches[2]),
					Output:    unquoteIfNeeded(matches[3]),
				}
			}
			continue
		}

		if restoredPattern.MatchString(line) {
			stats.FilesRestored++
			continue
		}

		if errorPattern.MatchString(line) {
			stats.Errors++
		}
	}

	return stats, scanner.Err()
}

func unquoteIfNeeded(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// FormatTimestamp formats a timestamp for display.
func FormatTimestamp(t time.Time) string {
	return t.Local().Format("2006-01-02T15:04:05")
}

// BaseName returns just the filename from a path.
func BaseName(path string) string {
	return filepath.Base(strings.TrimSuffix(path, "/"))
}
