package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TechnicallyShaun/whisperwatch/internal/pipeline"
	"github.com/TechnicallyShaun/whisperwatch/internal/pipeline/pidfile"
	"github.com/TechnicallyShaun/whisperwatch/internal/pipeline/status"
)

// NewWatchCmd creates the watch command group
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Manage the watch-folder transcription daemon",
		Long:  "Commands for starting, stopping, and inspecting the watch-folder transcription daemon",
	}

	cmd.AddCommand(newWatchStartCmd())
	cmd.AddCommand(newWatchStopCmd())
	cmd.AddCommand(newWatchStatusCmd())

	return cmd
}

// newWatchStartCmd creates the watch start command
func newWatchStartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the transcription daemon in foreground mode",
		Long: `Start the transcription daemon in foreground mode.

The daemon watches a folder for new audio and video files, extracts audio
from video with ffmpeg, and transcribes it through a whisper-asr-webservice
instance. Each file ends up in its own timestamped folder under the output
directory, together with the transcript and a stats.json.

Settings resolve in order: command-line flags, then WHISPER_WATCH_DIR-style
environment variables, then the optional --config YAML file, then built-in
defaults.

The daemon runs until interrupted with Ctrl+C or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, configPath)
			if err != nil {
				return err
			}

			svc, err := pipeline.NewService(cfg)
			if err != nil {
				return fmt.Errorf("create service: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Starting whisperwatch daemon...")
			fmt.Fprintf(out, "Watching: %s\n", cfg.WatchDir)
			fmt.Fprintf(out, "Output:   %s\n", cfg.OutputDir)
			fmt.Fprintf(out, "Model:    %s\n", cfg.Model)
			fmt.Fprintln(out, "Press Ctrl+C to stop")
			fmt.Fprintln(out)

			return svc.Run(context.Background())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to a YAML config file")
	flags.String("watch-dir", pipeline.DefaultWatchDir, "directory to watch for new media files")
	flags.String("pending-dir", pipeline.DefaultPendingDir, "staging directory for in-flight files")
	flags.String("output-dir", pipeline.DefaultOutputDir, "directory for completed job folders")
	flags.String("api-url", pipeline.DefaultAPIURL, "whisper-asr-webservice base URL")
	flags.String("model", pipeline.DefaultModel, "whisper model size (tiny, base, small, medium, large, turbo)")
	flags.Duration("stabilize-interval", pipeline.DefaultStabilizeInterval, "delay between file-size samples")
	flags.Duration("stabilize-timeout", pipeline.DefaultStabilizeTimeout, "how long to wait for a file to stop growing")

	return cmd
}

// resolveConfig layers configuration sources: defaults, then the optional
// YAML file, then environment variables, then any flag the user set.
func resolveConfig(cmd *cobra.Command, configPath string) (*pipeline.Config, error) {
	cfg := pipeline.DefaultConfig()

	if configPath != "" {
		if err := cfg.MergeFile(configPath); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg.MergeEnv()

	flags := cmd.Flags()
	if flags.Changed("watch-dir") {
		cfg.WatchDir, _ = flags.GetString("watch-dir")
	}
	if flags.Changed("pending-dir") {
		cfg.PendingDir, _ = flags.GetString("pending-dir")
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir, _ = flags.GetString("output-dir")
	}
	if flags.Changed("api-url") {
		cfg.APIURL, _ = flags.GetString("api-url")
	}
	if flags.Changed("model") {
		cfg.Model, _ = flags.GetString("model")
	}
	if flags.Changed("stabilize-interval") {
		cfg.StabilizeInterval, _ = flags.GetDuration("stabilize-interval")
	}
	if flags.Changed("stabilize-timeout") {
		cfg.StabilizeTimeout, _ = flags.GetDuration("stabilize-timeout")
	}

	return cfg, nil
}

// stopTimeout is the maximum time to wait for graceful shutdown before sending SIGKILL
const stopTimeout = 10 * time.Second

// ErrNotRunning indicates the daemon is not running
var ErrNotRunning = errors.New("whisperwatch daemon is not running")

// ErrStaleProcess indicates the PID file exists but the process is not running
var ErrStaleProcess = errors.New("stale PID file (process not running)")

// newWatchStopCmd creates the watch stop command
func newWatchStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the transcription daemon",
		Long: `Stop the transcription daemon.

Reads the PID from ~/.whisperwatch/whisperwatch.pid and sends SIGTERM for
graceful shutdown. The daemon finishes in-flight files before exiting. If
the process doesn't exit within 10 seconds, SIGKILL is sent to force
termination. The PID file is removed after the process exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatchStop(cmd)
		},
	}
}

// runWatchStop stops the daemon
func runWatchStop(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	pidPath, err := pidfile.DefaultPath()
	if err != nil {
		return err
	}

	pid, err := pidfile.Read(pidPath)
	if err != nil {
		if errors.Is(err, pidfile.ErrNoPIDFile) {
			return ErrNotRunning
		}
		return fmt.Errorf("read PID file: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		// On Unix, FindProcess always succeeds, so this shouldn't happen
		return fmt.Errorf("find process: %w", err)
	}

	// Check if process exists by sending signal 0
	if err := process.Signal(syscall.Signal(0)); err != nil {
		if removeErr := pidfile.Remove(pidPath); removeErr != nil {
			fmt.Fprintf(out, "Warning: failed to remove stale PID file: %v\n", removeErr)
		}
		return ErrStaleProcess
	}

	fmt.Fprintf(out, "Stopping whisperwatch daemon (PID %d)...\n", pid)

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send SIGTERM: %w", err)
	}

	exited := waitForExit(pid, stopTimeout)

	if !exited {
		fmt.Fprintln(out, "Process did not exit gracefully, sending SIGKILL...")
		if err := process.Signal(syscall.SIGKILL); err != nil {
			// Process may have exited between check and kill
			if !errors.Is(err, os.ErrProcessDone) {
				return fmt.Errorf("send SIGKILL: %w", err)
			}
		}
		waitForExit(pid, 2*time.Second)
	}

	if err := pidfile.Remove(pidPath); err != nil {
		fmt.Fprintf(out, "Warning: failed to remove PID file: %v\n", err)
	}

	fmt.Fprintln(out, "Whisperwatch daemon stopped")
	return nil
}

// waitForExit polls until the process exits or timeout is reached
func waitForExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	pollInterval := 100 * time.Millisecond

	for time.Now().Before(deadline) {
		process, err := os.FindProcess(pid)
		if err != nil {
			return true
		}

		if err := process.Signal(syscall.Signal(0)); err != nil {
			return true
		}

		time.Sleep(pollInterval)
	}

	return false
}

// newWatchStatusCmd creates the watch status command
func newWatchStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and today's activity",
		Long: `Show whether the daemon is running and summarize today's activity
from the daemon's log file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatchStatus(cmd)
		},
	}
}

func runWatchStatus(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	pidPath, err := pidfile.DefaultPath()
	if err != nil {
		return err
	}

	running, pid, err := pidfile.IsRunning(pidPath)
	if err != nil {
		return fmt.Errorf("check daemon: %w", err)
	}
	if running {
		fmt.Fprintf(out, "Daemon:  running (PID %d)\n", pid)
	} else {
		fmt.Fprintln(out, "Daemon:  not running")
	}

	stats, err := status.ParseTodayStats()
	if err != nil {
		return fmt.Errorf("parse log: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Today:   %d processed, %d restored, %d errors\n",
		stats.FilesProcessed, stats.FilesRestored, stats.Errors)

	if stats.LastProcessed != nil {
		fmt.Fprintf(out, "Last:    %s at %s\n",
			status.BaseName(stats.LastProcessed.Path),
			status.FormatTimestamp(stats.LastProcessed.Timestamp))
		fmt.Fprintf(out, "Output:  %s\n", stats.LastProcessed.Output)
	}

	return nil
}
