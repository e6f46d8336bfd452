package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TechnicallyShaun/whisperwatch/internal/pipeline"
)

func TestWatchCmd_HasSubcommands(t *testing.T) {
	cmd := NewWatchCmd()

	subcommands := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subcommands[sub.Use] = true
	}

	for _, name := range []string{"start", "stop", "status"} {
		if !subcommands[name] {
			t.Errorf("expected watch command to have %s subcommand", name)
		}
	}
}

func TestResolveConfig_Defaults(t *testing.T) {
	cmd := newWatchStartCmd()

	cfg, err := resolveConfig(cmd, "")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.WatchDir != pipeline.DefaultWatchDir {
		t.Errorf("expected WatchDir %q, got %q", pipeline.DefaultWatchDir, cfg.WatchDir)
	}
	if cfg.Model != pipeline.DefaultModel {
		t.Errorf("expected Model %q, got %q", pipeline.DefaultModel, cfg.Model)
	}
}

func TestResolveConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv(pipeline.EnvWatchDir, "/env/watch")
	t.Setenv(pipeline.EnvModel, "small")

	cmd := newWatchStartCmd()
	if err := cmd.Flags().Set("watch-dir", "/flag/watch"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	cfg, err := resolveConfig(cmd, "")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// The flag beats the environment; the untouched field keeps the env value.
	if cfg.WatchDir != "/flag/watch" {
		t.Errorf("expected WatchDir /flag/watch, got %q", cfg.WatchDir)
	}
	if cfg.Model != "small" {
		t.Errorf("expected Model small from env, got %q", cfg.Model)
	}
}

func TestResolveConfig_EnvOverridesFile(t *testing.T) {
	t.Setenv(pipeline.EnvModel, "turbo")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := "model: tiny\nwatch_dir: /file/watch\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cmd := newWatchStartCmd()
	cfg, err := resolveConfig(cmd, configPath)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.Model != "turbo" {
		t.Errorf("expected Model turbo from env, got %q", cfg.Model)
	}
	if cfg.WatchDir != "/file/watch" {
		t.Errorf("expected WatchDir /file/watch from file, got %q", cfg.WatchDir)
	}
}

func TestResolveConfig_DurationFlags(t *testing.T) {
	cmd := newWatchStartCmd()
	if err := cmd.Flags().Set("stabilize-interval", "250ms"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	if err := cmd.Flags().Set("stabilize-timeout", "2m"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	cfg, err := resolveConfig(cmd, "")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.StabilizeInterval != 250*time.Millisecond {
		t.Errorf("expected 250ms interval, got %v", cfg.StabilizeInterval)
	}
	if cfg.StabilizeTimeout != 2*time.Minute {
		t.Errorf("expected 2m timeout, got %v", cfg.StabilizeTimeout)
	}
}

func TestResolveConfig_MissingFile(t *testing.T) {
	cmd := newWatchStartCmd()
	if _, err := resolveConfig(cmd, filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
