package pipeline

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for configuration fields. Explicit flags override environment
// variables, which override the optional config file, which overrides
// these.
const (
	DefaultWatchDir          = "./watch"
	DefaultPendingDir        = "./pending"
	DefaultOutputDir         = "./completed"
	DefaultModel             = "base"
	DefaultAPIURL            = "http://localhost:9000"
	DefaultStabilizeInterval = time.Second
	DefaultStabilizeTimeout  = 30 * time.Second
)

// Environment variable names recognized by MergeEnv.
const (
	EnvWatchDir   = "WHISPER_WATCH_DIR"
	EnvPendingDir = "WHISPER_PENDING_DIR"
	EnvOutputDir  = "WHISPER_OUTPUT_DIR"
	EnvModel      = "WHISPER_MODEL_SIZE"
	EnvAPIURL     = "WHISPER_API_URL"
)

// Validation errors.
var (
	ErrWatchDirRequired   = errors.New("watch directory is required")
	ErrPendingDirRequired = errors.New("pending directory is required")
	ErrOutputDirRequired  = errors.New("output directory is required")
	ErrAPIURLRequired     = errors.New("transcription API URL is required")
)

// validModels are the engine sizes the transcription service accepts.
var validModels = map[string]struct{}{
	"tiny": {}, "base": {}, "small": {}, "medium": {}, "large": {}, "turbo": {},
}

// Config holds the daemon configuration.
type Config struct {
	// WatchDir is watched for new media files (non-recursive).
	WatchDir string
	// PendingDir holds files while a job processes them.
	PendingDir string
	// OutputDir receives one timestamped folder per completed job.
	OutputDir string
	// Model selects the transcription engine model size.
	Model string
	// APIURL is the whisper-asr-webservice base URL.
	APIURL string
	// StabilizeInterval is the completion-detection poll interval.
	StabilizeInterval time.Duration
	// StabilizeTimeout bounds the wait for a file to finish writing.
	StabilizeTimeout time.Duration
}

// DefaultConfig returns a Config populated with built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		WatchDir:          DefaultWatchDir,
		PendingDir:        DefaultPendingDir,
		OutputDir:         DefaultOutputDir,
		Model:             DefaultModel,
		APIURL:            DefaultAPIURL,
		StabilizeInterval: DefaultStabilizeInterval,
		StabilizeTimeout:  DefaultStabilizeTimeout,
	}
}

// fileConfig is the YAML shape of the optional config file. Durations are
// Go duration strings ("1s", "500ms").
type fileConfig struct {
	WatchDir          string `yaml:"watch_dir"`
	PendingDir        string `yaml:"pending_dir"`
	OutputDir         string `yaml:"output_dir"`
	Model             string `yaml:"model"`
	APIURL            string `yaml:"api_url"`
	StabilizeInterval string `yaml:"stabilize_interval"`
	StabilizeTimeout  string `yaml:"stabilize_timeout"`
}

// MergeFile overlays values from a YAML config file. Absent fields leave
// the current values untouched.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.WatchDir != "" {
		c.WatchDir = fc.WatchDir
	}
	if fc.PendingDir != "" {
		c.PendingDir = fc.PendingDir
	}
	if fc.OutputDir != "" {
		c.OutputDir = fc.OutputDir
	}
	if fc.Model != "" {
		c.Model = fc.Model
	}
	if fc.APIURL != "" {
		c.APIURL = fc.APIURL
	}
	if fc.StabilizeInterval != "" {
		d, err := time.ParseDuration(fc.StabilizeInterval)
		if err != nil {
			return fmt.Errorf("parse stabilize_interval: %w", err)
		}
		c.StabilizeInterval = d
	}
	if fc.StabilizeTimeout != "" {
		d, err := time.ParseDuration(fc.StabilizeTimeout)
		if err != nil {
			return fmt.Errorf("parse stabilize_timeout: %w", err)
		}
		c.StabilizeTimeout = d
	}
	return nil
}

// MergeEnv overlays values from the recognized environment variables.
func (c *Config) MergeEnv() {
	if v := os.Getenv(EnvWatchDir); v != "" {
		c.WatchDir = v
	}
	if v := os.Getenv(EnvPendingDir); v != "" {
		c.PendingDir = v
	}
	if v := os.Getenv(EnvOutputDir); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.Model = v
	}
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.APIURL = v
	}
}

// Validate checks that required fields are present and coherent.
func (c *Config) Validate() error {
	if c.WatchDir == "" {
		return ErrWatchDirRequired
	}
	if c.PendingDir == "" {
		return ErrPendingDirRequired
	}
	if c.OutputDir == "" {
		return ErrOutputDirRequired
	}
	if c.APIURL == "" {
		return ErrAPIURLRequired
	}
	if _, ok := validModels[c.Model]; !ok {
		return fmt.Errorf("unknown model %q (want tiny, base, small, medium, large, or turbo)", c.Model)
	}
	if c.StabilizeInterval <= 0 {
		return fmt.Errorf("stabilize interval must be positive, got %v", c.StabilizeInterval)
	}
	if c.StabilizeTimeout <= 0 {
		return fmt.Errorf("stabilize timeout must be positive, got %v", c.StabilizeTimeout)
	}
	return nil
}

// EnsureDirs creates the watch, pending, and output directories if they
// do not already exist.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.WatchDir, c.PendingDir, c.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
