package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Storage contains the storageRoot location and its fixed subdirectory
// names.
type Storage struct {
	Root                  string `toml:"root"`
	UploadsDirName        string `toml:"uploads_dir_name"`
	PackagedArtifactsName string `toml:"packaged_artifacts_dir_name"`
}

// StageConfig describes one pipeline stage's identity and timing.
type StageConfig struct {
	Name           string `toml:"name"`
	Concurrency    int    `toml:"concurrency"`
	LeaseSeconds   int    `toml:"lease_seconds"`
	MaxRetries     int    `toml:"max_retries"`
	BackoffSeconds int    `toml:"backoff_seconds"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Pipeline contains the ordered stage list that defines the job pipeline.
type Pipeline struct {
	Stages []StageConfig `toml:"stages"`
}

// Reclaim contains lease-reclaim scan timing.
type Reclaim struct {
	ScanIntervalSeconds int `toml:"scan_interval_seconds"`
}

// Index contains the derived SQLite index location.
type Index struct {
	Path string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobCreated     bool   `toml:"job_created"`
	StageCompleted bool   `toml:"stage_completed"`
	StageFailed    bool   `toml:"stage_failed"`
	JobReclaimed   bool   `toml:"job_reclaimed"`
}

// Daemon contains daemon-process settings.
type Daemon struct {
	LockPath string `toml:"lock_path"`
}

// Config encapsulates all configuration values for the job orchestrator.
//
// Configuration sections by subsystem:
//   - Storage: storageRoot and subdirectory names
//   - Pipeline: ordered stage list and per-stage concurrency/lease/retry/backoff/timeout
//   - Reclaim: expired-lease scan interval
//   - Index: derived SQLite index path
//   - Logging: log format, level, and retention
//   - Notifications: ntfy push notification settings
//   - Daemon: single-instance lock file location
type Config struct {
	Storage       Storage       `toml:"storage"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Reclaim       Reclaim       `toml:"reclaim"`
	Index         Index         `toml:"index"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
	Daemon        Daemon        `toml:"daemon"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/jobforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/jobforge/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("jobforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories create-if-missing's the storage tree, matching the
// storage layout's "exists unconditionally" contract.
func (c *Config) EnsureDirectories() error {
	if strings.TrimSpace(c.Storage.Root) == "" {
		return errors.New("storage.root must be set")
	}
	if err := os.MkdirAll(c.Storage.Root, 0o755); err != nil {
		return fmt.Errorf("create storage root %q: %w", c.Storage.Root, err)
	}
	if dir := filepath.Dir(c.Index.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create index directory %q: %w", dir, err)
		}
	}
	if dir := filepath.Dir(c.Daemon.LockPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create daemon lock directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other
// packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified
// location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// StageNames returns the configured pipeline's stage names in order.
func (c *Config) StageNames() []string {
	names := make([]string, 0, len(c.Pipeline.Stages))
	for _, s := range c.Pipeline.Stages {
		names = append(names, s.Name)
	}
	return names
}
