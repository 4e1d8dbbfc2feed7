package testsupport

import (
	"path/filepath"
	"testing"

	"jobforge/internal/config"
)

// ConfigOption customizes a generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config rooted at a unique temp directory per test,
// with a two-stage pipeline (download, package) sized for fast tests, and
// applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Storage.Root = base
	cfg.Index.Path = filepath.Join(base, "index.sqlite")
	cfg.Daemon.LockPath = filepath.Join(base, "orchestrand.lock")
	cfg.Pipeline.Stages = []config.StageConfig{
		testStage("download"),
		testStage("package"),
	}
	cfg.Notifications.NtfyTopic = ""

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithStages replaces the default two-stage pipeline with the named stages,
// each carrying test-sized lease/timeout/backoff values.
func WithStages(names ...string) ConfigOption {
	return func(cfg *config.Config) {
		stages := make([]config.StageConfig, 0, len(names))
		for _, name := range names {
			stages = append(stages, testStage(name))
		}
		cfg.Pipeline.Stages = stages
	}
}

// WithNtfyTopic points notifications at a test server URL.
func WithNtfyTopic(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Notifications.NtfyTopic = url
	}
}

func testStage(name string) config.StageConfig {
	return config.StageConfig{
		Name:           name,
		Concurrency:    1,
		LeaseSeconds:   60,
		MaxRetries:     1,
		BackoffSeconds: 1,
		TimeoutSeconds: 60,
	}
}
