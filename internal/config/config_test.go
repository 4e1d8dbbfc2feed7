package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"jobforge/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndUsesEnvTopic(t *testing.T) {
	t.Setenv("JOBFORGE_NTFY_TOPIC", "env-topic")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantRoot := filepath.Join(tempHome, ".local", "share", "jobforge", "storage")
	if cfg.Storage.Root != wantRoot {
		t.Fatalf("unexpected storage root: got %q want %q", cfg.Storage.Root, wantRoot)
	}
	if len(cfg.Pipeline.Stages) != 4 {
		t.Fatalf("expected 4 default pipeline stages, got %d", len(cfg.Pipeline.Stages))
	}
	if cfg.Pipeline.Stages[0].Name != "download" {
		t.Fatalf("expected first stage 'download', got %q", cfg.Pipeline.Stages[0].Name)
	}
	if cfg.Notifications.NtfyTopic != "env-topic" {
		t.Fatalf("expected ntfy topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	if info, err := os.Stat(cfg.Storage.Root); err != nil || !info.IsDir() {
		t.Fatalf("expected storage root to exist as directory: %v", err)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "jobforge.toml")

	type payload struct {
		Storage struct {
			Root string `toml:"root"`
		} `toml:"storage"`
		Reclaim struct {
			ScanIntervalSeconds int `toml:"scan_interval_seconds"`
		} `toml:"reclaim"`
	}
	custom := payload{}
	custom.Storage.Root = filepath.Join(tempDir, "custom-storage")
	custom.Reclaim.ScanIntervalSeconds = 90
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Storage.Root != custom.Storage.Root {
		t.Fatalf("expected storage root override, got %q", cfg.Storage.Root)
	}
	if cfg.Reclaim.ScanIntervalSeconds != 90 {
		t.Fatalf("expected scan interval 90, got %d", cfg.Reclaim.ScanIntervalSeconds)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[storage]") {
		t.Fatalf("sample config missing [storage] section: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if len(cfg.Pipeline.Stages) != 4 {
		t.Fatalf("expected 4 stages in sample config, got %d", len(cfg.Pipeline.Stages))
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Root = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing storage root")
	}

	cfg = config.Default()
	cfg.Pipeline.Stages = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty pipeline")
	}

	cfg = config.Default()
	cfg.Pipeline.Stages[0].Concurrency = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive concurrency")
	}

	cfg = config.Default()
	cfg.Pipeline.Stages[1].Name = cfg.Pipeline.Stages[0].Name
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for duplicate stage name")
	}

	cfg = config.Default()
	cfg.Reclaim.ScanIntervalSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive reclaim interval")
	}

	cfg = config.Default()
	cfg.Notifications.RequestTimeout = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative notification timeout")
	}
}
