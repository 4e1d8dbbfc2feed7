package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"jobforge/internal/config"
)

// NewFromConfig builds a logger from the [logging] section of a loaded
// Config: a console handler on stdout in the configured format, fanned out
// to a JSON handler writing a date-stamped file under the storage root, so
// every record lands in both places through a single Handle call. It
// returns the file's path so a caller can exclude it from CleanupOldLogs.
func NewFromConfig(cfg *config.Config) (*slog.Logger, string, error) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(cfg.Logging.Level))
	addSource := levelVar.Level() <= slog.LevelDebug

	logPath := filepath.Join(cfg.Storage.Root, fmt.Sprintf("orchestrand-%s.log", time.Now().UTC().Format("2006-01-02")))
	if err := ensureLogDir(logPath); err != nil {
		return nil, "", err
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, "", fmt.Errorf("open log file %s: %w", logPath, err)
	}

	format := strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	var console slog.Handler
	switch format {
	case "json":
		console, err = newJSONHandler(os.Stdout, levelVar, addSource)
	case "console", "":
		console = newPrettyHandler(os.Stdout, levelVar, addSource)
	default:
		return nil, "", fmt.Errorf("log format: unsupported value %q", cfg.Logging.Format)
	}
	if err != nil {
		return nil, "", err
	}

	fileHandler, err := newJSONHandler(logFile, levelVar, addSource)
	if err != nil {
		return nil, "", err
	}

	return slog.New(TeeHandler(console, fileHandler)), logPath, nil
}

// LogRetentionTargets returns the retention target covering the date-stamped
// files NewFromConfig writes, excluding activeLogPath (the file the running
// process currently holds open) from pruning.
func LogRetentionTargets(cfg *config.Config, activeLogPath string) []RetentionTarget {
	return []RetentionTarget{
		{Dir: cfg.Storage.Root, Pattern: "orchestrand-*.log", Exclude: []string{activeLogPath}},
	}
}
