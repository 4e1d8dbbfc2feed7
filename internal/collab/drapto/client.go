// Package drapto is the ingest stage's default external collaborator: a
// thin adapter around drapto, used here as an audio transcode tool that
// normalizes whatever an ingest source hands the pipeline into the codec
// downstream stages expect. The core never imports this package directly;
// it is wired in only behind the stage.Handler boundary.
package drapto

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

var commandContext = exec.CommandContext

// ProgressUpdate captures a single transcode progress event.
type ProgressUpdate struct {
	Percent float64
	Stage   string
	Message string
}

// Client transcodes an ingested audio source into the pipeline's working
// format and reports the output path.
type Client interface {
	Transcode(ctx context.Context, inputPath, outputDir string, progress func(ProgressUpdate)) (string, error)
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// CLI wraps the drapto command-line tool.
type CLI struct {
	binary string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "drapto"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Transcode launches drapto and returns the output path.
func (c *CLI) Transcode(ctx context.Context, inputPath, outputDir string, progress func(ProgressUpdate)) (string, error) {
	outputPath, cleanOutputDir, err := resolveOutputPath(inputPath, outputDir)
	if err != nil {
		return "", err
	}

	args := []string{"encode", "--input", inputPath, "--output", cleanOutputDir, "--progress-json"}
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start drapto: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Bytes()
		var payload struct {
			Percent float64 `json:"percent"`
			Stage   string  `json:"stage"`
			Message string  `json:"message"`
		}
		if err := json.Unmarshal(line, &payload); err != nil {
			continue
		}
		if progress != nil {
			progress(ProgressUpdate{Percent: payload.Percent, Stage: payload.Stage, Message: payload.Message})
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read drapto output: %w", err)
	}
	if err := cmd.Wait(); err != nil {
		return "", fmt.Errorf("drapto encode failed: %w", err)
	}
	return outputPath, nil
}

func resolveOutputPath(inputPath, outputDir string) (outputPath, cleanOutputDir string, err error) {
	if inputPath == "" {
		return "", "", errors.New("input path required")
	}
	cleanOutputDir = strings.TrimSpace(outputDir)
	if cleanOutputDir == "" {
		return "", "", errors.New("output directory required")
	}
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return filepath.Join(cleanOutputDir, stem+".mka"), cleanOutputDir, nil
}

var _ Client = (*CLI)(nil)
