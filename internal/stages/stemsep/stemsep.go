// Package stemsep is the pipeline's second stage: it separates a job's
// ingested audio into stems. The separation model itself is an external
// collaborator specified only at its interface boundary; this package
// supplies a deterministic stub adapter for wiring and tests.
package stemsep

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"jobforge/internal/joberrors"
	"jobforge/internal/jobrecord"
	"jobforge/internal/logging"
	"jobforge/internal/stage"
	"jobforge/internal/storage"
)

const Name = "separation"

// Separator splits an audio file into named stem files inside outDir,
// returning the stem file names written.
type Separator interface {
	Separate(ctx context.Context, inputPath, outDir string) ([]string, error)
}

// Handler adapts a Separator into a stage.Handler.
type Handler struct {
	Separator     Separator
	PrevStageName string
	Logger        *slog.Logger
}

// New constructs a stem-separation stage handler.
func New(separator Separator, prevStageName string, logger *slog.Logger) *Handler {
	return &Handler{
		Separator:     separator,
		PrevStageName: prevStageName,
		Logger:        logging.NewComponentLogger(logger, "stemsep-stage"),
	}
}

func (h *Handler) Name() string { return Name }

// Prepare verifies the previous stage produced at least one artifact this
// stage can consume.
func (h *Handler) Prepare(ctx context.Context, rec *jobrecord.Record, jobDir string) error {
	if _, err := h.inputPath(rec, jobDir); err != nil {
		return joberrors.Wrap(joberrors.ErrStagePreconditionNotMet, "stemsep", "prepare", err.Error(), nil)
	}
	return nil
}

// Execute runs stem separation over the previous stage's artifact.
func (h *Handler) Execute(ctx context.Context, rec *jobrecord.Record, jobDir string) (stage.Result, error) {
	if h.Separator == nil {
		return stage.Result{}, &joberrors.StageError{Kind: "not_configured", Message: "no separator configured"}
	}
	inputPath, err := h.inputPath(rec, jobDir)
	if err != nil {
		return stage.Result{}, &joberrors.StageError{Kind: "invalid_input", Message: err.Error()}
	}

	outDir := storage.StageDir(jobDir, Name)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return stage.Result{}, joberrors.Wrap(joberrors.ErrIO, "stemsep", "execute", "create stage directory", err)
	}

	stems, err := h.Separator.Separate(ctx, inputPath, outDir)
	if err != nil {
		return stage.Result{}, &joberrors.StageError{Kind: "separation_failed", Message: "stem separation failed", Err: err}
	}
	return stage.Result{Artifacts: stems}, nil
}

// HealthCheck reports readiness for the stem separation stage.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if h == nil || h.Separator == nil {
		return stage.Unhealthy(Name, "separator not configured")
	}
	return stage.Healthy(Name)
}

func (h *Handler) inputPath(rec *jobrecord.Record, jobDir string) (string, error) {
	prev, ok := rec.Stages[h.PrevStageName]
	if !ok || len(prev.Artifacts) == 0 {
		return "", fmt.Errorf("no artifact from stage %q", h.PrevStageName)
	}
	return filepath.Join(jobDir, h.PrevStageName, prev.Artifacts[0]), nil
}

// StubSeparator is a deterministic default Separator: it copies the input
// file into a single "mix.stem" artifact, standing in for a real model
// until one is wired.
type StubSeparator struct{}

func (StubSeparator) Separate(ctx context.Context, inputPath, outDir string) ([]string, error) {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	const stemName = "mix.stem"
	if err := os.WriteFile(filepath.Join(outDir, stemName), data, 0o644); err != nil {
		return nil, fmt.Errorf("write stem: %w", err)
	}
	return []string{stemName}, nil
}
