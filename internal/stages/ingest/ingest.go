// Package ingest is the pipeline's first stage: it hands a job's input
// descriptor to an external transcode collaborator and records whatever
// file that collaborator produces as this stage's artifact.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"jobforge/internal/collab/drapto"
	"jobforge/internal/joberrors"
	"jobforge/internal/jobrecord"
	"jobforge/internal/logging"
	"jobforge/internal/stage"
	"jobforge/internal/storage"
)

const Name = "download"

// Input is the ingest-specific shape of a job's opaque input descriptor.
// The core never parses this; only this stage does.
type Input struct {
	SourcePath string `json:"sourcePath"`
}

// Handler adapts a drapto.Client into a stage.Handler.
type Handler struct {
	Transcoder drapto.Client
	Logger     *slog.Logger
}

// New constructs an ingest stage handler.
func New(transcoder drapto.Client, logger *slog.Logger) *Handler {
	return &Handler{Transcoder: transcoder, Logger: logging.NewComponentLogger(logger, "ingest-stage")}
}

func (h *Handler) Name() string { return Name }

// Prepare validates that the job's input descriptor names a source file
// that exists before committing to a transcode.
func (h *Handler) Prepare(ctx context.Context, rec *jobrecord.Record, jobDir string) error {
	input, err := decodeInput(rec)
	if err != nil {
		return joberrors.Wrap(joberrors.ErrStagePreconditionNotMet, "ingest", "prepare", err.Error(), nil)
	}
	if _, err := os.Stat(input.SourcePath); err != nil {
		return joberrors.Wrap(joberrors.ErrStagePreconditionNotMet, "ingest", "prepare", "source file unavailable", err)
	}
	return nil
}

// Execute transcodes the job's source file into the stage's artifact
// directory and reports the produced file as this stage's artifact.
func (h *Handler) Execute(ctx context.Context, rec *jobrecord.Record, jobDir string) (stage.Result, error) {
	input, err := decodeInput(rec)
	if err != nil {
		return stage.Result{}, &joberrors.StageError{Kind: "invalid_input", Message: err.Error()}
	}

	outDir := storage.StageDir(jobDir, Name)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return stage.Result{}, joberrors.Wrap(joberrors.ErrIO, "ingest", "execute", "create stage directory", err)
	}

	log := h.logger()
	outputPath, err := h.Transcoder.Transcode(ctx, input.SourcePath, outDir, func(update drapto.ProgressUpdate) {
		log.Debug("transcode progress",
			logging.Float64("percent", update.Percent),
			logging.String("stage", update.Stage),
			logging.String("message", update.Message),
		)
	})
	if err != nil {
		return stage.Result{}, &joberrors.StageError{
			Kind:     "transcode_failed",
			Message:  "audio transcode failed",
			Provider: "drapto",
			Err:      err,
		}
	}

	return stage.Result{
		Artifacts: []string{filepath.Base(outputPath)},
		Provider:  "drapto",
	}, nil
}

// HealthCheck reports readiness for the ingest stage.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if h == nil || h.Transcoder == nil {
		return stage.Unhealthy(Name, "transcoder not configured")
	}
	return stage.Healthy(Name)
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func decodeInput(rec *jobrecord.Record) (Input, error) {
	var input Input
	if len(rec.Input) == 0 {
		return input, fmt.Errorf("job input is empty")
	}
	if err := json.Unmarshal(rec.Input, &input); err != nil {
		return input, fmt.Errorf("decode job input: %w", err)
	}
	if input.SourcePath == "" {
		return input, fmt.Errorf("job input missing sourcePath")
	}
	return input, nil
}
