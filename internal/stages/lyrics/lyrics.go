// Package lyrics is the pipeline's third stage: it extracts lyrics from a
// job's separated vocal stem. The lyrics provider is an external
// collaborator specified only at its interface boundary; this package
// supplies a deterministic stub adapter for wiring and tests.
package lyrics

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

const Name = "lyrics"

// Extractor produces a lyrics transcript file for an audio stem, returning
// the transcript file name written inside outDir.
type Extractor interface {
	Extract(ctx context.Context, inputPath, outDir string) (string, error)
}

// Handler adapts an Extractor into a stage.Handler.
type Handler struct {
	Extractor     Extractor
	PrevStageName string
	Logger        *slog.Logger
}

// New constructs a lyrics extraction stage handler.
func New(extractor Extractor, prevStageName string, logger *slog.Logger) *Handler {
	return &Handler{
		Extractor:     extractor,
		PrevStageName: prevStageName,
		Logger:        logging.NewComponentLogger(logger, "lyrics-stage"),
	}
}

func (h *Handler) Name() string { return Name }

// Prepare verifies the previous stage produced at least one artifact this
// stage can transcribe.
func (h *Handler) Prepare(ctx context.Context, rec *jobrecord.Record, jobDir string) error {
	if _, err := h.inputPath(rec, jobDir); err != nil {
		return joberrors.Wrap(joberrors.ErrStagePreconditionNotMet, "lyrics", "prepare", err.Error(), nil)
	}
	return nil
}

// Execute runs lyrics extraction over the previous stage's artifact.
func (h *Handler) Execute(ctx context.Context, rec *jobrecord.Record, jobDir string) (stage.Result, error) {
	if h.Extractor == nil {
		return stage.Result{}, &joberrors.StageError{Kind: "not_configured", Message: "no lyrics extractor configured"}
	}
	inputPath, err := h.inputPath(rec, jobDir)
	if err != nil {
		return stage.Result{}, &joberrors.StageError{Kind: "invalid_input", Message: err.Error()}
	}

	outDir := storage.StageDir(jobDir, Name)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return stage.Result{}, joberrors.Wrap(joberrors.ErrIO, "lyrics", "execute", "create stage directory", err)
	}

	transcript, err := h.Extractor.Extract(ctx, inputPath, outDir)
	if err != nil {
		return stage.Result{}, &joberrors.StageError{Kind: "extraction_failed", Message: "lyrics extraction failed", Err: err}
	}
	return stage.Result{Artifacts: []string{transcript}}, nil
}

// HealthCheck reports readiness for the lyrics stage.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if h == nil || h.Extractor == nil {
		return stage.Unhealthy(Name, "extractor not configured")
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

// StubExtractor is a deterministic default Extractor: it writes an empty
// transcript, standing in for a real provider until one is wired.
type StubExtractor struct{}

func (StubExtractor) Extract(ctx context.Context, inputPath, outDir string) (string, error) {
	const transcriptName = "transcript.txt"
	if err := os.WriteFile(filepath.Join(outDir, transcriptName), []byte(""), 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return transcriptName, nil
}
