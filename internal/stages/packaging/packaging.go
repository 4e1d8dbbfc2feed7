// Package packaging is the pipeline's final stage: it bundles every prior
// stage's artifacts for a job into a single packaged file outside the
// job's own directory, at the location the core's getJob/listJobs surface
// documents as the finished session package.
package packaging

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"jobforge/internal/artifacts"
	"jobforge/internal/joberrors"
	"jobforge/internal/jobrecord"
	"jobforge/internal/logging"
	"jobforge/internal/stage"
	"jobforge/internal/storage"
)

const Name = "package"

// Handler packages a job's artifacts into a zip archive under the
// storage layout's packaged-artifacts directory.
type Handler struct {
	Layout *storage.Layout
	Logger *slog.Logger
}

// New constructs a packaging stage handler.
func New(layout *storage.Layout, logger *slog.Logger) *Handler {
	return &Handler{Layout: layout, Logger: logging.NewComponentLogger(logger, "packaging-stage")}
}

func (h *Handler) Name() string { return Name }

// Prepare verifies at least one prior stage produced an artifact to package.
func (h *Handler) Prepare(ctx context.Context, rec *jobrecord.Record, jobDir string) error {
	files, err := artifacts.List(jobDir)
	if err != nil {
		return joberrors.Wrap(joberrors.ErrStagePreconditionNotMet, "packaging", "prepare", "list artifacts", err)
	}
	if len(files) == 0 {
		return joberrors.Wrap(joberrors.ErrStagePreconditionNotMet, "packaging", "prepare", "no artifacts to package", nil)
	}
	return nil
}

// Execute zips every stage artifact directory in the job's folder into a
// single archive at the layout's packaged artifact path for this job.
func (h *Handler) Execute(ctx context.Context, rec *jobrecord.Record, jobDir string) (stage.Result, error) {
	if h.Layout == nil {
		return stage.Result{}, &joberrors.StageError{Kind: "not_configured", Message: "no storage layout configured"}
	}
	byStage, err := artifacts.List(jobDir)
	if err != nil {
		return stage.Result{}, joberrors.Wrap(joberrors.ErrIO, "packaging", "execute", "list artifacts", err)
	}
	if len(byStage) == 0 {
		return stage.Result{}, &joberrors.StageError{Kind: "nothing_to_package", Message: "no artifacts to package"}
	}

	if err := os.MkdirAll(h.Layout.PackagedArtifactsDir(), 0o755); err != nil {
		return stage.Result{}, joberrors.Wrap(joberrors.ErrIO, "packaging", "execute", "create packaged artifacts directory", err)
	}
	archivePath := h.Layout.PackagedArtifactPath(rec.ID)
	if err := writeArchive(archivePath, jobDir, byStage); err != nil {
		return stage.Result{}, joberrors.Wrap(joberrors.ErrIO, "packaging", "execute", "write archive", err)
	}

	return stage.Result{Artifacts: []string{filepath.Base(archivePath)}}, nil
}

// HealthCheck reports readiness for the packaging stage.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if h == nil || h.Layout == nil {
		return stage.Unhealthy(Name, "storage layout not configured")
	}
	return stage.Healthy(Name)
}

func writeArchive(archivePath, jobDir string, byStage map[string][]string) error {
	f, err := os.OpenFile(archivePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for stageName, files := range byStage {
		for _, name := range files {
			if err := addFile(zw, jobDir, stageName, name); err != nil {
				zw.Close()
				return err
			}
		}
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, jobDir, stageName, name string) error {
	src := filepath.Join(jobDir, stageName, name)
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := zw.Create(filepath.ToSlash(filepath.Join(stageName, name)))
	if err != nil {
		return fmt.Errorf("create zip entry %s: %w", src, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s into archive: %w", src, err)
	}
	return nil
}
