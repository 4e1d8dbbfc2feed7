package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"jobforge/internal/collab/drapto"
	"jobforge/internal/joberrors"
	"jobforge/internal/jobrecord"
)

type fakeTranscoder struct {
	outputPath string
	err        error
	updates    []drapto.ProgressUpdate
}

func (f *fakeTranscoder) Transcode(ctx context.Context, inputPath, outputDir string, progress func(drapto.ProgressUpdate)) (string, error) {
	if progress != nil {
		progress(drapto.ProgressUpdate{Percent: 100, Stage: "complete"})
	}
	if f.err != nil {
		return "", f.err
	}
	return f.outputPath, nil
}

func newRecord(t *testing.T, sourcePath string) *jobrecord.Record {
	t.Helper()
	input, err := json.Marshal(Input{SourcePath: sourcePath})
	if err != nil {
		t.Fatalf("marshal input: %v", err)
	}
	return jobrecord.New("job1", time.Now().UTC(), input)
}

func TestPrepareRejectsMissingSourceFile(t *testing.T) {
	h := New(&fakeTranscoder{}, nil)
	rec := newRecord(t, "/nonexistent/source.wav")
	if err := h.Prepare(context.Background(), rec, t.TempDir()); err == nil {
		t.Fatal("expected error for missing source file")
	}
}

func TestPrepareAcceptsExistingSourceFile(t *testing.T) {
	tempDir := t.TempDir()
	source := filepath.Join(tempDir, "source.wav")
	if err := os.WriteFile(source, []byte("data"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	h := New(&fakeTranscoder{}, nil)
	rec := newRecord(t, source)
	if err := h.Prepare(context.Background(), rec, tempDir); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
}

func TestExecuteReturnsArtifactOnSuccess(t *testing.T) {
	jobDir := t.TempDir()
	outputPath := filepath.Join(jobDir, Name, "source.mka")
	h := New(&fakeTranscoder{outputPath: outputPath}, nil)
	rec := newRecord(t, filepath.Join(jobDir, "source.wav"))

	result, err := h.Execute(context.Background(), rec, jobDir)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(result.Artifacts) != 1 || result.Artifacts[0] != "source.mka" {
		t.Fatalf("expected artifact source.mka, got %+v", result.Artifacts)
	}
	if result.Provider != "drapto" {
		t.Fatalf("expected provider drapto, got %q", result.Provider)
	}
}

func TestExecuteClassifiesTranscodeFailure(t *testing.T) {
	jobDir := t.TempDir()
	h := New(&fakeTranscoder{err: errors.New("boom")}, nil)
	rec := newRecord(t, filepath.Join(jobDir, "source.wav"))

	_, err := h.Execute(context.Background(), rec, jobDir)
	if err == nil {
		t.Fatal("expected error")
	}
	var classifier joberrors.Classifier
	if !errors.As(err, &classifier) {
		t.Fatalf("expected classified error, got %v", err)
	}
}

func TestExecuteRejectsInvalidInput(t *testing.T) {
	jobDir := t.TempDir()
	h := New(&fakeTranscoder{}, nil)
	rec := jobrecord.New("job1", time.Now().UTC(), nil)

	_, err := h.Execute(context.Background(), rec, jobDir)
	if err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestHealthCheckReportsUnconfigured(t *testing.T) {
	h := &Handler{}
	health := h.HealthCheck(context.Background())
	if health.Ready {
		t.Fatal("expected unconfigured handler to be unhealthy")
	}
}
