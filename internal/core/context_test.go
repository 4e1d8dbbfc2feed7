package core_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"jobforge/internal/config"
	"jobforge/internal/core"
	"jobforge/internal/jobrecord"
	"jobforge/internal/stage"
	"jobforge/internal/statemachine"
)

type stubHandler struct {
	name     string
	artifact string
}

func (h *stubHandler) Name() string { return h.name }

func (h *stubHandler) Prepare(ctx context.Context, rec *jobrecord.Record, jobDir string) error {
	return nil
}

func (h *stubHandler) Execute(ctx context.Context, rec *jobrecord.Record, jobDir string) (stage.Result, error) {
	dir := filepath.Join(jobDir, h.name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return stage.Result{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, h.artifact), []byte(h.name), 0o644); err != nil {
		return stage.Result{}, err
	}
	return stage.Result{Artifacts: []string{h.artifact}, Provider: "stub"}, nil
}

func (h *stubHandler) HealthCheck(ctx context.Context) stage.Health { return stage.Healthy(h.name) }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	root := t.TempDir()
	cfg.Storage.Root = root
	cfg.Index.Path = filepath.Join(root, "index.sqlite")
	cfg.Pipeline.Stages = []config.StageConfig{
		{Name: "download", Concurrency: 1, LeaseSeconds: 60, MaxRetries: 1, BackoffSeconds: 1, TimeoutSeconds: 60},
		{Name: "separation", Concurrency: 1, LeaseSeconds: 60, MaxRetries: 1, BackoffSeconds: 1, TimeoutSeconds: 60},
	}
	return &cfg
}

func testHandlers() map[string]stage.Handler {
	return map[string]stage.Handler{
		"download":   &stubHandler{name: "download", artifact: "raw.wav"},
		"separation": &stubHandler{name: "separation", artifact: "vocals.wav"},
	}
}

func TestNewFailsWithoutHandlerForStage(t *testing.T) {
	cfg := testConfig(t)
	handlers := map[string]stage.Handler{"download": &stubHandler{name: "download", artifact: "raw.wav"}}
	if _, err := core.New(cfg, nil, handlers); err == nil {
		t.Fatalf("expected error for missing separation handler")
	}
}

func TestCreateJobAndProcessThroughPipeline(t *testing.T) {
	cfg := testConfig(t)
	c, err := core.New(cfg, nil, testHandlers())
	if err != nil {
		t.Fatalf("core.New: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Dispatcher.Start(ctx)

	rec, err := c.CreateJob(ctx, json.RawMessage(`{"source":"upload.wav"}`))
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var state statemachine.State
	var got *jobrecord.Record
	for time.Now().Before(deadline) {
		state, got, err = c.GetJob(rec.ID)
		if err == nil && state == statemachine.Completed && got.StageState("separation") == jobrecord.StageComplete {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got == nil || got.StageState("separation") != jobrecord.StageComplete {
		t.Fatalf("expected job to complete both stages, last state=%v rec=%+v err=%v", state, got, err)
	}

	artifacts, err := c.GetJobArtifacts(rec.ID)
	if err != nil {
		t.Fatalf("GetJobArtifacts: %v", err)
	}
	if len(artifacts["download"]) == 0 || len(artifacts["separation"]) == 0 {
		t.Fatalf("expected artifacts recorded for both stages, got %+v", artifacts)
	}
}

func TestListJobsFiltersByState(t *testing.T) {
	cfg := testConfig(t)
	c, err := core.New(cfg, nil, testHandlers())
	if err != nil {
		t.Fatalf("core.New: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if _, err := c.CreateJob(ctx, nil); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	all, err := c.ListJobs("")
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 job, got %d", len(all))
	}

	initialOnly, err := c.ListJobs(statemachine.Initial)
	if err != nil {
		t.Fatalf("ListJobs(Initial): %v", err)
	}
	if len(initialOnly) != 1 {
		t.Fatalf("expected 1 job in Initial, got %d", len(initialOnly))
	}

	none, err := c.ListJobs(statemachine.Failed)
	if err != nil {
		t.Fatalf("ListJobs(Failed): %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected 0 jobs in Failed, got %d", len(none))
	}
}

func TestRetryJobMovesFailedBackToInitial(t *testing.T) {
	cfg := testConfig(t)
	c, err := core.New(cfg, nil, testHandlers())
	if err != nil {
		t.Fatalf("core.New: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	rec, err := c.CreateJob(ctx, nil)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	if _, err := c.Mover.MoveJob(rec.ID, statemachine.Initial, statemachine.Claimed, statemachine.System); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := c.Mover.MoveJob(rec.ID, statemachine.Claimed, statemachine.Running, statemachine.NewStageWorker(1)); err != nil {
		t.Fatalf("start: %v", err)
	}

	runningDir := c.Layout.JobDir(statemachine.Running, rec.ID)
	running, err := c.Store.ReadMetadata(runningDir)
	if err != nil {
		t.Fatalf("ReadMetadata(running): %v", err)
	}
	running.SetStage("download", jobrecord.StageRecord{Status: jobrecord.StageFailed, Error: "boom"})
	if err := c.Store.WriteMetadata(runningDir, running); err != nil {
		t.Fatalf("WriteMetadata(running): %v", err)
	}

	if _, err := c.Mover.MoveJob(rec.ID, statemachine.Running, statemachine.Failed, statemachine.NewStageWorker(1)); err != nil {
		t.Fatalf("fail: %v", err)
	}

	if _, err := c.RetryJob(ctx, rec.ID, "operator requested reprocessing"); err != nil {
		t.Fatalf("RetryJob: %v", err)
	}

	state, retried, err := c.GetJob(rec.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if state != statemachine.Initial {
		t.Fatalf("expected job back in Initial after retry, got %v", state)
	}
	if retried.StageState("download") != jobrecord.StageNotStarted {
		t.Fatalf("expected failed stage record cleared after retry, got %v", retried.StageState("download"))
	}

	log, err := c.GetJobLog(rec.ID)
	if err != nil {
		t.Fatalf("GetJobLog: %v", err)
	}
	if !strings.Contains(log, "operator requested reprocessing") {
		t.Fatalf("expected retry log to contain the reason, got: %s", log)
	}
}

func TestGetJobLogReturnsEmptyStringWhenNoLogWritten(t *testing.T) {
	cfg := testConfig(t)
	c, err := core.New(cfg, nil, testHandlers())
	if err != nil {
		t.Fatalf("core.New: %v", err)
	}
	defer c.Close()

	rec, err := c.CreateJob(context.Background(), nil)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	logText, err := c.GetJobLog(rec.ID)
	if err != nil {
		t.Fatalf("GetJobLog: %v", err)
	}
	if logText != "" {
		t.Fatalf("expected empty log, got %q", logText)
	}
}
