package testsupport

import (
	"context"
	"testing"

	"jobforge/internal/config"
	"jobforge/internal/core"
	"jobforge/internal/jobrecord"
	"jobforge/internal/stage"
)

// MustOpenContext wires a core.Context for tests and registers cleanup.
func MustOpenContext(t testing.TB, cfg *config.Config, handlers map[string]stage.Handler) *core.Context {
	t.Helper()

	c, err := core.New(cfg, nil, handlers)
	if err != nil {
		t.Fatalf("core.New: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Close()
	})
	return c
}

// StubHandler is a stage.Handler that always succeeds, producing a single
// named artifact. It never touches the job directory.
type StubHandler struct {
	StageName string
	Artifact  string
}

func (h *StubHandler) Name() string { return h.StageName }

func (h *StubHandler) Prepare(ctx context.Context, rec *jobrecord.Record, jobDir string) error {
	return nil
}

func (h *StubHandler) Execute(ctx context.Context, rec *jobrecord.Record, jobDir string) (stage.Result, error) {
	return stage.Result{Artifacts: []string{h.Artifact}, Provider: "stub"}, nil
}

func (h *StubHandler) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(h.StageName)
}

// FailingHandler is a stage.Handler whose Execute always errors.
type FailingHandler struct {
	StageName string
	Err       error
}

func (h *FailingHandler) Name() string { return h.StageName }

func (h *FailingHandler) Prepare(ctx context.Context, rec *jobrecord.Record, jobDir string) error {
	return nil
}

func (h *FailingHandler) Execute(ctx context.Context, rec *jobrecord.Record, jobDir string) (stage.Result, error) {
	return stage.Result{}, h.Err
}

func (h *FailingHandler) HealthCheck(ctx context.Context) stage.Health {
	return stage.Unhealthy(h.StageName, h.Err.Error())
}
