// Package stage describes the contract a pipeline stage implements, and the
// health-reporting shape shared by every stage adapter.
package stage

import (
	"context"

	"jobforge/internal/jobrecord"
)

// Result is what Execute reports back to the stage worker skeleton: which
// artifacts the stage produced, and any provider that did the work.
type Result struct {
	Artifacts []string
	Provider  string
}

// Handler describes the contract the stage worker skeleton needs from each
// pipeline stage. Prepare runs after the job has moved into Running and
// before Execute, and may reject the job outright (stage precondition not
// met), which moves it to Failed; Execute
// performs the stage's actual work and must tolerate being invoked when the
// job is already past this stage, skipping cleanly rather than duplicating
// completed work.
type Handler interface {
	Name() string
	Prepare(ctx context.Context, rec *jobrecord.Record, jobDir string) error
	Execute(ctx context.Context, rec *jobrecord.Record, jobDir string) (Result, error)
	HealthCheck(ctx context.Context) Health
}
