// Package core wires the storage layout, metadata store, atomic mover,
// lease reclaimer, derived index, dispatcher, and notifier into a single
// value the CLI and daemon binaries construct once at startup and share.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"jobforge/internal/artifacts"
	"jobforge/internal/config"
	"jobforge/internal/dispatcher"
	"jobforge/internal/index"
	"jobforge/internal/jobid"
	"jobforge/internal/joberrors"
	"jobforge/internal/jobrecord"
	"jobforge/internal/jobstore"
	"jobforge/internal/lease"
	"jobforge/internal/mover"
	"jobforge/internal/notifications"
	"jobforge/internal/stage"
	"jobforge/internal/stageworker"
	"jobforge/internal/statemachine"
	"jobforge/internal/storage"
)

// Context bundles every wired dependency the public operations below need.
type Context struct {
	Config     *config.Config
	Logger     *slog.Logger
	Layout     *storage.Layout
	Store      *jobstore.Store
	Mover      *mover.Mover
	Index      *index.Index
	Notifier   notifications.Service
	Dispatcher *dispatcher.Dispatcher
	Reclaimer  *lease.Reclaimer
}

// New wires a Context from a loaded config and one stage.Handler per
// configured pipeline stage, keyed by stage name. It probes the storage
// root for single-filesystem atomic rename, opens the derived index, and
// builds the dispatcher's per-stage worker pool, but does not start it —
// call Dispatcher.Start and Reclaimer.StartLoop once the caller is ready.
func New(cfg *config.Config, logger *slog.Logger, handlers map[string]stage.Handler) (*Context, error) {
	if cfg == nil {
		return nil, fmt.Errorf("core: config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	layout := storage.New(cfg.Storage.Root)
	if err := layout.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure storage directories: %w", err)
	}
	if err := mover.ProbeSingleFilesystem(layout); err != nil {
		return nil, fmt.Errorf("probe storage root: %w", err)
	}

	store := jobstore.New(layout)
	mv := mover.New(layout, store, time.Now)
	idx, err := index.Open(cfg.Index.Path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	notifier := notifications.NewService(cfg)
	reclaimer := lease.New(store, mv, logger, time.Duration(cfg.Reclaim.ScanIntervalSeconds)*time.Second)
	reclaimer.Notifier = notifier

	stages := make([]dispatcher.StageConfig, 0, len(cfg.Pipeline.Stages))
	prevStageName := ""
	for i, sc := range cfg.Pipeline.Stages {
		handler, ok := handlers[sc.Name]
		if !ok {
			return nil, fmt.Errorf("core: no handler registered for stage %q", sc.Name)
		}
		worker := &stageworker.Worker{
			StageName:     sc.Name,
			StageIndex:    i + 1,
			Handler:       handler,
			Store:         store,
			Mover:         mv,
			Layout:        layout,
			Logger:        logger,
			LeaseDuration: time.Duration(sc.LeaseSeconds) * time.Second,
			PrevStageName: prevStageName,
		}
		stages = append(stages, dispatcher.StageConfig{
			Name:        sc.Name,
			Worker:      worker,
			Concurrency: sc.Concurrency,
		})
		prevStageName = sc.Name
	}
	disp := dispatcher.New(store, logger, stages)
	disp.Notifier = notifier

	return &Context{
		Config:     cfg,
		Logger:     logger,
		Layout:     layout,
		Store:      store,
		Mover:      mv,
		Index:      idx,
		Notifier:   notifier,
		Dispatcher: disp,
		Reclaimer:  reclaimer,
	}, nil
}

// Close releases resources held open by the wired context (currently only
// the derived index's database handle).
func (c *Context) Close() error {
	if c.Index != nil {
		return c.Index.Close()
	}
	return nil
}

// CreateJob writes a new job's metadata into the Initial state directory
// and enqueues it for the first configured pipeline stage.
func (c *Context) CreateJob(ctx context.Context, input json.RawMessage) (*jobrecord.Record, error) {
	id := jobid.New()
	now := time.Now().UTC()
	rec := jobrecord.New(id, now, input)

	jobDir := c.Layout.JobDir(statemachine.Initial, id)
	if err := os.MkdirAll(storage.LogDir(jobDir), 0o755); err != nil {
		return nil, joberrors.Wrap(joberrors.ErrIO, "core", "createJob", "create job directory", err)
	}
	if err := c.Store.WriteMetadata(jobDir, rec); err != nil {
		return nil, err
	}

	if err := c.Index.Upsert(ctx, jobstore.Enumeration{JobID: id, State: statemachine.Initial, Metadata: rec}); err != nil {
		c.Logger.Warn("index upsert failed after job creation", slog.String("jobId", id), slog.Any("error", err))
	}
	if err := c.Notifier.Publish(ctx, notifications.EventJobCreated, notifications.Payload{"jobId": id}); err != nil {
		c.Logger.Warn("job created notification failed", slog.String("jobId", id), slog.Any("error", err))
	}
	if len(c.Config.Pipeline.Stages) > 0 {
		if err := c.Dispatcher.Enqueue(ctx, c.Config.Pipeline.Stages[0].Name, id); err != nil {
			c.Logger.Warn("enqueue first stage failed", slog.String("jobId", id), slog.Any("error", err))
		}
	}
	return rec, nil
}

// GetJob locates a job and returns its current state and metadata.
func (c *Context) GetJob(jobID string) (statemachine.State, *jobrecord.Record, error) {
	state, jobDir, err := c.Store.Locate(jobID)
	if err != nil {
		return "", nil, err
	}
	rec, err := c.Store.ReadMetadata(jobDir)
	if err != nil {
		return "", nil, err
	}
	return state, rec, nil
}

// ListJobs enumerates every job, optionally filtered to a single state.
func (c *Context) ListJobs(state statemachine.State) ([]jobstore.Enumeration, error) {
	all, err := c.Store.Enumerate()
	if err != nil {
		return nil, err
	}
	if state == "" {
		return all, nil
	}
	out := make([]jobstore.Enumeration, 0, len(all))
	for _, e := range all {
		if e.State == state {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetJobLog returns the contents of a job's append-only log file.
func (c *Context) GetJobLog(jobID string) (string, error) {
	_, jobDir, err := c.Store.Locate(jobID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(storage.LogPath(jobDir))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", joberrors.Wrap(joberrors.ErrIO, "core", "getJobLog", "read log", err)
	}
	return string(data), nil
}

// GetJobArtifacts enumerates every stage's artifact files for a job.
func (c *Context) GetJobArtifacts(jobID string) (map[string][]string, error) {
	_, jobDir, err := c.Store.Locate(jobID)
	if err != nil {
		return nil, err
	}
	return artifacts.List(jobDir)
}

// GetHealth runs every configured stage's HealthCheck and returns the
// results in pipeline order.
func (c *Context) GetHealth(ctx context.Context) []stage.Health {
	stages := c.Dispatcher.Stages()
	out := make([]stage.Health, 0, len(stages))
	for _, sc := range stages {
		out = append(out, sc.Worker.Handler.HealthCheck(ctx))
	}
	return out
}

// RetryJob moves a job in the Failed state back to Initial under User
// authorization so the pipeline reprocesses it from the first stage. It
// clears the failed stage's record so the retried run starts that stage
// fresh, and appends reasonText to the job's log.
func (c *Context) RetryJob(ctx context.Context, jobID string, reasonText string) (*jobrecord.Record, error) {
	rec, err := c.Mover.MoveJob(jobID, statemachine.Failed, statemachine.Initial, statemachine.User)
	if err != nil {
		return nil, err
	}

	jobDir := c.Layout.JobDir(statemachine.Initial, jobID)
	for name, sr := range rec.Stages {
		if sr.Status == jobrecord.StageFailed {
			rec.ClearStage(name)
		}
	}
	if err := c.Store.WriteMetadata(jobDir, rec); err != nil {
		return nil, err
	}

	reasonText = strings.TrimSpace(reasonText)
	message := "user retry"
	if reasonText != "" {
		message = fmt.Sprintf("user retry: %s", reasonText)
	}
	if err := c.Store.AppendLog(jobDir, time.Now().UTC(), message); err != nil {
		c.Logger.Warn("append retry log failed", slog.String("jobId", jobID), slog.Any("error", err))
	}

	firstStage := ""
	if len(c.Config.Pipeline.Stages) > 0 {
		firstStage = c.Config.Pipeline.Stages[0].Name
	}
	if err := c.Notifier.Publish(ctx, notifications.EventJobRetried, notifications.Payload{"jobId": jobID, "stage": firstStage, "reason": reasonText}); err != nil {
		c.Logger.Warn("job retried notification failed", slog.String("jobId", jobID), slog.Any("error", err))
	}
	if firstStage != "" {
		if err := c.Dispatcher.Enqueue(ctx, firstStage, jobID); err != nil {
			c.Logger.Warn("enqueue after retry failed", slog.String("jobId", jobID), slog.Any("error", err))
		}
	}
	return rec, nil
}
