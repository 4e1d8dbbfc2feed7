// Package dispatcher implements the Queue Dispatcher: one worker pool per
// pipeline stage, fed by in-memory queues, auto-chaining a job onto the
// next stage's queue when the current stage completes. The dispatcher's
// correctness never depends on queue durability — filesystem state alone
// is sufficient to reconstruct the work list on a cold start.
package dispatcher

import (
	"context"
	"log/slog"
	"sync"

	"jobforge/internal/jobrecord"
	"jobforge/internal/jobstore"
	"jobforge/internal/notifications"
	"jobforge/internal/statemachine"
	"jobforge/internal/stageworker"
)

// StageConfig describes one pipeline stage's dispatcher wiring.
type StageConfig struct {
	Name        string
	Worker      *stageworker.Worker
	Concurrency int
}

// Dispatcher owns one bounded queue and worker pool per configured stage.
type Dispatcher struct {
	store    *jobstore.Store
	logger   *slog.Logger
	stages   []StageConfig
	queues   map[string]chan string
	Notifier notifications.Service

	mu      sync.Mutex
	wg      sync.WaitGroup
	running bool
}

// New constructs a Dispatcher over the given ordered pipeline stages. The
// order of stages determines onCompleted's chaining: a job leaving stage i
// is enqueued on stage i+1, if any.
func New(store *jobstore.Store, logger *slog.Logger, stages []StageConfig) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:    store,
		logger:   logger,
		stages:   stages,
		queues:   make(map[string]chan string),
		Notifier: noopNotifier{},
	}
}

// Stages returns the dispatcher's configured stages in pipeline order.
func (d *Dispatcher) Stages() []StageConfig {
	return d.stages
}

type noopNotifier struct{}

func (noopNotifier) Publish(context.Context, notifications.Event, notifications.Payload) error {
	return nil
}

// Enqueue pushes jobID onto the named stage's queue. If the queue is full,
// it blocks until ctx is cancelled or a slot frees, without dropping work.
// If the stage has no queue (an unknown name, or Start has not run yet), it
// returns nil without enqueuing anything.
func (d *Dispatcher) Enqueue(ctx context.Context, stageName, jobID string) error {
	d.mu.Lock()
	q, ok := d.queues[stageName]
	d.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case q <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches each stage's worker pool. Cancelling ctx stops workers from
// taking new queue items; a worker finishes the ProcessOne call it is in,
// whose handler receives the same ctx. No per-stage timeout is applied to
// in-flight work.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true

	// Every stage's queue is created before any worker goroutine launches,
	// so a job completing stage 0 and chaining onto stage 1 via onCompleted
	// never races Start still building stage 1's queue.
	queues := make(map[string]chan string, len(d.stages))
	for _, sc := range d.stages {
		q := make(chan string, 256)
		d.queues[sc.Name] = q
		queues[sc.Name] = q
	}
	d.mu.Unlock()

	for _, sc := range d.stages {
		concurrency := sc.Concurrency
		if concurrency < 1 {
			concurrency = 1
		}
		q := queues[sc.Name]
		for i := 0; i < concurrency; i++ {
			d.wg.Add(1)
			go d.runWorker(ctx, sc, q)
		}
	}
}

// Wait blocks until every worker goroutine has exited, which happens once
// ctx passed to Start is cancelled and each worker has finished its current
// item. Items still waiting in the queues are not processed.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) runWorker(ctx context.Context, sc StageConfig, q chan string) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-q:
			d.process(ctx, sc, jobID)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, sc StageConfig, jobID string) {
	outcome, err := sc.Worker.ProcessOne(ctx, jobID)
	if err != nil {
		d.logger.Error("stage processing error", slog.String("stage", sc.Name), slog.String("jobId", jobID), slog.Any("error", err))
		return
	}
	switch outcome {
	case stageworker.OutcomeCompleted:
		if pubErr := d.notifier().Publish(ctx, notifications.EventStageCompleted, notifications.Payload{"jobId": jobID, "stage": sc.Name}); pubErr != nil {
			d.logger.Warn("stage completed notification failed", slog.String("stage", sc.Name), slog.String("jobId", jobID), slog.Any("error", pubErr))
		}
		d.onCompleted(ctx, sc.Name, jobID)
	case stageworker.OutcomeFailed:
		d.logger.Info("stage failed", slog.String("stage", sc.Name), slog.String("jobId", jobID))
		if pubErr := d.notifier().Publish(ctx, notifications.EventStageFailed, notifications.Payload{"jobId": jobID, "stage": sc.Name}); pubErr != nil {
			d.logger.Warn("stage failed notification failed", slog.String("stage", sc.Name), slog.String("jobId", jobID), slog.Any("error", pubErr))
		}
	case stageworker.OutcomeSkipped:
		// Nothing to do: either not our turn yet, or already past this stage.
	}
}

func (d *Dispatcher) notifier() notifications.Service {
	if d.Notifier == nil {
		return noopNotifier{}
	}
	return d.Notifier
}

func (d *Dispatcher) onCompleted(ctx context.Context, stageName, jobID string) {
	idx := d.stageIndex(stageName)
	if idx < 0 || idx+1 >= len(d.stages) {
		return // final stage: nothing left to chain onto.
	}
	next := d.stages[idx+1]
	if err := d.Enqueue(ctx, next.Name, jobID); err != nil {
		d.logger.Warn("failed to enqueue next stage", slog.String("stage", next.Name), slog.String("jobId", jobID), slog.Any("error", err))
	}
}

func (d *Dispatcher) stageIndex(name string) int {
	for i, sc := range d.stages {
		if sc.Name == name {
			return i
		}
	}
	return -1
}

// ColdStartReconcile applies the rule from the dispatcher's correctness
// argument: every job in Initial belongs on stage 1's queue, and every job
// in Completed whose stage record shows stage K done and stage K+1 not
// started belongs on stage K+1's queue. It is safe to call on every
// startup regardless of whether the previous run shut down cleanly.
func (d *Dispatcher) ColdStartReconcile(ctx context.Context) error {
	if len(d.stages) == 0 {
		return nil
	}

	initial, err := d.store.ListByState(statemachine.Initial)
	if err != nil {
		return err
	}
	for _, jobID := range initial {
		if err := d.Enqueue(ctx, d.stages[0].Name, jobID); err != nil {
			return err
		}
	}

	completed, err := d.store.ListByState(statemachine.Completed)
	if err != nil {
		return err
	}
	for _, jobID := range completed {
		_, jobDir, err := d.store.Locate(jobID)
		if err != nil {
			continue
		}
		rec, err := d.store.ReadMetadata(jobDir)
		if err != nil {
			continue
		}
		for i, sc := range d.stages {
			if i == 0 {
				continue
			}
			prev := d.stages[i-1]
			if rec.StageState(prev.Name) == jobrecord.StageComplete && rec.StageState(sc.Name) != jobrecord.StageComplete {
				if err := d.Enqueue(ctx, sc.Name, jobID); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}
