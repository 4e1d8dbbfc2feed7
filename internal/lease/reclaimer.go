// Package lease implements the periodic Reclaimer: a background loop that
// scans Claimed and Running for jobs whose lease has expired or is absent
// and returns them to Initial, guaranteeing a job is never lost even after
// the worker that held it crashes.
package lease

import (
	"context"
	"log/slog"
	"time"

	"jobforge/internal/jobstore"
	"jobforge/internal/mover"
	"jobforge/internal/notifications"
	"jobforge/internal/statemachine"
)

// Reclaimer periodically scans for abandoned jobs and reclaims them.
type Reclaimer struct {
	store    *jobstore.Store
	mover    *mover.Mover
	logger   *slog.Logger
	interval time.Duration
	Notifier notifications.Service
}

// New constructs a Reclaimer that scans every interval.
func New(store *jobstore.Store, m *mover.Mover, logger *slog.Logger, interval time.Duration) *Reclaimer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reclaimer{store: store, mover: m, logger: logger, interval: interval, Notifier: noopNotifier{}}
}

type noopNotifier struct{}

func (noopNotifier) Publish(context.Context, notifications.Event, notifications.Payload) error {
	return nil
}

// Interval returns the configured scan cadence.
func (r *Reclaimer) Interval() time.Duration {
	return r.interval
}

func (r *Reclaimer) notifier() notifications.Service {
	if r.Notifier == nil {
		return noopNotifier{}
	}
	return r.Notifier
}

// ScanOnce reclaims every reclaimable job in Claimed and Running once,
// returning the ids it actually moved. It is exported so callers (tests,
// the daemon's startup reconciliation) can trigger a scan outside the loop.
func (r *Reclaimer) ScanOnce(ctx context.Context) ([]string, error) {
	var reclaimed []string
	for _, state := range []statemachine.State{statemachine.Claimed, statemachine.Running} {
		ids, err := r.store.ListByState(state)
		if err != nil {
			return reclaimed, err
		}
		for _, id := range ids {
			select {
			case <-ctx.Done():
				return reclaimed, ctx.Err()
			default:
			}
			rec, err := r.mover.Reclaim(id)
			if err != nil {
				r.logger.Warn("reclaim failed", slog.String("jobId", id), slog.Any("error", err))
				continue
			}
			if rec != nil {
				r.logger.Info("reclaimed job", slog.String("jobId", id), slog.String("from", string(state)))
				if pubErr := r.notifier().Publish(ctx, notifications.EventJobReclaimed, notifications.Payload{"jobId": id}); pubErr != nil {
					r.logger.Warn("reclaim notification failed", slog.String("jobId", id), slog.Any("error", pubErr))
				}
				reclaimed = append(reclaimed, id)
			}
		}
	}
	return reclaimed, nil
}

// StartLoop runs ScanOnce every interval until ctx is cancelled. Callers
// typically run this in its own goroutine from the daemon's Start.
func (r *Reclaimer) StartLoop(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ScanOnce(ctx); err != nil {
				r.logger.Warn("reclaim scan failed", slog.Any("error", err))
			}
		}
	}
}
