// Package daemon coordinates the dispatcher and lease reclaimer as a single
// long-running background process, enforcing that only one orchestrand
// instance runs against a given storage root at a time.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"jobforge/internal/core"
	"jobforge/internal/logging"
)

// Daemon owns the wired core.Context's dispatcher and reclaimer lifecycle
// and holds an advisory file lock for the lifetime of the process.
type Daemon struct {
	core   *core.Context
	logger *slog.Logger

	lockPath      string
	lock          *flock.Flock
	activeLogPath string

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a Daemon over an already-wired core.Context. activeLogPath
// is the log file the process currently holds open (returned by
// logging.NewFromConfig); it is excluded from log retention pruning. Pass
// "" if the caller has no file-backed log to protect.
func New(c *core.Context, logger *slog.Logger, activeLogPath string) (*Daemon, error) {
	if c == nil {
		return nil, errors.New("daemon requires a wired core.Context")
	}
	if logger == nil {
		logger = slog.Default()
	}
	lockPath := c.Config.Daemon.LockPath
	return &Daemon{
		core:          c,
		logger:        logger,
		lockPath:      lockPath,
		lock:          flock.New(lockPath),
		activeLogPath: activeLogPath,
	}, nil
}

// Start acquires the single-instance lock, rebuilds the derived index,
// reconciles queue state against the filesystem, and launches the dispatcher's worker pools and the lease
// reclaimer's scan loop. It returns once both are running; it does not
// block for the daemon's lifetime — callers wait on ctx themselves.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another orchestrand instance is already running against %s", d.core.Layout.Root())
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if _, err := d.core.Index.Rebuild(runCtx, d.core.Store); err != nil {
		d.logger.Warn("index rebuild failed", slog.Any("error", err))
	}

	d.core.Dispatcher.Start(runCtx)
	if err := d.core.Dispatcher.ColdStartReconcile(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		d.cancel = nil
		return fmt.Errorf("cold start reconcile: %w", err)
	}
	go d.core.Reclaimer.StartLoop(runCtx)
	go d.periodicReconcile(runCtx)

	d.cleanupOldLogs()

	d.running.Store(true)
	d.logger.Info("daemon started", slog.String("storageRoot", d.core.Layout.Root()), slog.String("lock", d.lockPath))
	return nil
}

// periodicReconcile re-runs ColdStartReconcile on the reclaim cadence so
// jobs created by a separate orchestractl process (which writes directly
// to the Initial directory without a live queue handle into this process)
// are eventually picked up without requiring a daemon restart.
func (d *Daemon) periodicReconcile(ctx context.Context) {
	interval := d.core.Reclaimer.Interval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.core.Dispatcher.ColdStartReconcile(ctx); err != nil {
				d.logger.Warn("periodic reconcile failed", slog.Any("error", err))
			}
			d.cleanupOldLogs()
		}
	}
}

// cleanupOldLogs prunes date-stamped log files older than the configured
// retention window, leaving the file this process currently has open alone.
func (d *Daemon) cleanupOldLogs() {
	logging.CleanupOldLogs(d.logger, d.core.Config.Logging.RetentionDays,
		logging.LogRetentionTargets(d.core.Config, d.activeLogPath)...)
}

// Stop cancels background work and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", slog.Any("error", err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and releases resources held by the wired context.
func (d *Daemon) Close() error {
	d.Stop()
	return d.core.Close()
}

// Running reports whether Start has succeeded and Stop has not yet run.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LockPath returns the path to the daemon's single-instance lock file.
func (d *Daemon) LockPath() string {
	return d.lockPath
}
