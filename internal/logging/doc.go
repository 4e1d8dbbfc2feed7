// Package logging assembles structured slog loggers and formatting helpers
// used across the orchestrator's components.
//
// It owns the configurable console/JSON handlers, centralizes level and
// output plumbing, and exposes context-aware helpers so stage code
// automatically tags log lines with job IDs, stage names, and actors. The
// package also provides a no-op logger for tests and wiring code that
// cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits data with the same shape and routing guarantees as the rest of the
// system.
package logging
