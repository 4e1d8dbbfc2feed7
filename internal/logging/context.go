package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldJobID is the standardized structured logging key for job identifiers.
	FieldJobID = "job_id"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldActor is the standardized structured logging key for the acting identity.
	FieldActor = "actor"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
	// FieldEventType names the kind of event a log line reports, for downstream filtering.
	FieldEventType = "event_type"
	// FieldErrorHint carries an operator-facing suggestion for resolving a warning or error.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldDecisionType names the kind of decision a log line records.
	FieldDecisionType = "decision_type"
)

type ctxKey int

const (
	jobIDKey ctxKey = iota
	stageKey
	actorKey
	correlationIDKey
)

// WithJobID returns a context tagged with a job ID for ContextFields to pick up.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// WithStage returns a context tagged with a pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// WithActor returns a context tagged with an acting identity.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// WithCorrelationID returns a context tagged with a correlation identifier.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if v, ok := ctx.Value(jobIDKey).(string); ok && v != "" {
		fields = append(fields, slog.String(FieldJobID, v))
	}
	if v, ok := ctx.Value(stageKey).(string); ok && v != "" {
		fields = append(fields, slog.String(FieldStage, v))
	}
	if v, ok := ctx.Value(actorKey).(string); ok && v != "" {
		fields = append(fields, slog.String(FieldActor, v))
	}
	if v, ok := ctx.Value(correlationIDKey).(string); ok && v != "" {
		fields = append(fields, slog.String(FieldCorrelationID, v))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
