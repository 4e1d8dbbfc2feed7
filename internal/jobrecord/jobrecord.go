// Package jobrecord defines the wire shape of a job's metadata file: the
// single JSON document that, together with its enclosing state directory,
// is the entire durable representation of a job.
package jobrecord

import (
	"encoding/json"
	"fmt"
	"time"

	"jobforge/internal/statemachine"
)

// StageStatus is the fixed set of per-stage progress values.
type StageStatus string

const (
	StageNotStarted StageStatus = "NOT_STARTED"
	StageComplete   StageStatus = "COMPLETE"
	StageFailed     StageStatus = "FAILED"
)

// StageRecord is the mapping stageName -> progress the record keeps for
// every stage that has been attempted. Its presence is the only way to
// determine cross-stage progress; the directory state captures only the
// current stage's position. Extra provider-specific fields round-trip
// through Extra without the core needing to know their shape.
type StageRecord struct {
	Status     StageStatus     `json:"status"`
	Reason     string          `json:"reason,omitempty"`
	Message    string          `json:"message,omitempty"`
	Error      string          `json:"error,omitempty"`
	Provider   string          `json:"provider,omitempty"`
	Artifacts  []string        `json:"artifacts,omitempty"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
	Extra      json.RawMessage `json:"-"`
}

// Record is the durable, in-memory form of a job's metadata file. The wire
// names of State are fixed by statemachine.State and must never change
// independently of it.
type Record struct {
	ID             string                          `json:"id"`
	State          statemachine.State              `json:"state"`
	CreatedAt      time.Time                       `json:"createdAt"`
	UpdatedAt      time.Time                       `json:"updatedAt"`
	OwnerID        string                          `json:"ownerId,omitempty"`
	LeaseExpiresAt *time.Time                      `json:"leaseExpiresAt,omitempty"`
	Input          json.RawMessage                 `json:"input,omitempty"`
	Stages         map[string]StageRecord          `json:"-"`
	Unknown        map[string]json.RawMessage      `json:"-"`
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// New builds the initial record for a freshly created job.
func New(id string, now time.Time, input json.RawMessage) *Record {
	return &Record{
		ID:        id,
		State:     statemachine.Initial,
		CreatedAt: now,
		UpdatedAt: now,
		Input:     input,
		Stages:    make(map[string]StageRecord),
	}
}

// Touch advances UpdatedAt, enforcing the invariant that it is strictly
// increasing on every mutation. If now does not exceed the current
// UpdatedAt, it is nudged forward by one millisecond to preserve strict
// monotonicity without depending on a high-resolution clock.
func (r *Record) Touch(now time.Time) {
	if !now.After(r.UpdatedAt) {
		now = r.UpdatedAt.Add(time.Millisecond)
	}
	r.UpdatedAt = now
}

// SetStage records a stage's outcome, replacing any prior record for the
// same name.
func (r *Record) SetStage(name string, rec StageRecord) {
	if r.Stages == nil {
		r.Stages = make(map[string]StageRecord)
	}
	r.Stages[name] = rec
}

// ClearStage removes a stage's record, used by retryJob to discard the
// failed stage's record before moving the job back to Initial.
func (r *Record) ClearStage(name string) {
	delete(r.Stages, name)
}

// StageState reports the stage's status, defaulting to NOT_STARTED for
// stages with no record yet.
func (r *Record) StageState(name string) StageStatus {
	if rec, ok := r.Stages[name]; ok {
		return rec.Status
	}
	return StageNotStarted
}

// wireRecord is the flattened on-disk shape: known fields plus every stage
// name and unrecognized top-level key as siblings, per spec ("an optional
// top-level object under its label"). MarshalJSON/UnmarshalJSON translate
// between this shape and the structured Record above.
func (r *Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.Unknown)+len(r.Stages)+8)
	for k, v := range r.Unknown {
		out[k] = v
	}

	set := func(key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", key, err)
		}
		out[key] = raw
		return nil
	}
	if err := set("id", r.ID); err != nil {
		return nil, err
	}
	if err := set("state", r.State); err != nil {
		return nil, err
	}
	if err := set("createdAt", r.CreatedAt.UTC().Format(timeLayout)); err != nil {
		return nil, err
	}
	if err := set("updatedAt", r.UpdatedAt.UTC().Format(timeLayout)); err != nil {
		return nil, err
	}
	if r.OwnerID != "" {
		if err := set("ownerId", r.OwnerID); err != nil {
			return nil, err
		}
	}
	if r.LeaseExpiresAt != nil {
		if err := set("leaseExpiresAt", r.LeaseExpiresAt.UTC().Format(timeLayout)); err != nil {
			return nil, err
		}
	}
	if len(r.Input) > 0 {
		out["input"] = r.Input
	}
	for name, rec := range r.Stages {
		merged, err := marshalStage(rec)
		if err != nil {
			return nil, fmt.Errorf("marshal stage %s: %w", name, err)
		}
		out[name] = merged
	}
	return json.Marshal(out)
}

func marshalStage(rec StageRecord) (json.RawMessage, error) {
	base, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if len(rec.Extra) == 0 {
		return base, nil
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(rec.Extra, &merged); err != nil {
		return base, nil
	}
	var known map[string]json.RawMessage
	if err := json.Unmarshal(base, &known); err != nil {
		return nil, err
	}
	for k, v := range known {
		merged[k] = v
	}
	return json.Marshal(merged)
}

var knownTopLevel = map[string]struct{}{
	"id": {}, "state": {}, "createdAt": {}, "updatedAt": {},
	"ownerId": {}, "leaseExpiresAt": {}, "input": {},
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var alias struct {
		ID             string     `json:"id"`
		State          string     `json:"state"`
		CreatedAt      string     `json:"createdAt"`
		UpdatedAt      string     `json:"updatedAt"`
		OwnerID        string     `json:"ownerId,omitempty"`
		LeaseExpiresAt *string    `json:"leaseExpiresAt,omitempty"`
	}
	if err := json.Unmarshal(data, &alias); err != nil {
		return fmt.Errorf("decode job record: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, alias.CreatedAt)
	if err != nil {
		return fmt.Errorf("parse createdAt: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, alias.UpdatedAt)
	if err != nil {
		return fmt.Errorf("parse updatedAt: %w", err)
	}

	r.ID = alias.ID
	r.State = statemachine.State(alias.State)
	r.CreatedAt = createdAt
	r.UpdatedAt = updatedAt
	r.OwnerID = alias.OwnerID
	if alias.LeaseExpiresAt != nil {
		t, err := time.Parse(time.RFC3339Nano, *alias.LeaseExpiresAt)
		if err != nil {
			return fmt.Errorf("parse leaseExpiresAt: %w", err)
		}
		r.LeaseExpiresAt = &t
	}
	if input, ok := raw["input"]; ok {
		r.Input = input
	}

	r.Stages = make(map[string]StageRecord)
	r.Unknown = make(map[string]json.RawMessage)
	for key, value := range raw {
		if _, known := knownTopLevel[key]; known {
			continue
		}
		var stage StageRecord
		if err := json.Unmarshal(value, &stage); err == nil && stage.Status != "" {
			stage.Extra = value
			r.Stages[key] = stage
			continue
		}
		r.Unknown[key] = value
	}
	return nil
}
