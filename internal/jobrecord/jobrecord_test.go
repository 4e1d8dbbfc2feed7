package jobrecord

import (
	"encoding/json"
	"testing"
	"time"

	"jobforge/internal/statemachine"
)

func TestNewRecordRoundTrips(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := New("job123", now, json.RawMessage(`{"ref":"demo"}`))
	rec.SetStage("download", StageRecord{Status: StageComplete, Provider: "drapto"})

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Record
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != "job123" {
		t.Fatalf("expected id job123, got %q", got.ID)
	}
	if got.State != statemachine.Initial {
		t.Fatalf("expected state NEW, got %q", got.State)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("expected createdAt %v, got %v", now, got.CreatedAt)
	}
	if got.StageState("download") != StageComplete {
		t.Fatalf("expected download stage complete, got %v", got.StageState("download"))
	}
	if got.StageState("lyrics") != StageNotStarted {
		t.Fatalf("expected lyrics stage not started, got %v", got.StageState("lyrics"))
	}
}

func TestUnmarshalPreservesUnknownFields(t *testing.T) {
	raw := `{
		"id": "job1",
		"state": "NEW",
		"createdAt": "2026-01-01T00:00:00.000Z",
		"updatedAt": "2026-01-01T00:00:00.000Z",
		"futureField": {"anything": true}
	}`
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := rec.Unknown["futureField"]; !ok {
		t.Fatalf("expected futureField to be preserved as unknown, got %v", rec.Unknown)
	}

	data, err := json.Marshal(&rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var roundTripped map[string]json.RawMessage
	if err := json.Unmarshal(data, &roundTripped); err != nil {
		t.Fatalf("unmarshal roundtrip: %v", err)
	}
	if _, ok := roundTripped["futureField"]; !ok {
		t.Fatalf("expected futureField to survive round trip, got %v", roundTripped)
	}
}

func TestTouchIsStrictlyIncreasing(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := New("job1", now, nil)
	rec.Touch(now)
	if !rec.UpdatedAt.After(now) {
		t.Fatalf("expected UpdatedAt to advance past %v, got %v", now, rec.UpdatedAt)
	}
}

func TestClearStageRemovesRecord(t *testing.T) {
	rec := New("job1", time.Now().UTC(), nil)
	rec.SetStage("download", StageRecord{Status: StageFailed, Reason: "boom"})
	rec.ClearStage("download")
	if rec.StageState("download") != StageNotStarted {
		t.Fatalf("expected cleared stage to report NOT_STARTED")
	}
}

func TestStageExtraFieldsRoundTrip(t *testing.T) {
	rec := New("job1", time.Now().UTC(), nil)
	rec.SetStage("separation", StageRecord{
		Status: StageComplete,
		Extra:  json.RawMessage(`{"modelVersion":"v2"}`),
	})
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var sep map[string]json.RawMessage
	if err := json.Unmarshal(flat["separation"], &sep); err != nil {
		t.Fatalf("unmarshal separation: %v", err)
	}
	if string(sep["modelVersion"]) != `"v2"` {
		t.Fatalf("expected modelVersion to survive, got %v", sep)
	}
}
