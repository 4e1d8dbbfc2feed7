package joberrors_test

import (
	"errors"
	"strings"
	"testing"

	"jobforge/internal/joberrors"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := joberrors.Wrap(joberrors.ErrIO, "mover", "rename", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, joberrors.ErrIO) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"mover", "rename", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestStageErrorImplementsClassifier(t *testing.T) {
	var err error = &joberrors.StageError{Kind: "PROVIDER_TIMEOUT", Message: "no response", Err: errors.New("dial timeout")}
	var classifier joberrors.Classifier
	if !errors.As(err, &classifier) {
		t.Fatalf("expected StageError to satisfy Classifier")
	}
	if classifier.ErrorKind() != "PROVIDER_TIMEOUT" {
		t.Fatalf("unexpected kind: %s", classifier.ErrorKind())
	}
	if !strings.Contains(err.Error(), "dial timeout") {
		t.Fatalf("expected wrapped detail in message: %s", err.Error())
	}
}
