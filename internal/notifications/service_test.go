package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"jobforge/internal/config"
	"jobforge/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventStageCompleted, notifications.Payload{"jobId": "job1"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "job created",
			event:         notifications.EventJobCreated,
			payload:       notifications.Payload{"jobId": "job1"},
			expectTitle:   "jobforge - Job Created",
			expectMessage: "Job job1 queued",
			expectTags:    "jobforge,job,created",
		},
		{
			name:          "stage completed",
			event:         notifications.EventStageCompleted,
			payload:       notifications.Payload{"jobId": "job1", "stage": "download"},
			expectTitle:   "jobforge - Stage Complete",
			expectMessage: "Job job1 finished stage download",
			expectTags:    "jobforge,stage,completed",
		},
		{
			name:           "stage failed",
			event:          notifications.EventStageFailed,
			payload:        notifications.Payload{"jobId": "job1", "stage": "separation", "reason": "transcode_failed"},
			expectTitle:    "jobforge - Stage Failed",
			expectMessage:  "Job job1 failed stage separation: transcode_failed",
			expectTags:     "jobforge,stage,failed",
			expectPriority: "high",
		},
		{
			name:          "job retried",
			event:         notifications.EventJobRetried,
			payload:       notifications.Payload{"jobId": "job1", "stage": "lyrics"},
			expectTitle:   "jobforge - Job Retried",
			expectMessage: "Job job1 re-queued for stage lyrics",
			expectTags:    "jobforge,job,retried",
		},
		{
			name:           "job reclaimed",
			event:          notifications.EventJobReclaimed,
			payload:        notifications.Payload{"jobId": "job1"},
			expectTitle:    "jobforge - Lease Reclaimed",
			expectMessage:  "Job job1's expired lease was reclaimed to Initial",
			expectTags:     "jobforge,lease,reclaimed",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresSuppressedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.JobCreated = false
	cfg.Notifications.StageCompleted = false

	svc := notifications.NewService(&cfg)
	suppressed := []notifications.Event{
		notifications.EventJobCreated,
		notifications.EventStageCompleted,
	}

	for _, event := range suppressed {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"jobId": "job1"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}
