package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"jobforge/internal/config"
)

const userAgent = "jobforge/0.1.0"

// Event identifies a job-lifecycle milestone a notifier can publish.
type Event string

const (
	EventJobCreated     Event = "job_created"
	EventStageCompleted Event = "stage_completed"
	EventStageFailed    Event = "stage_failed"
	EventJobRetried     Event = "job_retried"
	EventJobReclaimed   Event = "job_reclaimed"
)

// Payload carries the event-specific fields a notifier renders into a
// message. Keys are event-specific; see render for the fields each event
// consumes.
type Payload map[string]string

// Service defines the notification surface exposed to job-lifecycle
// components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when
// configured. When no ntfy topic is configured, a noop implementation is
// returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventJobCreated:     cfg.Notifications.JobCreated,
			EventStageCompleted: cfg.Notifications.StageCompleted,
			EventStageFailed:    cfg.Notifications.StageFailed,
			EventJobRetried:     true,
			EventJobReclaimed:   cfg.Notifications.JobReclaimed,
		},
	}
}

type rendered struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	data, ok := render(event, payload)
	if !ok {
		return fmt.Errorf("notifications: unknown event %q", event)
	}
	return n.send(ctx, data)
}

func render(event Event, p Payload) (rendered, bool) {
	switch event {
	case EventJobCreated:
		return rendered{
			title:   "jobforge - Job Created",
			message: fmt.Sprintf("Job %s queued", p["jobId"]),
			tags:    []string{"jobforge", "job", "created"},
		}, true
	case EventStageCompleted:
		return rendered{
			title:   "jobforge - Stage Complete",
			message: fmt.Sprintf("Job %s finished stage %s", p["jobId"], p["stage"]),
			tags:    []string{"jobforge", "stage", "completed"},
		}, true
	case EventStageFailed:
		message := fmt.Sprintf("Job %s failed stage %s", p["jobId"], p["stage"])
		if reason := strings.TrimSpace(p["reason"]); reason != "" {
			message = fmt.Sprintf("%s: %s", message, reason)
		}
		return rendered{
			title:    "jobforge - Stage Failed",
			message:  message,
			tags:     []string{"jobforge", "stage", "failed"},
			priority: "high",
		}, true
	case EventJobRetried:
		return rendered{
			title:   "jobforge - Job Retried",
			message: fmt.Sprintf("Job %s re-queued for stage %s", p["jobId"], p["stage"]),
			tags:    []string{"jobforge", "job", "retried"},
		}, true
	case EventJobReclaimed:
		return rendered{
			title:   "jobforge - Lease Reclaimed",
			message: fmt.Sprintf("Job %s's expired lease was reclaimed to Initial", p["jobId"]),
			tags:    []string{"jobforge", "lease", "reclaimed"},
			priority: "high",
		}, true
	default:
		return rendered{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data rendered) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
