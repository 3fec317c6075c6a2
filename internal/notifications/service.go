package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ebookconverter/internal/config"
)

const userAgent = "ebookconverter-Go/0.1.0"

// Event identifies what happened.
type Event string

const (
	EventRunCompleted       Event = "run_completed"
	EventBatchFailed        Event = "batch_failed"
	EventVerificationFailed Event = "verification_failed"
	EventError              Event = "error"
	EventTest               Event = "test"
)

// Payload carries event details keyed by field name.
type Payload map[string]any

// Service defines the notification surface exposed to run components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
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
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventRunCompleted:
		entries := payload.count("entries")
		jobs := payload.count("jobs")
		failed := payload.count("failedBatches")
		duration := payload.duration("duration")
		if failed == 0 {
			return message{
				title: "ebookconverter - Run Complete",
				body:  fmt.Sprintf("📚 Processed %d entries, %d jobs in %s", entries, jobs, duration),
				tags:  []string{"ebookconverter", "run", "completed"},
			}, true
		}
		return message{
			title: "ebookconverter - Run Complete (with errors)",
			body:  fmt.Sprintf("📚 Processed %d entries, %d jobs, %d failed batches in %s", entries, jobs, failed, duration),
			tags:  []string{"ebookconverter", "run", "completed"},
		}, true
	case EventBatchFailed:
		return message{
			title:    "ebookconverter - Batch Failed",
			body:     fmt.Sprintf("❌ ebookmaker exited with %d for entries %s", payload.count("exitCode"), payload.text("entries")),
			tags:     []string{"ebookconverter", "batch", "failed"},
			priority: "high",
		}, true
	case EventVerificationFailed:
		return message{
			title:    "ebookconverter - Verification Failed",
			body:     fmt.Sprintf("⚠️ %s: %s", payload.text("file"), payload.text("problem")),
			tags:     []string{"ebookconverter", "verify", "alert"},
			priority: "high",
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := payload.text("context"); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		if detail := payload.text("error"); detail != "" {
			builder.WriteString(detail)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "ebookconverter - Error",
			body:     builder.String(),
			tags:     []string{"ebookconverter", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "ebookconverter - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"ebookconverter", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
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

func (p Payload) text(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (p Payload) count(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func (p Payload) duration(key string) time.Duration {
	d, _ := p[key].(time.Duration)
	d = d.Round(time.Second)
	if d < 0 {
		d = 0
	}
	return d
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
