package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"vidscribe/internal/config"
	"vidscribe/internal/job"
)

const userAgent = "vidscribe/0.1.0"

// previewLimit caps how much transcript text is included in a completion push.
const previewLimit = 160

// Service defines the notification surface used by the job supervisor.
type Service interface {
	NotifyJobCompleted(ctx context.Context, snap job.Snapshot) error
	NotifyJobFailed(ctx context.Context, snap job.Snapshot) error
	NotifyJobCancelled(ctx context.Context, snap job.Snapshot) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.NotifyCompleted,
		failed:    cfg.Notifications.NotifyFailed,
		cancelled: cfg.Notifications.NotifyCancelled,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client

	completed bool
	failed    bool
	cancelled bool
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, snap job.Snapshot) error {
	if !n.completed {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Transcribed %s in %s", displayName(snap), roundDuration(snap.Duration()))
	if preview := previewText(snap.Transcript); preview != "" {
		b.WriteString("\n")
		b.WriteString(preview)
	}
	if snap.Warning != "" {
		b.WriteString("\nWarning: ")
		b.WriteString(snap.Warning)
	}
	return n.send(ctx, payload{
		title:   "Vidscribe - Transcript Ready",
		message: b.String(),
		tags:    []string{"vidscribe", "transcript", "completed"},
	})
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, snap job.Snapshot) error {
	if !n.failed {
		return nil
	}
	stage := "unknown"
	diagnostic := "no diagnostic"
	if snap.Error != nil {
		if snap.Error.Stage != "" {
			stage = snap.Error.Stage
		}
		if d := strings.TrimSpace(snap.Error.Diagnostic); d != "" {
			diagnostic = d
		}
	}
	return n.send(ctx, payload{
		title:    "Vidscribe - Failed",
		message:  fmt.Sprintf("%s failed during %s: %s", displayName(snap), stage, diagnostic),
		tags:     []string{"vidscribe", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyJobCancelled(ctx context.Context, snap job.Snapshot) error {
	if !n.cancelled {
		return nil
	}
	return n.send(ctx, payload{
		title:    "Vidscribe - Cancelled",
		message:  fmt.Sprintf("Cancelled %s", displayName(snap)),
		tags:     []string{"vidscribe", "cancelled"},
		priority: "low",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Vidscribe - Test",
		message:  "Notification system test",
		tags:     []string{"vidscribe", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
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

func displayName(snap job.Snapshot) string {
	if name := filepath.Base(strings.TrimSpace(snap.SourcePath)); name != "" && name != "." && name != string(filepath.Separator) {
		return name
	}
	return snap.ID
}

func previewText(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= previewLimit {
		return text
	}
	return string(runes[:previewLimit]) + "..."
}

func roundDuration(d time.Duration) time.Duration {
	if d < time.Second {
		return d.Round(time.Millisecond)
	}
	return d.Round(time.Second)
}

type noopService struct{}

func (noopService) NotifyJobCompleted(context.Context, job.Snapshot) error { return nil }
func (noopService) NotifyJobFailed(context.Context, job.Snapshot) error    { return nil }
func (noopService) NotifyJobCancelled(context.Context, job.Snapshot) error { return nil }
func (noopService) TestNotification(context.Context) error                 { return nil }
