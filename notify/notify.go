// Package notify posts short text messages to a chat webhook
// (Mattermost/Slack incoming-webhook format: {"text": "..."}).
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Notifier delivers a free-text message. Implementations never return
// errors: a failed notification must not abort the caller.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// ErrSendFailed is returned when a message could not be delivered.
type ErrSendFailed struct {
	Endpoint string
	Cause    error
}

func (e *ErrSendFailed) Error() string {
	return fmt.Sprintf("notify: send to %s failed: %v", e.Endpoint, e.Cause)
}

func (e *ErrSendFailed) Unwrap() error { return e.Cause }

// payload is the incoming-webhook body.
type payload struct {
	Text string `json:"text"`
}

// Webhook POSTs messages as JSON to one URL.
type Webhook struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithTimeout sets the HTTP timeout. Default: 10s.
func WithTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.client.Timeout = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) { w.logger = l }
}

// NewWebhook creates a Webhook targeting url. An empty url yields a
// notifier that logs the message it could not send.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Send posts message once. Non-2xx responses and transport errors are
// returned as *ErrSendFailed.
func (w *Webhook) Send(ctx context.Context, message string) error {
	if w.url == "" {
		return &ErrSendFailed{Endpoint: "(unset)", Cause: fmt.Errorf("webhook URL is not configured")}
	}
	body, err := json.Marshal(payload{Text: message})
	if err != nil {
		return fmt.Errorf("notify: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return &ErrSendFailed{Endpoint: w.url, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return &ErrSendFailed{Endpoint: w.url, Cause: err}
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ErrSendFailed{Endpoint: w.url, Cause: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}

// Notify sends message and logs any failure instead of returning it.
func (w *Webhook) Notify(ctx context.Context, message string) {
	if err := w.Send(ctx, message); err != nil {
		w.logger.Error("notify: webhook delivery failed", "error", err)
		return
	}
	w.logger.Info("notify: webhook delivered", "bytes", len(message))
}

// Nop discards every message.
type Nop struct{}

func (Nop) Notify(context.Context, string) {}

// FailureSummary formats the message sent when checks fail.
func FailureSummary(urls []string) string {
	return "The following URLs failed:\n" + strings.Join(urls, "\n")
}
