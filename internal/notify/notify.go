// Package notify delivers fired notifications to external sinks. Delivery
// is fire-and-forget: a sink failure is logged and never rolls back the
// reminder's sent flag, so the engine stays at-most-once.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"taskpulse/internal/domain"
)

type Sink interface {
	Emit(ctx context.Context, n domain.Notification) error
}

// LogSink writes notifications to the process log. It is the default sink
// for CLI runs.
type LogSink struct{}

func (LogSink) Emit(_ context.Context, n domain.Notification) error {
	log.Printf("notify %s: %s: %s", n.UserEmail, n.Title, n.Message)
	return nil
}

const defaultWebhookTimeout = 5 * time.Second

// WebhookSink POSTs each notification as JSON to a configured URL.
type WebhookSink struct {
	URL    string
	Client *http.Client
}

func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		URL:    url,
		Client: &http.Client{Timeout: defaultWebhookTimeout},
	}
}

func (s *WebhookSink) Emit(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(map[string]any{
		"type":         "notification",
		"notification": n,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)
	if res.StatusCode >= 300 {
		return fmt.Errorf("webhook %s: status %d", s.URL, res.StatusCode)
	}
	return nil
}

// Dispatch fans a notification out to every sink, logging failures instead
// of propagating them.
func Dispatch(ctx context.Context, sinks []Sink, n domain.Notification) {
	for _, s := range sinks {
		if err := s.Emit(ctx, n); err != nil {
			log.Printf("notify: sink delivery failed: %v", err)
		}
	}
}
