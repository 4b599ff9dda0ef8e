// Package delivery defines the outbound transport invoked by the outbox
// worker. A Sender performs exactly one delivery attempt; retry policy lives
// with the caller (the worker records failures, it does not retry).
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Message is the unit handed to a Sender. Payload stays opaque here: the
// transport forwards it without interpreting notification semantics.
type Message struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Recipient string          `json:"recipient"`
	Payload   json.RawMessage `json:"payload"`
	DedupeKey string          `json:"dedupe_key"`
}

// Sender delivers a single message. A nil return means the message was
// handed off successfully; any error is recorded on the outbox row.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes deliveries to the structured log. It is the default sink
// for environments without a real transport (dev, CI) and never fails.
type LogSender struct {
	Logger zerolog.Logger
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.Logger.Info().
		Str("outbox_id", msg.ID).
		Str("kind", msg.Kind).
		Str("recipient", msg.Recipient).
		Str("dedupe_key", msg.DedupeKey).
		Msg("notification delivered (log sink)")
	return nil
}

// WebhookSender posts messages as JSON to a fixed endpoint, throttled to a
// configured outbound rate so a large drain batch cannot flood the receiver.
type WebhookSender struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewWebhookSender constructs a WebhookSender targeting url, allowing at most
// perSec deliveries per second with a small burst.
func NewWebhookSender(url string, perSec float64, timeout time.Duration) *WebhookSender {
	return &WebhookSender{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(perSec), 1),
	}
}

// Send implements Sender. Non-2xx responses are errors carrying a truncated
// response snippet for the outbox error column.
func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
