// Package notify implements the multi-channel notifier: signed webhook
// deliveries with retries and templated transactional email. Both channels
// fail open — a notification failure is logged, never propagated.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Envelope is the wire shape of an outbound webhook. Timestamp is set at
// dispatch time; the signature covers the exact serialized body.
type Envelope struct {
	EventType string                 `json:"event_type"`
	Timestamp string                 `json:"timestamp"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
}

// WebhookSender posts signed event envelopes with retry.
type WebhookSender struct {
	secret  string
	source  string
	client  *http.Client
	logger  *slog.Logger
	backoff time.Duration // base backoff, shortened in tests
	now     func() time.Time
}

const webhookAttempts = 3

// NewWebhookSender creates a sender. secret may be empty; deliveries are
// then sent with signature "none".
func NewWebhookSender(secret, source string, timeout time.Duration) *WebhookSender {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &WebhookSender{
		secret:  secret,
		source:  source,
		client:  &http.Client{Timeout: timeout},
		logger:  slog.Default().With("component", "webhook-sender"),
		backoff: time.Second,
		now:     time.Now,
	}
}

// Deliver builds the envelope and POSTs it to url. Up to 3 total attempts
// with exponential backoff (1s, 2s, 4s); success is any 2xx status.
func (w *WebhookSender) Deliver(ctx context.Context, url, eventType string, data map[string]interface{}) error {
	if url == "" {
		return fmt.Errorf("no webhook URL configured for event %s", eventType)
	}

	timestamp := w.now().UTC().Format(time.RFC3339)
	// Canonical JSON: a map marshals with sorted keys, and nested maps in
	// data sort the same way.
	body, err := json.Marshal(map[string]interface{}{
		"event_type": eventType,
		"timestamp":  timestamp,
		"source":     w.source,
		"data":       data,
	})
	if err != nil {
		return fmt.Errorf("failed to serialize webhook envelope: %w", err)
	}

	signature := "none"
	if w.secret != "" {
		signature = Sign(w.secret, body)
	}

	var lastErr error
	for attempt := 0; attempt < webhookAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(w.backoff << (attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Event-Type", eventType)
		req.Header.Set("X-Timestamp", timestamp)
		req.Header.Set("X-Webhook-Signature", signature)

		resp, err := w.client.Do(req)
		if err != nil {
			lastErr = err
			w.logger.Warn("Webhook delivery failed",
				"event", eventType, "attempt", attempt+1, "error", err)
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			w.logger.Info("Webhook delivered",
				"event", eventType, "status", resp.StatusCode, "attempt", attempt+1)
			return nil
		}
		lastErr = fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
		w.logger.Warn("Webhook delivery rejected",
			"event", eventType, "attempt", attempt+1, "status", resp.StatusCode)
	}

	return fmt.Errorf("webhook delivery failed after %d attempts: %w", webhookAttempts, lastErr)
}

// Sign computes the X-Webhook-Signature value for body:
// "sha256=" + lowercase hex of HMAC-SHA256(secret, body).
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature header against body using
// constant-time comparison.
func Verify(secret string, body []byte, sigHeader string) bool {
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(sigHeader))
}
