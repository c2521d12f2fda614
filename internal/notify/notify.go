// Package notify delivers alert notifications to downstream channels.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"

	"github.com/Praj460/PowerPulse-AI/pkg/dab"
)

// Notifier delivers one notification to a single channel
type Notifier interface {
	Name() string
	Notify(ctx context.Context, n dab.Notification) error
}

// NATSNotifier publishes notifications on the alert subject
type NATSNotifier struct {
	nc      *nats.Conn
	subject string
}

func NewNATS(nc *nats.Conn, subject string) *NATSNotifier {
	return &NATSNotifier{nc: nc, subject: subject}
}

func (n *NATSNotifier) Name() string {
	return "nats"
}

func (n *NATSNotifier) Notify(_ context.Context, notification dab.Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return n.nc.Publish(n.subject, payload)
}

// WebhookNotifier posts notifications to an HTTP endpoint behind a
// circuit breaker, so a dead receiver cannot stall the monitor loop.
type WebhookNotifier struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewWebhook(url string, timeout time.Duration, maxFailures uint32, reset time.Duration) *WebhookNotifier {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "alert-webhook",
		MaxRequests: 1,
		Timeout:     reset,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	})
	return &WebhookNotifier{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
	}
}

func (w *WebhookNotifier) Name() string {
	return "webhook"
}

func (w *WebhookNotifier) Notify(ctx context.Context, notification dab.Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	_, err = w.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= http.StatusMultipleChoices {
			return nil, fmt.Errorf("webhook status %d", resp.StatusCode)
		}
		return nil, nil
	})
	return err
}
