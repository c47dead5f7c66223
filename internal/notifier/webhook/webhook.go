// Package webhook posts signal batches as JSON to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/newthinker/skinquant/internal/core"
	"github.com/newthinker/skinquant/internal/notifier"
)

const defaultTimeout = 10 * time.Second

var _ notifier.Notifier = (*Webhook)(nil)

// Webhook implements notifier.Notifier for HTTP webhooks
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// New creates a webhook notifier. A zero timeout uses the default.
func New(url string, headers map[string]string, timeout time.Duration) (*Webhook, error) {
	if url == "" {
		return nil, core.Errorf(core.ErrConfigMissing, "webhook: url is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Webhook{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (w *Webhook) Name() string { return "webhook" }

// Payload is the request body.
type Payload struct {
	Type    string          `json:"type"`
	Count   int             `json:"count"`
	Signals []SignalPayload `json:"signals"`
}

// SignalPayload is one signal in a Payload.
type SignalPayload struct {
	Symbol      string         `json:"symbol"`
	Action      core.Action    `json:"action"`
	Confidence  float64        `json:"confidence"`
	Price       float64        `json:"price"`
	Reason      string         `json:"reason"`
	Strategy    string         `json:"strategy"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	GeneratedAt string         `json:"generated_at"`
}

func (w *Webhook) Send(ctx context.Context, signals []core.Signal) error {
	if len(signals) == 0 {
		return nil
	}

	p := Payload{Type: "signals", Count: len(signals), Signals: make([]SignalPayload, len(signals))}
	for i, s := range signals {
		p.Signals[i] = SignalPayload{
			Symbol:      s.Symbol,
			Action:      s.Action,
			Confidence:  s.Confidence,
			Price:       s.Price,
			Reason:      s.Reason,
			Strategy:    s.Strategy,
			Metadata:    s.Metadata,
			GeneratedAt: s.GeneratedAt.Format(time.RFC3339),
		}
	}
	return w.post(ctx, p)
}

func (w *Webhook) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: server returned %d", resp.StatusCode)
	}
	return nil
}
