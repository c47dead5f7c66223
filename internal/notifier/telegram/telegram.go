package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/newthinker/skinquant/internal/core"
	"github.com/newthinker/skinquant/internal/notifier"
)

const defaultAPIBase = "https://api.telegram.org"

var _ notifier.Notifier = (*Telegram)(nil)

// Telegram implements the Notifier interface for Telegram Bot API
type Telegram struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

// Option configures a Telegram notifier.
type Option func(*Telegram)

// WithAPIBase points the notifier at another Bot API host.
func WithAPIBase(base string) Option {
	return func(t *Telegram) { t.apiBase = strings.TrimRight(base, "/") }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *Telegram) {
		if d > 0 {
			t.client.Timeout = d
		}
	}
}

// New creates a new Telegram notifier
func New(botToken, chatID string, opts ...Option) (*Telegram, error) {
	if botToken == "" {
		return nil, core.Errorf(core.ErrConfigMissing, "telegram: bot_token is required")
	}
	if chatID == "" {
		return nil, core.Errorf(core.ErrConfigMissing, "telegram: chat_id is required")
	}
	t := &Telegram{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Telegram) Name() string {
	return "telegram"
}

// Send delivers the batch as one message.
func (t *Telegram) Send(ctx context.Context, signals []core.Signal) error {
	switch len(signals) {
	case 0:
		return nil
	case 1:
		return t.sendMessage(ctx, formatSignal(signals[0]))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 *%d Trading Signals*\n\n", len(signals))
	for i, s := range signals {
		sb.WriteString(formatSignal(s))
		if i < len(signals)-1 {
			sb.WriteString("\n---\n\n")
		}
	}
	return t.sendMessage(ctx, sb.String())
}

func formatSignal(signal core.Signal) string {
	var sb strings.Builder

	actionEmoji := "📈"
	switch signal.Action {
	case core.ActionSell:
		actionEmoji = "📉"
	case core.ActionHold:
		actionEmoji = "⏸️"
	}

	fmt.Fprintf(&sb, "%s *%s* - %s\n", actionEmoji, signal.Symbol, signal.Action)
	fmt.Fprintf(&sb, "📊 Confidence: %.1f%%\n", signal.Confidence*100)
	if signal.Strategy != "" {
		fmt.Fprintf(&sb, "🎯 Strategy: %s\n", signal.Strategy)
	}
	if signal.Reason != "" {
		fmt.Fprintf(&sb, "💡 Reason: %s\n", signal.Reason)
	}
	if signal.Price > 0 {
		fmt.Fprintf(&sb, "💰 Price: %.2f\n", signal.Price)
	}
	fmt.Fprintf(&sb, "⏰ Time: %s", signal.GeneratedAt.Format(time.DateTime))

	return sb.String()
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)

	body, err := json.Marshal(map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("telegram: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var result map[string]any
		json.NewDecoder(resp.Body).Decode(&result)
		return fmt.Errorf("telegram: API error (status %d): %v", resp.StatusCode, result)
	}
	return nil
}
