// Package notifier delivers signals to external channels.
package notifier

import (
	"context"
	"time"

	"github.com/newthinker/skinquant/internal/core"
)

// Config configures one channel. Type selects "webhook" or "telegram"; the
// remaining fields apply to the matching type only.
type Config struct {
	Type     string            `mapstructure:"type"`
	URL      string            `mapstructure:"url"`
	Headers  map[string]string `mapstructure:"headers"`
	BotToken string            `mapstructure:"bot_token"`
	ChatID   string            `mapstructure:"chat_id"`
	Timeout  time.Duration     `mapstructure:"timeout"`
}

// Notifier sends a batch of signals to one channel.
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Send delivers the signals as one message or request
	Send(ctx context.Context, signals []core.Signal) error
}
