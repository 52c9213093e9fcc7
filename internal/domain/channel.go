package domain

import (
	"encoding/json"
	"time"
)

// ChannelType identifies the provider adapter that delivers to a channel.
type ChannelType string

const (
	ChannelDiscord  ChannelType = "discord"
	ChannelTelegram ChannelType = "telegram"
	ChannelEmail    ChannelType = "email"
)

// ChannelTypeValues returns the supported types boxed for validation.In.
func ChannelTypeValues() []interface{} {
	return []interface{}{ChannelDiscord, ChannelTelegram, ChannelEmail}
}

// Channel is a configured notification destination. Config holds the
// provider specific JSON object and is decoded by the adapter.
type Channel struct {
	ID        string          `json:"id"`
	Type      ChannelType     `json:"type"`
	Name      string          `json:"name"`
	Config    json.RawMessage `json:"config"`
	Events    []Event         `json:"events"`
	Enabled   bool            `json:"enabled"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Subscribes reports whether the channel's event list contains e.
func (c Channel) Subscribes(e Event) bool {
	return containsEvent(c.Events, e)
}

type DiscordConfig struct {
	WebhookURL string `json:"webhook_url"`
}

type TelegramConfig struct {
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

// EmailConfig lists recipients as a comma separated string. Entries may be
// bare addresses or "Name <addr>".
type EmailConfig struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
}

func containsEvent(events []Event, e Event) bool {
	for _, ev := range events {
		if ev == e {
			return true
		}
	}
	return false
}
