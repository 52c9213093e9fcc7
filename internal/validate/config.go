// Package validate holds the validation schemas shared by the admin API and
// the provider adapters, so that admission and send-time checks agree.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/leadhub/leadhub/internal/domain"
)

var (
	discordWebhookRe = regexp.MustCompile(`^https://discord\.com/api/webhooks/\d+/[\w-]+$`)
	telegramTokenRe  = regexp.MustCompile(`^\d+:[\w-]+$`)
	telegramChatRe   = regexp.MustCompile(`^-?\d+$`)
	emailAddrRe      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// DiscordConfig checks a Discord channel configuration.
func DiscordConfig(c domain.DiscordConfig) error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.WebhookURL,
			validation.Required.Error("webhook URL is required"),
			validation.Match(discordWebhookRe).Error("must be a Discord webhook URL (https://discord.com/api/webhooks/{id}/{token})"),
		),
	)
}

// TelegramConfig checks a Telegram channel configuration.
func TelegramConfig(c domain.TelegramConfig) error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BotToken,
			validation.Required.Error("bot token is required"),
			validation.Match(telegramTokenRe).Error("must look like 123456:ABC-DEF"),
		),
		validation.Field(&c.ChatID,
			validation.Required.Error("chat ID is required"),
			validation.Match(telegramChatRe).Error("must be a numeric chat ID"),
		),
	)
}

// EmailConfig checks an email channel configuration.
func EmailConfig(c domain.EmailConfig) error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.To,
			validation.Required.Error("at least one recipient is required"),
			validation.By(recipientList),
		),
		validation.Field(&c.From, validation.By(singleAddress)),
	)
}

// ChannelConfig decodes raw into the typed configuration for t and validates
// it. Unknown types are rejected.
func ChannelConfig(t domain.ChannelType, raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return errors.New("config is required")
	}
	switch t {
	case domain.ChannelDiscord:
		var c domain.DiscordConfig
		if err := decodeConfig(raw, &c); err != nil {
			return err
		}
		return DiscordConfig(c)
	case domain.ChannelTelegram:
		var c domain.TelegramConfig
		if err := decodeConfig(raw, &c); err != nil {
			return err
		}
		return TelegramConfig(c)
	case domain.ChannelEmail:
		var c domain.EmailConfig
		if err := decodeConfig(raw, &c); err != nil {
			return err
		}
		return EmailConfig(c)
	}
	return fmt.Errorf("unsupported channel type %q", t)
}

func decodeConfig(raw json.RawMessage, dst interface{}) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("config must be a JSON object: %w", err)
	}
	return nil
}

// Recipients splits a comma separated recipient list into bare addresses,
// dropping any "Name <addr>" display names.
func Recipients(list string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		if addr := bareAddress(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func bareAddress(entry string) string {
	entry = strings.TrimSpace(entry)
	if i := strings.LastIndex(entry, "<"); i >= 0 && strings.HasSuffix(entry, ">") {
		entry = strings.TrimSpace(entry[i+1 : len(entry)-1])
	}
	return entry
}

func recipientList(value interface{}) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return nil
	}
	for _, part := range strings.Split(s, ",") {
		addr := bareAddress(part)
		if !emailAddrRe.MatchString(addr) {
			return fmt.Errorf("invalid email address %q", strings.TrimSpace(part))
		}
	}
	return nil
}

func singleAddress(value interface{}) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if !emailAddrRe.MatchString(bareAddress(s)) {
		return fmt.Errorf("invalid email address %q", s)
	}
	return nil
}
