package validate

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/leadhub/leadhub/internal/domain"
)

func TestDiscordConfig(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://discord.com/api/webhooks/123456/abc_DEF-9", false},
		{"", true},
		{"http://discord.com/api/webhooks/123456/abc", true},
		{"https://discord.com/api/webhooks/abc/def", true},
		{"https://evil.example.com/api/webhooks/1/abc", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := DiscordConfig(domain.DiscordConfig{WebhookURL: tt.url})
			if (err != nil) != tt.wantErr {
				t.Fatalf("DiscordConfig(%q) err=%v, wantErr=%v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestTelegramConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     domain.TelegramConfig
		wantErr bool
	}{
		{"valid", domain.TelegramConfig{BotToken: "123456:ABC-def_1", ChatID: "-100123"}, false},
		{"bad token", domain.TelegramConfig{BotToken: "nonsense", ChatID: "1"}, true},
		{"bad chat", domain.TelegramConfig{BotToken: "1:a", ChatID: "@channel"}, true},
		{"missing chat", domain.TelegramConfig{BotToken: "1:a"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := TelegramConfig(tt.cfg); (err != nil) != tt.wantErr {
				t.Fatalf("TelegramConfig err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestEmailConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     domain.EmailConfig
		wantErr bool
	}{
		{"single", domain.EmailConfig{To: "sales@example.com"}, false},
		{"list with names", domain.EmailConfig{To: "Sales <sales@example.com>, ops@example.com"}, false},
		{"with from", domain.EmailConfig{To: "a@example.com", From: "CRM <crm@example.com>"}, false},
		{"empty", domain.EmailConfig{}, true},
		{"one bad entry", domain.EmailConfig{To: "a@example.com, not-an-address"}, true},
		{"bad from", domain.EmailConfig{To: "a@example.com", From: "nobody"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := EmailConfig(tt.cfg); (err != nil) != tt.wantErr {
				t.Fatalf("EmailConfig err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestRecipients(t *testing.T) {
	got := Recipients("Sales <sales@example.com>, ops@example.com ,")
	if len(got) != 2 || got[0] != "sales@example.com" || got[1] != "ops@example.com" {
		t.Fatalf("unexpected recipients %v", got)
	}
}

func TestChannelConfigUnknownType(t *testing.T) {
	if err := ChannelConfig("pager", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for unknown type")
	}
	if err := ChannelConfig(domain.ChannelDiscord, nil); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestWebhookURL(t *testing.T) {
	tests := []struct {
		url      string
		contains string
	}{
		{"https://hooks.example.com/in", ""},
		{"http://hooks.example.com/in", "HTTPS"},
		{"https://localhost/hook", "private"},
		{"https://127.0.0.1/hook", "private"},
		{"https://10.1.2.3/hook", "private"},
		{"https://192.168.0.10/hook", "private"},
		{"https://172.16.0.1/hook", "private"},
		{"https://172.31.255.1/hook", "private"},
		{"https://172.32.0.1/hook", ""},
		{"https://0.0.0.0/hook", "private"},
		{"https://[::1]:8443/hook", "private"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := WebhookURL(tt.url)
			if tt.contains == "" {
				if err != nil {
					t.Fatalf("expected %q to be accepted, got %v", tt.url, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.contains) {
				t.Fatalf("expected error containing %q for %q, got %v", tt.contains, tt.url, err)
			}
		})
	}
}

func TestWebhookInputFieldErrors(t *testing.T) {
	in := WebhookInput{
		Name:   "",
		URL:    "http://example.com",
		Events: []domain.Event{"lead.created", "lead.exploded"},
		Secret: "short",
	}
	err := in.Validate()
	var errs validation.Errors
	if !errors.As(err, &errs) {
		t.Fatalf("expected validation.Errors, got %T %v", err, err)
	}
	for _, field := range []string{"name", "url", "events", "secret"} {
		if errs[field] == nil {
			t.Fatalf("expected error on %q, got %v", field, errs)
		}
	}
	if !strings.Contains(errs["url"].Error(), "HTTPS") {
		t.Fatalf("url error should mention HTTPS: %v", errs["url"])
	}
}

func TestWebhookInputValid(t *testing.T) {
	in := WebhookInput{
		Name:   "Zapier",
		URL:    "https://hooks.zapier.com/abc",
		Events: []domain.Event{domain.EventLeadCreated},
	}
	if err := in.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestChannelInput(t *testing.T) {
	valid := ChannelInput{
		Type:   domain.ChannelTelegram,
		Name:   "Sales chat",
		Config: json.RawMessage(`{"bot_token":"123:abc","chat_id":"-42"}`),
		Events: []domain.Event{domain.EventLeadCreated},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := valid
	bad.Config = json.RawMessage(`{"bot_token":"123:abc","chat_id":"abc"}`)
	bad.Events = nil
	err := bad.Validate()
	var errs validation.Errors
	if !errors.As(err, &errs) || errs["config"] == nil || errs["events"] == nil {
		t.Fatalf("expected config and events errors, got %v", err)
	}
}

func TestWebhookPatch(t *testing.T) {
	url := "https://10.0.0.5/hook"
	err := WebhookPatch{URL: &url}.Validate()
	if err == nil || !strings.Contains(err.Error(), "private") {
		t.Fatalf("expected private address error, got %v", err)
	}
	plain := "http://hooks.example.com/leads"
	err = WebhookPatch{URL: &plain}.Validate()
	var errs validation.Errors
	if !errors.As(err, &errs) || errs["url"] == nil || !strings.Contains(errs["url"].Error(), "HTTPS") {
		t.Fatalf("expected url HTTPS error, got %v", err)
	}
	good := "https://hooks.example.com/leads"
	if err := (WebhookPatch{URL: &good}).Validate(); err != nil {
		t.Fatalf("public https URL should pass, got %v", err)
	}
	empty := []domain.Event{}
	if err := (WebhookPatch{Events: &empty}).Validate(); err == nil {
		t.Fatal("expected error for empty event list")
	}
	if err := (WebhookPatch{}).Validate(); err != nil {
		t.Fatalf("empty patch should be valid, got %v", err)
	}
}
