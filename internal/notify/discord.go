package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/leadhub/leadhub/internal/domain"
	"github.com/leadhub/leadhub/internal/validate"
)

const (
	discordDescriptionLimit = 1000
	discordErrorBodyLimit   = 200
	discordFooter           = "Leadhub CRM"

	colorLeadCreated   = 0x6366F1
	colorStatusChanged = 0xF59E0B
	colorLeadEvent     = 0x64748B
)

// DiscordEmbed is the subset of the Discord embed object we render.
type DiscordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	URL         string              `json:"url,omitempty"`
	Color       int                 `json:"color"`
	Fields      []DiscordEmbedField `json:"fields,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Footer      *DiscordEmbedFooter `json:"footer,omitempty"`
}

type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

type discordMessage struct {
	Content *string        `json:"content"`
	Embeds  []DiscordEmbed `json:"embeds"`
}

// Discord posts embeds to a Discord channel webhook.
type Discord struct {
	client     *http.Client
	timeout    time.Duration
	appBaseURL string
}

func NewDiscord(opts Options) *Discord {
	opts = opts.withDefaults()
	return &Discord{client: opts.HTTPClient, timeout: opts.Timeout, appBaseURL: opts.AppBaseURL}
}

func (d *Discord) Type() domain.ChannelType { return domain.ChannelDiscord }

func (d *Discord) ValidateConfig(raw json.RawMessage) error {
	return validate.ChannelConfig(domain.ChannelDiscord, raw)
}

func (d *Discord) Send(ctx context.Context, raw json.RawMessage, p domain.Payload) domain.DeliveryResult {
	start := time.Now()
	if err := d.ValidateConfig(raw); err != nil {
		return resultFromError(configError("invalid Discord config: %v", err), start)
	}
	var cfg domain.DiscordConfig
	_ = json.Unmarshal(raw, &cfg)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	msg := discordMessage{Embeds: []DiscordEmbed{FormatDiscordEmbed(p, d.appBaseURL)}}
	reply, err := postJSON(ctx, d.client, "Discord", cfg.WebhookURL, d.timeout, msg)
	if err != nil {
		return resultFromError(err, start)
	}
	if err := discordReplyError(reply); err != nil {
		return resultFromError(err, start)
	}
	return successResult(reply.status, start)
}

func discordReplyError(r *httpReply) error {
	if r.status >= 200 && r.status < 300 {
		return nil
	}
	if r.status == http.StatusTooManyRequests {
		msg := "Discord rate limited"
		if ra := strings.TrimSpace(r.header.Get("Retry-After")); ra != "" {
			msg += fmt.Sprintf(" (retry after %ss)", ra)
		}
		return providerError(KindRateLimited, r.status, "%s", msg)
	}
	body := domain.Truncate(strings.TrimSpace(string(r.body)), discordErrorBodyLimit)
	return providerError(KindProvider, r.status, "Discord API error (%d): %s", r.status, body)
}

// FormatDiscordEmbed picks the embed layout for the payload's event.
func FormatDiscordEmbed(p domain.Payload, baseURL string) DiscordEmbed {
	switch p.Event {
	case domain.EventLeadCreated:
		return FormatLeadCreatedEmbed(p.Lead, baseURL)
	case domain.EventLeadStatusChanged:
		return FormatStatusChangedEmbed(p.Lead, p.PreviousStatus, p.NewStatus, baseURL, p.Timestamp)
	}
	return FormatLeadEventEmbed(p, baseURL)
}

// FormatLeadCreatedEmbed renders a new lead with every populated field.
func FormatLeadCreatedEmbed(lead domain.Lead, baseURL string) DiscordEmbed {
	fields := []DiscordEmbedField{{Name: "Email", Value: lead.Email, Inline: true}}
	fields = appendOptionalFields(fields, lead)
	return DiscordEmbed{
		Title:       "🎯 New Lead: " + lead.Name,
		Description: domain.TruncateEllipsis(lead.Message, discordDescriptionLimit),
		URL:         domain.LeadURL(baseURL, lead.ID),
		Color:       colorLeadCreated,
		Fields:      fields,
		Timestamp:   isoTime(lead.CreatedAt),
		Footer:      &DiscordEmbedFooter{Text: discordFooter},
	}
}

// FormatStatusChangedEmbed renders a status transition as "{old} → {new}".
func FormatStatusChangedEmbed(lead domain.Lead, previous, next, baseURL string, at time.Time) DiscordEmbed {
	return DiscordEmbed{
		Title: "🔄 Lead Status Changed: " + lead.Name,
		URL:   domain.LeadURL(baseURL, lead.ID),
		Color: colorStatusChanged,
		Fields: []DiscordEmbedField{
			{Name: "Email", Value: lead.Email, Inline: true},
			{Name: "Status", Value: previous + " → " + next, Inline: true},
		},
		Timestamp: isoTime(at),
		Footer:    &DiscordEmbedFooter{Text: discordFooter},
	}
}

// FormatLeadEventEmbed renders updated, deleted and activity events.
func FormatLeadEventEmbed(p domain.Payload, baseURL string) DiscordEmbed {
	fields := []DiscordEmbedField{{Name: "Email", Value: p.Lead.Email, Inline: true}}
	if p.Lead.Status != "" {
		fields = append(fields, DiscordEmbedField{Name: "Status", Value: p.Lead.Status, Inline: true})
	}
	if p.Activity != nil {
		fields = append(fields, DiscordEmbedField{
			Name:  "Activity (" + p.Activity.Type + ")",
			Value: domain.TruncateEllipsis(p.Activity.Note, discordDescriptionLimit),
		})
	}
	return DiscordEmbed{
		Title:     eventHeadline(p.Event) + ": " + p.Lead.Name,
		URL:       domain.LeadURL(baseURL, p.Lead.ID),
		Color:     colorLeadEvent,
		Fields:    fields,
		Timestamp: isoTime(p.Timestamp),
		Footer:    &DiscordEmbedFooter{Text: discordFooter},
	}
}

func appendOptionalFields(fields []DiscordEmbedField, lead domain.Lead) []DiscordEmbedField {
	for _, f := range optionalLeadFields(lead) {
		fields = append(fields, DiscordEmbedField{Name: f.label, Value: f.value, Inline: true})
	}
	return fields
}

func isoTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}
