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

// DefaultTelegramAPIBase is the Bot API root.
const DefaultTelegramAPIBase = "https://api.telegram.org"

const telegramMessageLimit = 500

var telegramEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Telegram sends HTML formatted messages through the Bot API.
type Telegram struct {
	client     *http.Client
	timeout    time.Duration
	apiBase    string
	appBaseURL string
}

type telegramRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func NewTelegram(opts Options) *Telegram {
	opts = opts.withDefaults()
	return &Telegram{
		client:     opts.HTTPClient,
		timeout:    opts.Timeout,
		apiBase:    strings.TrimRight(opts.TelegramAPIBase, "/"),
		appBaseURL: opts.AppBaseURL,
	}
}

func (t *Telegram) Type() domain.ChannelType { return domain.ChannelTelegram }

func (t *Telegram) ValidateConfig(raw json.RawMessage) error {
	return validate.ChannelConfig(domain.ChannelTelegram, raw)
}

func (t *Telegram) Send(ctx context.Context, raw json.RawMessage, p domain.Payload) domain.DeliveryResult {
	start := time.Now()
	if err := t.ValidateConfig(raw); err != nil {
		return resultFromError(configError("invalid Telegram config: %v", err), start)
	}
	var cfg domain.TelegramConfig
	_ = json.Unmarshal(raw, &cfg)

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, cfg.BotToken)
	req := telegramRequest{
		ChatID:                cfg.ChatID,
		Text:                  FormatTelegramMessage(p, t.appBaseURL),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}
	reply, err := postJSON(ctx, t.client, "Telegram", apiURL, t.timeout, req)
	if err != nil {
		return resultFromError(redactToken(err, cfg.BotToken), start)
	}
	if err := telegramReplyError(reply); err != nil {
		return resultFromError(err, start)
	}
	return successResult(reply.status, start)
}

// telegramReplyError decides success from the JSON "ok" flag, not the HTTP
// status.
func telegramReplyError(r *httpReply) error {
	var resp telegramResponse
	if err := json.Unmarshal(r.body, &resp); err != nil {
		return providerError(KindMalformedResponse, r.status, "Invalid response from Telegram API (HTTP %d)", r.status)
	}
	if resp.OK {
		return nil
	}
	if resp.ErrorCode == http.StatusTooManyRequests {
		msg := "Telegram rate limited"
		if resp.Parameters != nil && resp.Parameters.RetryAfter > 0 {
			msg += fmt.Sprintf(" (retry after %ds)", resp.Parameters.RetryAfter)
		}
		return providerError(KindRateLimited, r.status, "%s", msg)
	}
	desc := resp.Description
	if desc == "" {
		desc = "unknown error"
	}
	return providerError(KindProvider, r.status, "Telegram API error: %s", desc)
}

// redactToken keeps the bot token out of error strings; url.Error embeds the
// request URL.
func redactToken(err error, token string) error {
	de, ok := err.(*DeliveryError)
	if !ok || token == "" {
		return err
	}
	return &DeliveryError{
		Kind:       de.Kind,
		StatusCode: de.StatusCode,
		Msg:        strings.ReplaceAll(de.Msg, token, "<redacted>"),
		Err:        de.Err,
	}
}

// EscapeTelegramHTML escapes the characters Telegram's HTML mode treats as
// markup.
func EscapeTelegramHTML(s string) string {
	return telegramEscaper.Replace(s)
}

// FormatTelegramMessage renders the message body in Telegram HTML.
func FormatTelegramMessage(p domain.Payload, baseURL string) string {
	lead := p.Lead
	esc := EscapeTelegramHTML
	var lines []string

	lines = append(lines, fmt.Sprintf("<b>%s: %s</b>", esc(eventHeadline(p.Event)), esc(lead.Name)), "")
	lines = append(lines, "<b>Email:</b> "+esc(lead.Email))

	switch {
	case p.IsStatusChange():
		lines = append(lines, fmt.Sprintf("<b>Status:</b> %s → %s", esc(p.PreviousStatus), esc(p.NewStatus)))
	default:
		for _, f := range optionalLeadFields(lead) {
			lines = append(lines, fmt.Sprintf("<b>%s:</b> %s", f.label, esc(f.value)))
		}
	}

	if p.Activity != nil {
		lines = append(lines, "", fmt.Sprintf("<b>Activity (%s):</b> %s", esc(p.Activity.Type),
			esc(domain.TruncateEllipsis(p.Activity.Note, telegramMessageLimit))))
	}
	if p.Event == domain.EventLeadCreated && strings.TrimSpace(lead.Message) != "" {
		lines = append(lines, "", "<i>"+esc(domain.TruncateEllipsis(lead.Message, telegramMessageLimit))+"</i>")
	}

	link := domain.LeadURL(baseURL, lead.ID)
	lines = append(lines, "", fmt.Sprintf(`<a href="%s">View in CRM</a>`, esc(link)))
	return strings.Join(lines, "\n")
}
