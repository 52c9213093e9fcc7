package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/resend/resend-go/v2"

	"github.com/leadhub/leadhub/internal/domain"
	"github.com/leadhub/leadhub/internal/validate"
)

const (
	// DefaultEmailAPIBase is the Resend API root.
	DefaultEmailAPIBase = "https://api.resend.com"
	// DefaultEmailFrom is used when neither the channel nor the process
	// configures a sender.
	DefaultEmailFrom = "Leadhub CRM <notifications@leadhub.io>"
)

// Email sends HTML mail through the Resend API.
type Email struct {
	client     *http.Client
	timeout    time.Duration
	apiKey     string
	apiBase    string
	from       string
	appBaseURL string
}

func NewEmail(opts Options) *Email {
	opts = opts.withDefaults()
	return &Email{
		client:     opts.HTTPClient,
		timeout:    opts.Timeout,
		apiKey:     opts.EmailAPIKey,
		apiBase:    opts.EmailAPIBase,
		from:       opts.EmailFrom,
		appBaseURL: opts.AppBaseURL,
	}
}

func (e *Email) Type() domain.ChannelType { return domain.ChannelEmail }

func (e *Email) ValidateConfig(raw json.RawMessage) error {
	return validate.ChannelConfig(domain.ChannelEmail, raw)
}

func (e *Email) Send(ctx context.Context, raw json.RawMessage, p domain.Payload) domain.DeliveryResult {
	start := time.Now()
	if err := e.ValidateConfig(raw); err != nil {
		return resultFromError(configError("invalid email config: %v", err), start)
	}
	if strings.TrimSpace(e.apiKey) == "" {
		return resultFromError(configError("Email API key is not configured"), start)
	}
	var cfg domain.EmailConfig
	_ = json.Unmarshal(raw, &cfg)

	body, err := RenderEmailHTML(p, e.appBaseURL)
	if err != nil {
		return resultFromError(err, start)
	}
	from := cfg.From
	if strings.TrimSpace(from) == "" {
		from = e.from
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rec := &statusRecorder{next: e.client.Transport}
	client, err := e.resendClient(rec)
	if err != nil {
		return resultFromError(err, start)
	}
	resp, err := client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    from,
		To:      validate.Recipients(cfg.To),
		Subject: EmailSubject(p),
		Html:    body,
	})
	status := rec.lastStatus()
	if err != nil {
		return resultFromError(e.classify(ctx, status, err), start)
	}
	if resp == nil || resp.Id == "" {
		return resultFromError(providerError(KindMalformedResponse, status, "Email API returned no message id"), start)
	}
	return successResult(status, start)
}

func (e *Email) resendClient(rec *statusRecorder) (*resend.Client, error) {
	base, err := url.Parse(strings.TrimRight(e.apiBase, "/") + "/")
	if err != nil {
		return nil, configError("invalid email API base %q: %v", e.apiBase, err)
	}
	hc := &http.Client{Transport: rec, Timeout: e.client.Timeout}
	client := resend.NewCustomClient(hc, e.apiKey)
	client.BaseURL = base
	return client, nil
}

func (e *Email) classify(ctx context.Context, status int, err error) error {
	if status == 0 {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return transportError("Email", e.timeout, err)
	}
	if status == http.StatusTooManyRequests {
		return providerError(KindRateLimited, status, "Email rate limited")
	}
	msg := strings.TrimPrefix(err.Error(), "[ERROR]: ")
	if status >= 200 && status < 300 {
		return providerError(KindMalformedResponse, status, "Invalid response from Email API: %s", msg)
	}
	return providerError(KindProvider, status, "Email API error (%d): %s", status, msg)
}

// statusRecorder remembers the status of the last response passing through
// it, which the Resend client does not expose on error.
type statusRecorder struct {
	next   http.RoundTripper
	mu     sync.Mutex
	status int
}

func (s *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	next := s.next
	if next == nil {
		next = http.DefaultTransport
	}
	resp, err := next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.status = resp.StatusCode
	s.mu.Unlock()
	return resp, nil
}

func (s *statusRecorder) lastStatus() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// EmailSubject builds the subject line. The company is appended only when
// the lead has one.
func EmailSubject(p domain.Payload) string {
	name := p.Lead.Name
	if company, ok := domain.Value(p.Lead.Company); ok {
		name += " (" + company + ")"
	}
	switch p.Event {
	case domain.EventLeadCreated:
		return "New lead: " + name
	case domain.EventLeadStatusChanged:
		return "Lead status changed: " + name + " is now " + p.NewStatus
	case domain.EventLeadUpdated:
		return "Lead updated: " + name
	case domain.EventLeadDeleted:
		return "Lead deleted: " + name
	case domain.EventLeadActivityAdded:
		return "New activity on " + name
	}
	return "Lead notification: " + name
}

type emailRow struct {
	Label string
	Value string
}

type emailView struct {
	Heading string
	Rows    []emailRow
	Message string
	Link    string
}

var emailTemplate = template.Must(template.New("lead").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Heading}}</title></head>
<body style="margin:0;padding:24px;background:#f4f5f7;font-family:Helvetica,Arial,sans-serif;color:#111827;">
  <div style="max-width:600px;margin:0 auto;background:#ffffff;border-radius:8px;padding:24px;">
    <h2 style="margin:0 0 16px;font-size:20px;color:#4f46e5;">{{.Heading}}</h2>
    <table style="width:100%;border-collapse:collapse;font-size:14px;">
      {{- range .Rows}}
      <tr>
        <td style="padding:6px 12px 6px 0;font-weight:bold;white-space:nowrap;vertical-align:top;">{{.Label}}</td>
        <td style="padding:6px 0;">{{.Value}}</td>
      </tr>
      {{- end}}
    </table>
    {{- if .Message}}
    <div style="margin-top:16px;padding:12px;background:#f9fafb;border-left:3px solid #6366f1;white-space:pre-wrap;font-size:14px;">{{.Message}}</div>
    {{- end}}
    <p style="margin-top:24px;">
      <a href="{{.Link}}" style="display:inline-block;padding:10px 18px;background:#4f46e5;color:#ffffff;text-decoration:none;border-radius:6px;">View lead</a>
    </p>
    <p style="margin-top:24px;font-size:12px;color:#6b7280;">Sent by Leadhub CRM</p>
  </div>
</body>
</html>
`))

// RenderEmailHTML renders the notification document. All lead content is
// escaped by html/template.
func RenderEmailHTML(p domain.Payload, baseURL string) (string, error) {
	view := emailView{
		Heading: eventHeadline(p.Event) + ": " + p.Lead.Name,
		Rows:    []emailRow{{Label: "Email", Value: p.Lead.Email}},
		Link:    domain.LeadURL(baseURL, p.Lead.ID),
	}
	if p.IsStatusChange() {
		view.Rows = append(view.Rows, emailRow{Label: "Status", Value: p.PreviousStatus + " → " + p.NewStatus})
	} else {
		for _, f := range optionalLeadFields(p.Lead) {
			view.Rows = append(view.Rows, emailRow{Label: f.label, Value: f.value})
		}
	}
	switch {
	case p.Activity != nil:
		view.Rows = append(view.Rows, emailRow{Label: "Activity", Value: p.Activity.Type})
		view.Message = p.Activity.Note
	case p.Event == domain.EventLeadCreated:
		view.Message = p.Lead.Message
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, view); err != nil {
		return "", errors.New("render email: " + err.Error())
	}
	return buf.String(), nil
}
