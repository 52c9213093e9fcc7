package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/leadhub/leadhub/internal/domain"
)

type sentEmail struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

var emailTestConfig = domain.EmailConfig{To: "Sales <sales@example.com>, ops@example.com"}

func TestEmailSendSuccess(t *testing.T) {
	var got sentEmail
	var auth string
	server, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/emails") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf(invalidPayloadMsg, err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"email_123"}`))
	})

	res := NewEmail(testOptions(t, server)).Send(context.Background(), rawConfig(t, emailTestConfig),
		domain.NewLeadCreatedPayload(testLead()))
	if !res.Success || res.StatusCode != http.StatusOK {
		t.Fatalf("expected success, got %+v", res)
	}
	if auth != "Bearer re_test_key" {
		t.Fatalf("unexpected authorization header %q", auth)
	}
	if len(got.To) != 2 || got.To[0] != "sales@example.com" {
		t.Fatalf("unexpected recipients %v", got.To)
	}
	if got.From != DefaultEmailFrom {
		t.Fatalf("expected default sender, got %q", got.From)
	}
	if got.Subject != "New lead: Jane Doe (Acme)" {
		t.Fatalf("unexpected subject %q", got.Subject)
	}
	if !strings.Contains(got.HTML, "https://crm.example.com/leads/lead-42") {
		t.Fatal("email body is missing the deep link")
	}
}

func TestEmailMissingAPIKeyMakesNoRequest(t *testing.T) {
	server, calls := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"x"}`))
	})
	opts := testOptions(t, server)
	opts.EmailAPIKey = ""
	res := NewEmail(opts).Send(context.Background(), rawConfig(t, emailTestConfig), domain.NewLeadCreatedPayload(testLead()))
	if res.Success || !strings.Contains(res.Error, "API key") {
		t.Fatalf("expected configuration failure, got %+v", res)
	}
	if atomic.LoadInt32(calls) != 0 {
		t.Fatalf("expected no network call, got %d", *calls)
	}
}

func TestEmailRateLimited(t *testing.T) {
	server, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"statusCode":429,"name":"rate_limit_exceeded","message":"Too many requests"}`))
	})
	res := NewEmail(testOptions(t, server)).Send(context.Background(), rawConfig(t, emailTestConfig),
		domain.NewLeadCreatedPayload(testLead()))
	if res.Success || !strings.Contains(res.Error, "rate limited") || res.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected rate limited failure, got %+v", res)
	}
}

func TestEmailProviderError(t *testing.T) {
	server, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"Invalid from address"}`))
	})
	res := NewEmail(testOptions(t, server)).Send(context.Background(), rawConfig(t, emailTestConfig),
		domain.NewLeadCreatedPayload(testLead()))
	if res.Success || res.StatusCode != http.StatusUnprocessableEntity || !strings.Contains(res.Error, "422") {
		t.Fatalf("expected provider failure with status, got %+v", res)
	}
}

func TestRenderEmailHTMLEscapes(t *testing.T) {
	lead := testLead()
	lead.Name = `Eve "<img src=x>"`
	lead.Message = `Tom & Jerry's <b>plan</b>`

	html, err := RenderEmailHTML(domain.NewLeadCreatedPayload(lead), testBaseURL)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	for _, raw := range []string{`<img src=x>`, `<b>plan</b>`, `Jerry's`, `"<img`} {
		if strings.Contains(html, raw) {
			t.Fatalf("found unescaped %q in email body", raw)
		}
	}
	for _, escaped := range []string{"&lt;img src=x&gt;", "Tom &amp; Jerry", "&#39;", "&#34;"} {
		if !strings.Contains(html, escaped) {
			t.Fatalf("expected %q in email body", escaped)
		}
	}
	if !strings.HasPrefix(html, "<!DOCTYPE html>") {
		t.Fatal("expected a full HTML document")
	}
}

func TestEmailSubject(t *testing.T) {
	lead := testLead()
	lead.Company = nil
	tests := []struct {
		name string
		p    domain.Payload
		want string
	}{
		{"created without company", domain.NewLeadCreatedPayload(lead), "New lead: Jane Doe"},
		{"created with company", domain.NewLeadCreatedPayload(testLead()), "New lead: Jane Doe (Acme)"},
		{"status change", domain.NewLeadStatusChangedPayload(testLead(), "new", "won"), "Lead status changed: Jane Doe (Acme) is now won"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EmailSubject(tt.p); got != tt.want {
				t.Fatalf("EmailSubject() = %q, want %q", got, tt.want)
			}
		})
	}
}
