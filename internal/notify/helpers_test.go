package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leadhub/leadhub/internal/domain"
)

const (
	testBaseURL       = "https://crm.example.com"
	discordTestHook   = "https://discord.com/api/webhooks/123456/abc-DEF_0"
	invalidPayloadMsg = "invalid payload: %v"
)

// rewriteTransport sends every request to target regardless of the request
// host, so adapters can keep production URLs in their config.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	r.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

// countingServer wraps h and counts requests.
func countingServer(t *testing.T, h http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var n int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&n, 1)
		h(w, r)
	}))
	t.Cleanup(server.Close)
	return server, &n
}

func testOptions(t *testing.T, server *httptest.Server) Options {
	t.Helper()
	target, err := url.Parse(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	return Options{
		HTTPClient:      &http.Client{Transport: rewriteTransport{target: target}},
		Timeout:         2 * time.Second,
		AppBaseURL:      testBaseURL,
		TelegramAPIBase: server.URL,
		EmailAPIBase:    server.URL,
		EmailAPIKey:     "re_test_key",
	}
}

func rawConfig(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func testLead() domain.Lead {
	return domain.Lead{
		ID:        "lead-42",
		Name:      "Jane Doe",
		Email:     "jane@example.com",
		Company:   domain.StringPtr("Acme"),
		Message:   "Looking for a new website",
		Status:    "new",
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}
