package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/leadhub/leadhub/internal/domain"
	"github.com/leadhub/leadhub/internal/events"
	"github.com/leadhub/leadhub/internal/store"
	"github.com/leadhub/leadhub/internal/webhook"
)

var dbSeq atomic.Int64

type stubTester struct {
	channelCalls []string
	webhookCalls []string
}

func (s *stubTester) SendTestNotification(_ context.Context, id string) (*domain.ChannelResult, error) {
	s.channelCalls = append(s.channelCalls, id)
	if id == "missing" {
		return nil, nil
	}
	return &domain.ChannelResult{ChannelID: id, DeliveryResult: domain.DeliveryResult{Success: true}}, nil
}

func (s *stubTester) TestWebhook(_ context.Context, id string) (*webhook.Attempt, error) {
	s.webhookCalls = append(s.webhookCalls, id)
	if id == "missing" {
		return nil, nil
	}
	return &webhook.Attempt{DeliveryID: "d-1", Success: true, StatusCode: 200}, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingSink) DispatchAsync(_ context.Context, e domain.Event, _ domain.Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

type fixture struct {
	handler http.Handler
	store   *store.Store
	tester  *stubTester
	sink    *recordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(store.Options{Driver: "sqlite", DSN: fmt.Sprintf("file:api_test_%d?mode=memory&cache=shared", dbSeq.Add(1))})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	tester := &stubTester{}
	sink := &recordingSink{}
	srv := NewServer(Deps{
		Registry:  st,
		Channels:  tester,
		Webhooks:  tester,
		Publisher: events.NewTriggers(sink),
		Ready:     st.Ping,
		Metrics:   true,
	})
	return &fixture{handler: srv.Handler(), store: st, tester: tester, sink: sink}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body == "" {
		rdr = bytes.NewReader(nil)
	} else {
		rdr = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

const discordBody = `{"type":"discord","name":"Sales","config":{"webhook_url":"https://discord.com/api/webhooks/123/abc-DEF"},"events":["lead.created"]}`

func TestChannelLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/channels", discordBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	var ch domain.Channel
	decodeBody(t, rec, &ch)
	if ch.ID == "" || !ch.Enabled {
		t.Fatalf("channel must default to enabled: %+v", ch)
	}

	rec = f.do(t, http.MethodPut, "/api/channels/"+ch.ID, `{"name":"Renamed","enabled":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body)
	}
	decodeBody(t, rec, &ch)
	if ch.Name != "Renamed" || ch.Enabled {
		t.Fatalf("patch not applied: %+v", ch)
	}

	rec = f.do(t, http.MethodPut, "/api/channels/"+ch.ID, `{"type":"telegram"}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "cannot be changed") {
		t.Fatalf("type change must be rejected: %d %s", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodPut, "/api/channels/"+ch.ID, `{"config":{"webhook_url":"https://example.com/hook"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("config must be checked against the stored type: %d %s", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodGet, "/api/channels", "")
	var list []domain.Channel
	decodeBody(t, rec, &list)
	if len(list) != 1 {
		t.Fatalf("expected one channel, got %d", len(list))
	}

	if rec = f.do(t, http.MethodDelete, "/api/channels/"+ch.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec = f.do(t, http.MethodGet, "/api/channels/"+ch.ID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestCreateChannelValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"unknown type", `{"type":"slack","name":"x","config":{},"events":["lead.created"]}`, "type"},
		{"missing name", `{"type":"discord","name":"","config":{"webhook_url":"https://discord.com/api/webhooks/1/a"},"events":["lead.created"]}`, "name"},
		{"unknown event", `{"type":"discord","name":"x","config":{"webhook_url":"https://discord.com/api/webhooks/1/a"},"events":["lead.exploded"]}`, "events"},
		{"no events", `{"type":"discord","name":"x","config":{"webhook_url":"https://discord.com/api/webhooks/1/a"},"events":[]}`, "events"},
		{"bad config", `{"type":"telegram","name":"x","config":{"bot_token":"nope","chat_id":"12"},"events":["lead.created"]}`, "config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/channels", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d %s", rec.Code, rec.Body)
			}
			var body struct {
				Error  string                     `json:"error"`
				Fields map[string]json.RawMessage `json:"fields"`
			}
			decodeBody(t, rec, &body)
			if body.Error != "validation failed" {
				t.Fatalf("unexpected error %q", body.Error)
			}
			if _, ok := body.Fields[tt.field]; !ok {
				t.Fatalf("expected field %q in %s", tt.field, rec.Body)
			}
		})
	}
}

func TestInvalidJSON(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodPost, "/api/channels", `{`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWebhookSecretIsNeverRendered(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/webhooks", `{"name":"Zapier","url":"https://hooks.example.com/x","events":["lead.created"],"secret":"super-secret-value-123"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	if strings.Contains(rec.Body.String(), "super-secret-value-123") {
		t.Fatal("secret leaked in create response")
	}
	var view struct {
		ID        string `json:"id"`
		HasSecret bool   `json:"has_secret"`
	}
	decodeBody(t, rec, &view)
	if !view.HasSecret {
		t.Fatal("has_secret must be true")
	}

	rec = f.do(t, http.MethodGet, "/api/webhooks", "")
	if strings.Contains(rec.Body.String(), "super-secret-value-123") {
		t.Fatal("secret leaked in list response")
	}

	rec = f.do(t, http.MethodPut, "/api/webhooks/"+view.ID, `{"secret":""}`)
	decodeBody(t, rec, &view)
	if rec.Code != http.StatusOK || view.HasSecret {
		t.Fatalf("empty secret must clear: %d %s", rec.Code, rec.Body)
	}
}

func TestWebhookURLAdmission(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		url  string
		want string
	}{
		{"http://hooks.example.com/x", "URL must use HTTPS"},
		{"https://localhost/x", "URL must not point to localhost or a private network address"},
		{"https://192.168.1.10/x", "URL must not point to localhost or a private network address"},
		{"https://10.0.0.5/x", "URL must not point to localhost or a private network address"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			body := fmt.Sprintf(`{"name":"n","url":%q,"events":["lead.created"]}`, tt.url)
			rec := f.do(t, http.MethodPost, "/api/webhooks", body)
			if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), tt.want) {
				t.Fatalf("expected %q, got %d %s", tt.want, rec.Code, rec.Body)
			}
		})
	}
}

func TestTestEndpoints(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(t, http.MethodPost, "/api/channels/missing/test", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown channel: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/channels/ch-1/test", ""); rec.Code != http.StatusOK {
		t.Fatalf("channel test: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/webhooks/missing/test", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown webhook: %d", rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/api/webhooks/wh-1/test", "")
	var att webhook.Attempt
	decodeBody(t, rec, &att)
	if rec.Code != http.StatusOK || !att.Success || att.StatusCode != 200 {
		t.Fatalf("webhook test: %d %s", rec.Code, rec.Body)
	}
	if len(f.tester.channelCalls) != 2 || len(f.tester.webhookCalls) != 2 {
		t.Fatalf("unexpected tester calls %+v", f.tester)
	}
}

func TestDeliveriesEndpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wh := &domain.Webhook{Name: "n", URL: "https://hooks.example.com/x", Events: []domain.Event{domain.EventLeadCreated}, Enabled: true}
	if err := f.store.CreateWebhook(ctx, wh); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := f.store.RecordDelivery(ctx, &domain.WebhookDelivery{WebhookID: wh.ID, Event: domain.EventLeadCreated, Payload: json.RawMessage(`{}`), Success: true}); err != nil {
			t.Fatal(err)
		}
	}

	rec := f.do(t, http.MethodGet, "/api/webhooks/"+wh.ID+"/deliveries?limit=2", "")
	var list []domain.WebhookDelivery
	decodeBody(t, rec, &list)
	if rec.Code != http.StatusOK || len(list) != 2 {
		t.Fatalf("expected 2 deliveries, got %d %s", rec.Code, rec.Body)
	}
	if rec := f.do(t, http.MethodGet, "/api/webhooks/"+wh.ID+"/deliveries?limit=zero", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/webhooks/nope/deliveries", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown webhook: %d", rec.Code)
	}
}

func TestPublishEvent(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/events", `{"event":"lead.created","payload":{"lead":{"id":"lead-1","name":"Jane","email":"jane@example.com"}}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %s", rec.Code, rec.Body)
	}
	if len(f.sink.events) != 1 || f.sink.events[0] != domain.EventLeadCreated {
		t.Fatalf("event not published: %+v", f.sink.events)
	}

	rec = f.do(t, http.MethodPost, "/api/events", `{"event":"lead.merged","payload":{"lead":{"id":"lead-1"}}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown event must be rejected, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/api/events", `{"event":"lead.created","payload":{}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing lead must be rejected, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}

	down := NewServer(Deps{Ready: func(context.Context) error { return errors.New("db down") }}).Handler()
	rec := httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestStatusAndMetrics(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/status", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "notifications_sent") {
		t.Fatalf("status: %d %s", rec.Code, rec.Body)
	}
	if rec := f.do(t, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}

	bare := NewServer(Deps{}).Handler()
	rec = httptest.NewRecorder()
	bare.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("metrics must be off unless enabled, got %d", rec.Code)
	}
}
