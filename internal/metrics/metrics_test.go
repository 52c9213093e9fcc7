package metrics

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounters(t *testing.T) {
	before := GetSnapshot()

	RecordNotification("discord", true, 120*time.Millisecond)
	RecordNotification("telegram", false, 30*time.Millisecond)
	IncNotificationError("timeout")
	RecordWebhookDelivery(true, time.Second)
	RecordWebhookDelivery(false, time.Second)
	IncDispatchSkipped("unknown_event")
	IncEventIngested("api")

	after := GetSnapshot()
	checks := []struct {
		name          string
		before, after int64
	}{
		{"notifications_sent", before.NotificationsSent, after.NotificationsSent},
		{"notifications_failed", before.NotificationsFailed, after.NotificationsFailed},
		{"webhooks_delivered", before.WebhooksDelivered, after.WebhooksDelivered},
		{"webhooks_failed", before.WebhooksFailed, after.WebhooksFailed},
		{"dispatch_skipped", before.DispatchSkipped, after.DispatchSkipped},
		{"events_ingested", before.EventsIngested, after.EventsIngested},
	}
	for _, c := range checks {
		if c.after != c.before+1 {
			t.Fatalf("expected %s to increment by 1, got %d -> %d", c.name, c.before, c.after)
		}
	}
	if after.LastDelivery == 0 || after.LastDeliveryHuman == "" {
		t.Fatalf("expected last delivery timestamp to be set, got %+v", after)
	}
}

func TestJSONHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	JSONHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var s StatsSnapshot
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
}

func TestLineProtocol(t *testing.T) {
	line := lineProtocol(StatsSnapshot{NotificationsSent: 3, WebhooksFailed: 2}, time.Unix(1700000000, 0))
	if !strings.HasPrefix(line, "leadhub notifications_sent=3i,") || !strings.HasSuffix(line, " 1700000000") {
		t.Fatalf("unexpected line %q", line)
	}
	if !strings.Contains(line, "webhooks_failed=2i") {
		t.Fatalf("missing webhook failures in %q", line)
	}
}

func TestPushToInflux(t *testing.T) {
	var gotAuth, gotBody, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	writeURL := influxWriteURL(InfluxConfig{URL: server.URL + "/", Org: "acme", Bucket: "crm"})
	pushToInflux(context.Background(), server.Client(), writeURL, "tok", time.Unix(1700000000, 0))

	if gotAuth != "Token tok" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if !strings.Contains(gotQuery, "bucket=crm") || !strings.Contains(gotQuery, "org=acme") {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if !strings.HasPrefix(gotBody, "leadhub ") {
		t.Fatalf("unexpected body %q", gotBody)
	}
}

func TestStartInfluxPusherDisabled(t *testing.T) {
	done := make(chan struct{})
	go func() {
		StartInfluxPusher(context.Background(), InfluxConfig{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pusher without URL should return immediately")
	}
}
