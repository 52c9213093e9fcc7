package domain

import (
	"encoding/json"
	"time"
)

// MaxResponseBody caps the receiver response text kept in the audit log.
const MaxResponseBody = 1000

// Webhook is an outbound HTTPS endpoint subscribed to events. Secret is never
// rendered to clients.
type Webhook struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	URL             string     `json:"url"`
	Events          []Event    `json:"events"`
	Secret          string     `json:"-"`
	Enabled         bool       `json:"enabled"`
	FailureCount    int        `json:"failure_count"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	LastStatusCode  *int       `json:"last_status_code,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Subscribes reports whether the webhook's event list contains e.
func (w Webhook) Subscribes(e Event) bool {
	return containsEvent(w.Events, e)
}

// HasSecret reports whether deliveries are signed.
func (w Webhook) HasSecret() bool { return w.Secret != "" }

// WebhookDelivery is one append-only audit row per delivery attempt.
type WebhookDelivery struct {
	ID           string          `json:"id"`
	WebhookID    string          `json:"webhook_id"`
	Event        Event           `json:"event"`
	Payload      json.RawMessage `json:"payload"`
	StatusCode   *int            `json:"status_code,omitempty"`
	ResponseBody string          `json:"response_body,omitempty"`
	Success      bool            `json:"success"`
	Error        string          `json:"error,omitempty"`
	DurationMs   int64           `json:"duration_ms"`
	AttemptedAt  time.Time       `json:"attempted_at"`
}
