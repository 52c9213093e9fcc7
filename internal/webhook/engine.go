// Package webhook delivers signed JSON envelopes to user-registered HTTPS
// endpoints and keeps an audit row for every attempt.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leadhub/leadhub/internal/domain"
	"github.com/leadhub/leadhub/internal/logging"
	"github.com/leadhub/leadhub/internal/metrics"
)

const (
	// DefaultTimeout bounds a single delivery.
	DefaultTimeout = 30 * time.Second
	// UserAgent identifies leadhub to receivers.
	UserAgent = "Leadhub-Webhooks/1.0"

	HeaderID        = "X-Webhook-ID"
	HeaderEvent     = "X-Webhook-Event"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderSignature = "X-Webhook-Signature"

	maxReadBody = 64 << 10
)

// Store is the persistence the engine needs.
type Store interface {
	EnabledWebhooksFor(ctx context.Context, e domain.Event) ([]domain.Webhook, error)
	GetWebhook(ctx context.Context, id string) (*domain.Webhook, error)
	RecordDelivery(ctx context.Context, d *domain.WebhookDelivery) error
	RecordAttemptOutcome(ctx context.Context, id string, status *int, success bool, at time.Time) error
}

// Envelope is the JSON document POSTed to receivers.
type Envelope struct {
	ID        string       `json:"id"`
	Event     domain.Event `json:"event"`
	Timestamp string       `json:"timestamp"`
	Data      interface{}  `json:"data"`
}

// EventData is the envelope data for lead events.
type EventData struct {
	Lead           domain.Lead      `json:"lead"`
	PreviousStatus string           `json:"previousStatus,omitempty"`
	NewStatus      string           `json:"newStatus,omitempty"`
	Activity       *domain.Activity `json:"activity,omitempty"`
}

// DataFromPayload extracts the envelope data from an event payload.
func DataFromPayload(p domain.Payload) EventData {
	return EventData{Lead: p.Lead, PreviousStatus: p.PreviousStatus, NewStatus: p.NewStatus, Activity: p.Activity}
}

// Attempt is the outcome of one delivery.
type Attempt struct {
	DeliveryID   string `json:"deliveryId"`
	Success      bool   `json:"success"`
	StatusCode   int    `json:"statusCode,omitempty"`
	ResponseBody string `json:"responseBody,omitempty"`
	Error        string `json:"error,omitempty"`
	DurationMs   int64  `json:"durationMs"`
}

// Engine builds, signs, sends and records webhook deliveries.
type Engine struct {
	store   Store
	client  *http.Client
	timeout time.Duration
	now     func() time.Time
	newID   func() string
	wg      sync.WaitGroup
}

// Option customizes an Engine.
type Option func(*Engine)

func WithHTTPClient(c *http.Client) Option { return func(e *Engine) { e.client = c } }

func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		client:  &http.Client{},
		timeout: DefaultTimeout,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Deliver sends one envelope to wh and records the attempt. The target URL
// is used as stored; admission checks happen when the webhook is saved.
func (e *Engine) Deliver(ctx context.Context, wh domain.Webhook, event domain.Event, data interface{}) Attempt {
	sentAt := e.now().UTC()
	env := Envelope{ID: e.newID(), Event: event, Timestamp: sentAt.Format(time.RFC3339Nano), Data: data}
	body, err := json.Marshal(env)
	if err != nil {
		// nothing was sent, so nothing is audited
		return Attempt{Error: fmt.Sprintf("encode envelope: %v", err)}
	}

	start := time.Now()
	att := e.post(ctx, wh, env, body, sentAt)
	att.DurationMs = time.Since(start).Milliseconds()
	att.DeliveryID = env.ID

	e.record(wh, event, body, att, sentAt)
	return att
}

func (e *Engine) post(ctx context.Context, wh domain.Webhook, env Envelope, body []byte, sentAt time.Time) Attempt {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return Attempt{Error: fmt.Sprintf("invalid webhook request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(HeaderID, env.ID)
	req.Header.Set(HeaderEvent, string(env.Event))
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(sentAt.Unix(), 10))
	if wh.HasSecret() {
		req.Header.Set(HeaderSignature, SignatureHeaderValue(wh.Secret, body))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return Attempt{Error: fmt.Sprintf("Request timed out after %s", e.timeout)}
		}
		return Attempt{Error: err.Error()}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxReadBody))
	att := Attempt{
		StatusCode:   resp.StatusCode,
		ResponseBody: domain.Truncate(string(raw), domain.MaxResponseBody),
		Success:      resp.StatusCode >= 200 && resp.StatusCode < 300,
	}
	if !att.Success {
		att.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return att
}

// record persists the audit row and the webhook's last-attempt fields.
// Persistence failures are logged and never change the attempt outcome.
func (e *Engine) record(wh domain.Webhook, event domain.Event, body []byte, att Attempt, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var status *int
	if att.StatusCode != 0 {
		s := att.StatusCode
		status = &s
	}
	row := &domain.WebhookDelivery{
		ID:           att.DeliveryID,
		WebhookID:    wh.ID,
		Event:        event,
		Payload:      json.RawMessage(body),
		StatusCode:   status,
		ResponseBody: att.ResponseBody,
		Success:      att.Success,
		Error:        att.Error,
		DurationMs:   att.DurationMs,
		AttemptedAt:  at,
	}
	log := logging.Get()
	if err := e.store.RecordDelivery(ctx, row); err != nil {
		log.Error().Err(err).Str("webhook_id", wh.ID).Msg("failed to record webhook delivery")
	}
	if err := e.store.RecordAttemptOutcome(ctx, wh.ID, status, att.Success, at); err != nil {
		log.Error().Err(err).Str("webhook_id", wh.ID).Msg("failed to update webhook status")
	}
	metrics.RecordWebhookDelivery(att.Success, time.Duration(att.DurationMs)*time.Millisecond)

	ev := log.Info()
	if !att.Success {
		ev = log.Warn().Str("error", att.Error)
	}
	ev.Str("webhook_id", wh.ID).
		Str("event", string(event)).
		Int("status", att.StatusCode).
		Int64("duration_ms", att.DurationMs).
		Msg("webhook delivery")
}

// DispatchAsync delivers p to every enabled webhook subscribed to event in
// the background. Errors end here as log lines.
func (e *Engine) DispatchAsync(ctx context.Context, event domain.Event, p domain.Payload) {
	ctx = context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logging.Get().Error().Str("event", string(event)).Interface("panic", r).Msg("webhook dispatch panicked")
			}
		}()
		if _, err := e.Dispatch(ctx, event, p); err != nil {
			logging.Get().Error().Err(err).Str("event", string(event)).Msg("webhook dispatch failed")
		}
	}()
}

// Dispatch delivers p to every matching webhook concurrently and returns the
// attempts in registry order.
func (e *Engine) Dispatch(ctx context.Context, event domain.Event, p domain.Payload) ([]Attempt, error) {
	if !event.Valid() {
		logging.Get().Warn().Str("event", string(event)).Msg("webhook dispatch skipped: unknown event")
		return []Attempt{}, nil
	}
	hooks, err := e.store.EnabledWebhooksFor(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("load webhooks for %s: %w", event, err)
	}
	targets := make([]domain.Webhook, 0, len(hooks))
	for _, wh := range hooks {
		if wh.Enabled && wh.Subscribes(event) {
			targets = append(targets, wh)
		}
	}

	data := DataFromPayload(p)
	attempts := make([]Attempt, len(targets))
	var wg sync.WaitGroup
	for i, wh := range targets {
		wg.Add(1)
		go func(i int, wh domain.Webhook) {
			defer wg.Done()
			attempts[i] = e.Deliver(ctx, wh, event, data)
		}(i, wh)
	}
	wg.Wait()
	return attempts, nil
}

// TestWebhook sends a synthetic lead to one webhook through the normal
// delivery path. An unknown id yields (nil, nil).
func (e *Engine) TestWebhook(ctx context.Context, id string) (*Attempt, error) {
	wh, err := e.store.GetWebhook(ctx, id)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && wh == nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load webhook %s: %w", id, err)
	}
	att := e.Deliver(ctx, *wh, domain.EventWebhookTest, EventData{Lead: domain.SampleLead()})
	return &att, nil
}

// Wait blocks until background dispatches finish or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
