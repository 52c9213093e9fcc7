// Package events turns CRM lead changes into notification and webhook fan-out.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leadhub/leadhub/internal/domain"
	"github.com/leadhub/leadhub/internal/logging"
	"github.com/leadhub/leadhub/internal/metrics"
)

var ErrUnknownEvent = errors.New("unknown event")

// Sink receives every published event. Both the notification dispatcher and
// the webhook engine satisfy it.
type Sink interface {
	DispatchAsync(ctx context.Context, event domain.Event, p domain.Payload)
}

// Triggers is the entry point the lead handlers call after a write commits.
// Calls return immediately; delivery happens in the sinks' background work.
type Triggers struct {
	sinks []Sink
}

func NewTriggers(sinks ...Sink) *Triggers {
	return &Triggers{sinks: sinks}
}

func (t *Triggers) LeadCreated(ctx context.Context, lead domain.Lead) {
	t.fanOut(ctx, domain.NewLeadCreatedPayload(lead))
}

func (t *Triggers) LeadUpdated(ctx context.Context, lead domain.Lead) {
	t.fanOut(ctx, domain.NewLeadUpdatedPayload(lead))
}

// LeadStatusChanged is a no-op when the status did not actually move.
func (t *Triggers) LeadStatusChanged(ctx context.Context, lead domain.Lead, previous, next string) {
	if previous == next {
		metrics.IncDispatchSkipped("status_unchanged")
		return
	}
	t.fanOut(ctx, domain.NewLeadStatusChangedPayload(lead, previous, next))
}

func (t *Triggers) LeadDeleted(ctx context.Context, lead domain.Lead) {
	t.fanOut(ctx, domain.NewLeadDeletedPayload(lead))
}

func (t *Triggers) ActivityAdded(ctx context.Context, lead domain.Lead, activity domain.Activity) {
	t.fanOut(ctx, domain.NewActivityAddedPayload(lead, activity))
}

// Publish routes an externally built payload. The event must be on the
// whitelist; the payload's own event field is overwritten with it.
func (t *Triggers) Publish(ctx context.Context, event domain.Event, p domain.Payload) error {
	if !event.Valid() {
		metrics.IncDispatchSkipped("unknown_event")
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	p.Event = event
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	t.fanOut(ctx, p)
	return nil
}

func (t *Triggers) fanOut(ctx context.Context, p domain.Payload) {
	logging.Get().Debug().Str("event", string(p.Event)).Str("lead_id", p.Lead.ID).Int("sinks", len(t.sinks)).Msg("publishing lead event")
	for _, s := range t.sinks {
		s.DispatchAsync(ctx, p.Event, p)
	}
}
