// Package domain holds the types shared by the notification dispatcher, the
// webhook engine and the admin surface: the event whitelist, the lead
// payload, channel and webhook records and delivery outcomes.
package domain

import "fmt"

// Event names a CRM domain event that destinations can subscribe to.
type Event string

const (
	EventLeadCreated       Event = "lead.created"
	EventLeadUpdated       Event = "lead.updated"
	EventLeadStatusChanged Event = "lead.status_changed"
	EventLeadDeleted       Event = "lead.deleted"
	EventLeadActivityAdded Event = "lead.activity_added"
)

// EventWebhookTest is the envelope event used by webhook test deliveries. It
// is not subscribable.
const EventWebhookTest Event = "webhook.test"

var allEvents = []Event{
	EventLeadCreated,
	EventLeadUpdated,
	EventLeadStatusChanged,
	EventLeadDeleted,
	EventLeadActivityAdded,
}

// AllEvents returns a copy of the subscribable event whitelist.
func AllEvents() []Event {
	out := make([]Event, len(allEvents))
	copy(out, allEvents)
	return out
}

// Valid reports whether e is on the whitelist.
func (e Event) Valid() bool {
	for _, known := range allEvents {
		if e == known {
			return true
		}
	}
	return false
}

func (e Event) String() string { return string(e) }

// ParseEvent converts s into a whitelisted Event.
func ParseEvent(s string) (Event, error) {
	e := Event(s)
	if !e.Valid() {
		return "", fmt.Errorf("unknown event %q", s)
	}
	return e, nil
}

// EventValues returns the whitelist boxed for use with validation.In.
func EventValues() []interface{} {
	out := make([]interface{}, 0, len(allEvents))
	for _, e := range allEvents {
		out = append(out, e)
	}
	return out
}
