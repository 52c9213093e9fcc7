package domain

import (
	"strings"
	"time"
)

// DefaultAppBaseURL is used for deep links when no base URL is configured.
const DefaultAppBaseURL = "https://app.leadhub.io"

// Lead is the snapshot of a lead carried by every event. Pointer fields are
// optional and omitted from formatted messages when nil or blank.
type Lead struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Company     *string   `json:"company,omitempty"`
	Phone       *string   `json:"phone,omitempty"`
	Budget      *string   `json:"budget,omitempty"`
	ProjectType *string   `json:"projectType,omitempty"`
	Source      *string   `json:"source,omitempty"`
	Message     string    `json:"message"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Activity is a note or interaction logged against a lead.
type Activity struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"createdAt"`
}

// Payload is the event data handed to providers and webhooks. Which optional
// members are set depends on Event.
type Payload struct {
	Event          Event     `json:"event"`
	Lead           Lead      `json:"lead"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	NewStatus      string    `json:"newStatus,omitempty"`
	Activity       *Activity `json:"activity,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// IsStatusChange reports whether the payload describes a status transition.
func (p Payload) IsStatusChange() bool {
	return p.Event == EventLeadStatusChanged
}

var nowFunc = time.Now

func NewLeadCreatedPayload(lead Lead) Payload {
	return Payload{Event: EventLeadCreated, Lead: lead, Timestamp: nowFunc().UTC()}
}

func NewLeadUpdatedPayload(lead Lead) Payload {
	return Payload{Event: EventLeadUpdated, Lead: lead, Timestamp: nowFunc().UTC()}
}

func NewLeadStatusChangedPayload(lead Lead, previous, next string) Payload {
	return Payload{
		Event:          EventLeadStatusChanged,
		Lead:           lead,
		PreviousStatus: previous,
		NewStatus:      next,
		Timestamp:      nowFunc().UTC(),
	}
}

func NewLeadDeletedPayload(lead Lead) Payload {
	return Payload{Event: EventLeadDeleted, Lead: lead, Timestamp: nowFunc().UTC()}
}

func NewActivityAddedPayload(lead Lead, activity Activity) Payload {
	return Payload{Event: EventLeadActivityAdded, Lead: lead, Activity: &activity, Timestamp: nowFunc().UTC()}
}

// SampleLead returns the synthetic lead used by channel and webhook tests.
func SampleLead() Lead {
	return Lead{
		ID:          "test-lead-0000",
		Name:        "Test Lead",
		Email:       "test.lead@example.com",
		Company:     StringPtr("Example Co"),
		Phone:       StringPtr("+1 555 0100"),
		Budget:      StringPtr("$10k - $25k"),
		ProjectType: StringPtr("Website"),
		Source:      StringPtr("Test notification"),
		Message:     "This is a test notification sent from the integrations settings page.",
		Status:      "new",
		CreatedAt:   nowFunc().UTC(),
	}
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// Value returns the trimmed content of an optional field and whether it is
// worth rendering.
func Value(p *string) (string, bool) {
	if p == nil {
		return "", false
	}
	v := strings.TrimSpace(*p)
	return v, v != ""
}

// LeadURL builds the deep link to a lead in the CRM UI.
func LeadURL(baseURL, leadID string) string {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultAppBaseURL
	}
	return strings.TrimRight(baseURL, "/") + "/leads/" + leadID
}
