package validate

import (
	"encoding/json"
	"errors"
	"net/url"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/leadhub/leadhub/internal/domain"
)

const (
	msgHTTPSRequired = "URL must use HTTPS"
	msgPrivateHost   = "URL must not point to localhost or a private network address"
	minSecretLength  = 16
)

// privateHostPatterns is a lexical blocklist. Hostnames are not resolved, so a
// public name pointing at a private address is not caught here.
var privateHostPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^localhost$`),
	regexp.MustCompile(`^127\.`),
	regexp.MustCompile(`^10\.`),
	regexp.MustCompile(`^192\.168\.`),
	regexp.MustCompile(`^172\.(1[6-9]|2[0-9]|3[01])\.`),
	regexp.MustCompile(`^0\.`),
	regexp.MustCompile(`^::1$`),
}

// ChannelInput is the admin payload for creating a channel.
type ChannelInput struct {
	Type    domain.ChannelType `json:"type"`
	Name    string             `json:"name"`
	Config  json.RawMessage    `json:"config"`
	Events  []domain.Event     `json:"events"`
	Enabled *bool              `json:"enabled"`
}

// Validate checks every field and returns validation.Errors keyed by the
// JSON field name.
func (in ChannelInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Type,
			validation.Required.Error("type is required"),
			validation.In(domain.ChannelTypeValues()...).Error("must be one of discord, telegram, email"),
		),
		validation.Field(&in.Name, nameRules()...),
		validation.Field(&in.Events, eventRules()...),
		validation.Field(&in.Config, validation.By(func(interface{}) error {
			if !typeKnown(in.Type) {
				return nil
			}
			return ChannelConfig(in.Type, in.Config)
		})),
	)
}

// ChannelPatch is a partial channel update. The channel type is immutable, so
// a new config is checked against the stored type.
type ChannelPatch struct {
	Name    *string          `json:"name"`
	Config  *json.RawMessage `json:"config"`
	Events  *[]domain.Event  `json:"events"`
	Enabled *bool            `json:"enabled"`
}

// ValidateFor checks the patch against a channel of type t.
func (p ChannelPatch) ValidateFor(t domain.ChannelType) error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.When(p.Name != nil, nameRules()...)),
		validation.Field(&p.Events, validation.By(func(interface{}) error { return patchEvents(p.Events) })),
		validation.Field(&p.Config, validation.By(func(interface{}) error {
			if p.Config == nil {
				return nil
			}
			return ChannelConfig(t, *p.Config)
		})),
	)
}

// WebhookInput is the admin payload for creating a webhook.
type WebhookInput struct {
	Name    string         `json:"name"`
	URL     string         `json:"url"`
	Events  []domain.Event `json:"events"`
	Secret  string         `json:"secret"`
	Enabled *bool          `json:"enabled"`
}

func (in WebhookInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, nameRules()...),
		validation.Field(&in.URL, validation.Required.Error("URL is required"), validation.By(webhookURLRule)),
		validation.Field(&in.Events, eventRules()...),
		validation.Field(&in.Secret, secretRule()),
	)
}

// WebhookPatch is a partial webhook update. A nil Secret keeps the stored
// secret and an empty one clears it.
type WebhookPatch struct {
	Name    *string         `json:"name"`
	URL     *string         `json:"url"`
	Events  *[]domain.Event `json:"events"`
	Secret  *string         `json:"secret"`
	Enabled *bool           `json:"enabled"`
}

func (p WebhookPatch) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.When(p.Name != nil, nameRules()...)),
		validation.Field(&p.URL, validation.When(p.URL != nil,
			validation.Required.Error("URL is required"),
			validation.By(webhookURLRule),
		)),
		validation.Field(&p.Events, validation.By(func(interface{}) error { return patchEvents(p.Events) })),
		validation.Field(&p.Secret, secretRule()),
	)
}

// WebhookURL applies the admission rules for webhook targets: HTTPS only and
// no loopback, private or unspecified hosts.
func WebhookURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return errors.New("must be a valid URL")
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return errors.New(msgHTTPSRequired)
	}
	host := strings.ToLower(u.Hostname())
	for _, re := range privateHostPatterns {
		if re.MatchString(host) {
			return errors.New(msgPrivateHost)
		}
	}
	return nil
}

func webhookURLRule(value interface{}) error {
	v, _ := validation.Indirect(value)
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	return WebhookURL(s)
}

func nameRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("name is required"),
		validation.RuneLength(1, 100).Error("must be at most 100 characters"),
	}
}

func eventRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("at least one event is required"),
		validation.Each(
			validation.Required.Error("event name is required"),
			validation.In(domain.EventValues()...).Error("unknown event"),
		),
	}
}

func patchEvents(events *[]domain.Event) error {
	if events == nil {
		return nil
	}
	return validation.Validate(*events, eventRules()...)
}

func secretRule() validation.Rule {
	return validation.RuneLength(minSecretLength, 0).Error("secret must be at least 16 characters")
}

func typeKnown(t domain.ChannelType) bool {
	for _, v := range domain.ChannelTypeValues() {
		if v == t {
			return true
		}
	}
	return false
}
