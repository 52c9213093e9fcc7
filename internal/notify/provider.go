// Package notify delivers lead events to chat and email channels. It holds
// the provider adapters, the fixed provider registry and the Dispatcher that
// fans an event out to every subscribed channel.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/leadhub/leadhub/internal/domain"
)

// DefaultSendTimeout bounds every provider request.
const DefaultSendTimeout = 10 * time.Second

// maxProviderBody caps how much of a provider response is read.
const maxProviderBody = 64 << 10

// Provider delivers a payload to one kind of channel. Send never returns an
// error; every failure is reported through the DeliveryResult.
type Provider interface {
	Type() domain.ChannelType
	ValidateConfig(raw json.RawMessage) error
	Send(ctx context.Context, raw json.RawMessage, p domain.Payload) domain.DeliveryResult
}

// Options configures the adapters built by NewRegistry.
type Options struct {
	HTTPClient      *http.Client
	Timeout         time.Duration
	AppBaseURL      string
	TelegramAPIBase string
	EmailAPIBase    string
	EmailAPIKey     string
	EmailFrom       string
}

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultSendTimeout
	}
	if o.AppBaseURL == "" {
		o.AppBaseURL = domain.DefaultAppBaseURL
	}
	if o.TelegramAPIBase == "" {
		o.TelegramAPIBase = DefaultTelegramAPIBase
	}
	if o.EmailAPIBase == "" {
		o.EmailAPIBase = DefaultEmailAPIBase
	}
	if o.EmailFrom == "" {
		o.EmailFrom = DefaultEmailFrom
	}
	return o
}

// Registry maps channel types to adapters. It is built once and never
// mutated, so it is safe for concurrent use.
type Registry struct {
	providers map[domain.ChannelType]Provider
}

// NewRegistry builds the Discord, Telegram and Email adapters.
func NewRegistry(opts Options) *Registry {
	opts = opts.withDefaults()
	return newRegistry(
		NewDiscord(opts),
		NewTelegram(opts),
		NewEmail(opts),
	)
}

func newRegistry(providers ...Provider) *Registry {
	m := make(map[domain.ChannelType]Provider, len(providers))
	for _, p := range providers {
		m[p.Type()] = p
	}
	return &Registry{providers: m}
}

// Lookup returns the adapter for t.
func (r *Registry) Lookup(t domain.ChannelType) (Provider, bool) {
	p, ok := r.providers[t]
	return p, ok
}

// Types lists the registered channel types in sorted order.
func (r *Registry) Types() []domain.ChannelType {
	out := make([]domain.ChannelType, 0, len(r.providers))
	for t := range r.providers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// httpReply is the part of a provider response the adapters inspect.
type httpReply struct {
	status int
	header http.Header
	body   []byte
}

// postJSON sends data as JSON and reads a bounded amount of the reply.
// Transport failures are classified by transportError.
func postJSON(ctx context.Context, client *http.Client, provider, url string, timeout time.Duration, data interface{}) (*httpReply, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, configError("%s request could not be built: %v", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, transportError(provider, timeout, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))
	if err != nil {
		return nil, transportError(provider, timeout, err)
	}
	return &httpReply{status: resp.StatusCode, header: resp.Header, body: body}, nil
}
