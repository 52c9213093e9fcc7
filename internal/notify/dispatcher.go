package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/leadhub/leadhub/internal/domain"
	"github.com/leadhub/leadhub/internal/logging"
	"github.com/leadhub/leadhub/internal/metrics"
)

// ChannelSource resolves channels from the registry.
type ChannelSource interface {
	EnabledChannelsFor(ctx context.Context, e domain.Event) ([]domain.Channel, error)
	GetChannel(ctx context.Context, id string) (*domain.Channel, error)
}

// Dispatcher fans an event out to every enabled channel subscribed to it.
type Dispatcher struct {
	source    ChannelSource
	providers *Registry
	wg        sync.WaitGroup // in-flight DispatchAsync calls
}

func NewDispatcher(source ChannelSource, providers *Registry) *Dispatcher {
	return &Dispatcher{source: source, providers: providers}
}

// Dispatch delivers p to all matching channels concurrently and returns one
// result per channel in registry order. Legs run detached from ctx's
// cancellation and are bounded only by their own provider timeout. The
// returned error is non-nil only when the channel registry cannot be read.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.Event, p domain.Payload) ([]domain.ChannelResult, error) {
	if !event.Valid() {
		logging.Get().Warn().Str("event", string(event)).Msg("dispatch skipped: unknown event")
		metrics.IncDispatchSkipped("unknown_event")
		return []domain.ChannelResult{}, nil
	}
	channels, err := d.source.EnabledChannelsFor(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("load channels for %s: %w", event, err)
	}

	targets := make([]domain.Channel, 0, len(channels))
	for _, ch := range channels {
		if ch.Enabled && ch.Subscribes(event) {
			targets = append(targets, ch)
		}
	}
	if len(targets) == 0 {
		logging.Get().Debug().Str("event", string(event)).Msg("no channels subscribed")
		metrics.IncDispatchSkipped("no_channels")
		return []domain.ChannelResult{}, nil
	}

	legCtx := context.WithoutCancel(ctx)
	results := make([]domain.ChannelResult, len(targets))
	var wg sync.WaitGroup
	for i, ch := range targets {
		wg.Add(1)
		go func(i int, ch domain.Channel) {
			defer wg.Done()
			results[i] = d.deliver(legCtx, ch, p)
		}(i, ch)
	}
	wg.Wait()
	return results, nil
}

// DispatchAsync runs Dispatch in the background. It never blocks the caller
// and every failure, including panics, ends at this boundary as a log line.
func (d *Dispatcher) DispatchAsync(ctx context.Context, event domain.Event, p domain.Payload) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logging.Get().Error().Str("event", string(event)).Interface("panic", r).Msg("notification dispatch panicked")
			}
		}()
		if _, err := d.Dispatch(ctx, event, p); err != nil {
			logging.Get().Error().Err(err).Str("event", string(event)).Msg("notification dispatch failed")
		}
	}()
}

// Wait blocks until background dispatches finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendTestNotification delivers a synthetic new-lead event to one channel,
// enabled or not. An unknown id yields (nil, nil) without any network call.
func (d *Dispatcher) SendTestNotification(ctx context.Context, channelID string) (*domain.ChannelResult, error) {
	ch, err := d.source.GetChannel(ctx, channelID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && ch == nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load channel %s: %w", channelID, err)
	}
	res := d.deliver(ctx, *ch, domain.NewLeadCreatedPayload(domain.SampleLead()))
	return &res, nil
}

func (d *Dispatcher) deliver(ctx context.Context, ch domain.Channel, p domain.Payload) (res domain.ChannelResult) {
	res = domain.ChannelResult{ChannelID: ch.ID, ChannelName: ch.Name, ChannelType: ch.Type}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.DeliveryResult = domain.DeliveryResult{
				Error:      fmt.Sprintf("delivery panicked: %v", r),
				DurationMs: sinceMs(start),
			}
		}
		logResult(p.Event, res)
		metrics.RecordNotification(string(ch.Type), res.Success, time.Duration(res.DurationMs)*time.Millisecond)
	}()

	provider, ok := d.providers.Lookup(ch.Type)
	if !ok {
		res.DeliveryResult = domain.DeliveryResult{
			Error:      fmt.Sprintf("Unknown channel type: %s", ch.Type),
			DurationMs: sinceMs(start),
		}
		return res
	}
	res.DeliveryResult = provider.Send(ctx, ch.Config, p)
	return res
}

func logResult(event domain.Event, res domain.ChannelResult) {
	l := logging.Get()
	if res.Success {
		l.Info().
			Str("event", string(event)).
			Str("channel_id", res.ChannelID).
			Str("channel_type", string(res.ChannelType)).
			Int64("duration_ms", res.DurationMs).
			Msg("notification delivered")
		return
	}
	l.Warn().
		Str("event", string(event)).
		Str("channel_id", res.ChannelID).
		Str("channel", res.ChannelName).
		Str("channel_type", string(res.ChannelType)).
		Int("status", res.StatusCode).
		Int64("duration_ms", res.DurationMs).
		Str("error", res.Error).
		Msg("notification failed")
}
