// Package daemon wires the registry, the notification dispatcher, the webhook
// engine and the event sources into one long-running process.
package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/leadhub/leadhub/internal/api"
	"github.com/leadhub/leadhub/internal/config"
	"github.com/leadhub/leadhub/internal/events"
	"github.com/leadhub/leadhub/internal/logging"
	"github.com/leadhub/leadhub/internal/metrics"
	"github.com/leadhub/leadhub/internal/notify"
	"github.com/leadhub/leadhub/internal/store"
	"github.com/leadhub/leadhub/internal/webhook"
)

// Daemon serves the admin API, consumes lead events and prunes the delivery
// log until stopped.
type Daemon struct {
	cfg   *config.Config
	store *store.Store

	Dispatcher *notify.Dispatcher
	Webhooks   *webhook.Engine
	Triggers   *events.Triggers

	consumer *events.Consumer
	server   *http.Server
	addr     net.Addr
	started  chan struct{}

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup // background loops
	ctx      context.Context
	cancel   context.CancelFunc
	Now      func() time.Time // injectable clock for testing
}

// New builds a daemon around an opened and migrated store.
func New(cfg *config.Config, st *store.Store) *Daemon {
	providers := notify.NewRegistry(notify.Options{
		Timeout:         cfg.NotificationTimeout,
		AppBaseURL:      cfg.AppBaseURL,
		TelegramAPIBase: cfg.TelegramAPIBase,
		EmailAPIBase:    cfg.EmailAPIBase,
		EmailAPIKey:     cfg.EmailAPIKey,
		EmailFrom:       cfg.EmailFrom,
	})
	d := &Daemon{
		cfg:        cfg,
		store:      st,
		Dispatcher: notify.NewDispatcher(st, providers),
		Webhooks:   webhook.NewEngine(st, webhook.WithTimeout(cfg.WebhookTimeout)),
		started:    make(chan struct{}),
		quit:       make(chan struct{}),
		Now:        time.Now,
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.Triggers = events.NewTriggers(d.Dispatcher, d.Webhooks)

	if cfg.KafkaEnabled() {
		d.consumer = events.NewConsumer(events.ConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, d.Triggers)
	}

	d.server = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	for _, w := range cfg.Validate() {
		logging.Get().Warn().Str("warning", w).Msg("config validation")
	}
	return d
}

// Handler returns the admin router.
func (d *Daemon) Handler() http.Handler {
	return api.NewServer(api.Deps{
		Registry:        d.store,
		Channels:        d.Dispatcher,
		Webhooks:        d.Webhooks,
		Publisher:       d.Triggers,
		Ready:           d.store.Ping,
		DeliveryHistory: d.cfg.DeliveryHistory,
		Metrics:         d.cfg.MetricsEnabled,
	}).Handler()
}

// Addr blocks until Start has bound the listener and returns its address.
// It returns nil if the listen failed.
func (d *Daemon) Addr() net.Addr {
	<-d.started
	return d.addr
}

// Start listens on the configured address and blocks until Stop is called or
// the listener fails.
func (d *Daemon) Start() error {
	ln, err := net.Listen("tcp", d.cfg.HTTPAddr)
	if err != nil {
		close(d.started)
		return err
	}
	d.addr = ln.Addr()
	close(d.started)
	logging.Get().Info().Str("addr", d.addr.String()).Msg("starting leadhub daemon")

	ctx := d.ctx
	serveErr := make(chan error, 1)
	go func() {
		if err := d.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	if d.consumer != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			logging.Get().Info().Strs("brokers", d.cfg.KafkaBrokers).Str("topic", d.cfg.KafkaTopic).Msg("consuming lead events")
			if err := d.consumer.Run(ctx); err != nil {
				logging.Get().Error().Err(err).Msg("kafka consumer stopped")
			}
		}()
	}

	if d.cfg.InfluxURL != "" {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			metrics.StartInfluxPusher(ctx, metrics.InfluxConfig{
				URL:      d.cfg.InfluxURL,
				Token:    d.cfg.InfluxToken,
				Org:      d.cfg.InfluxOrg,
				Bucket:   d.cfg.InfluxBucket,
				Interval: d.cfg.InfluxInterval,
			})
		}()
	}

	var tick <-chan time.Time
	if d.cfg.DeliveryRetention > 0 && d.cfg.PruneInterval > 0 {
		ticker := time.NewTicker(d.cfg.PruneInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-tick:
			d.wg.Add(1)
			d.PruneOnce(ctx)
			d.wg.Done()
		case err := <-serveErr:
			logging.Get().Error().Err(err).Msg("admin listener failed")
			return err
		case <-d.quit:
			logging.Get().Info().Msg("stopping daemon")
			return nil
		}
	}
}

// PruneOnce removes delivery log rows older than the retention window.
func (d *Daemon) PruneOnce(ctx context.Context) {
	if d.cfg.DeliveryRetention <= 0 {
		return
	}
	cutoff := d.Now().UTC().Add(-d.cfg.DeliveryRetention)
	n, err := d.store.PruneDeliveries(ctx, cutoff)
	if err != nil {
		logging.Get().Warn().Err(err).Msg("pruning webhook deliveries failed")
		return
	}
	if n > 0 {
		logging.Get().Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("pruned webhook deliveries")
	}
}

// Stop shuts the listener down, stops background loops and waits for
// in-flight deliveries until ctx is done.
func (d *Daemon) Stop(ctx context.Context) {
	d.stopOnce.Do(func() {
		close(d.quit)
		if err := d.server.Shutdown(ctx); err != nil {
			logging.Get().Warn().Err(err).Msg("admin listener shutdown incomplete")
		}
		d.cancel()

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			logging.Get().Warn().Msg("shutdown timeout exceeded, background loops still running")
		}

		if d.consumer != nil {
			if err := d.consumer.Close(); err != nil {
				logging.Get().Warn().Err(err).Msg("closing kafka reader")
			}
		}

		if err := d.Dispatcher.Wait(ctx); err != nil {
			logging.Get().Warn().Err(err).Msg("timed out waiting for notifications to finish")
		}
		if err := d.Webhooks.Wait(ctx); err != nil {
			logging.Get().Warn().Err(err).Msg("timed out waiting for webhook deliveries to finish")
		}
		logging.Get().Info().Msg("all active operations completed")
	})
}
