// Package metrics provides counters, Prometheus collectors, and HTTP
// handlers for exporting leadhub delivery metrics.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Internal state, read by GetSnapshot and the Influx pusher.
var (
	notificationsSent   int64
	notificationsFailed int64
	webhooksDelivered   int64
	webhooksFailed      int64
	dispatchSkipped     int64
	eventsIngested      int64
	lastDelivery        int64
)

const counterInc int64 = 1

var durationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

var (
	promNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadhub_notifications_total",
			Help: "Channel notification attempts by channel type and outcome",
		},
		[]string{"channel_type", "status"},
	)
	promNotificationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadhub_notification_errors_total",
			Help: "Failed channel notifications by error kind",
		},
		[]string{"kind"},
	)
	promWebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadhub_webhook_deliveries_total",
			Help: "Webhook delivery attempts by outcome",
		},
		[]string{"status"},
	)
	promDispatchSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadhub_dispatch_skipped_total",
			Help: "Dispatches that delivered nothing, by reason",
		},
		[]string{"reason"},
	)
	promEventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadhub_events_ingested_total",
			Help: "Domain events received by source",
		},
		[]string{"source"},
	)
	promDeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadhub_delivery_duration_seconds",
			Help:    "Duration of outbound deliveries",
			Buckets: durationBuckets,
		},
		[]string{"kind"},
	)
	promLastDelivery = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "leadhub_last_delivery_timestamp_seconds",
			Help: "Unix timestamp of the last outbound delivery attempt",
		},
	)
)

func init() {
	prometheus.MustRegister(
		promNotifications,
		promNotificationErrors,
		promWebhookDeliveries,
		promDispatchSkipped,
		promEventsIngested,
		promDeliveryDuration,
		promLastDelivery,
	)
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordNotification counts one channel delivery and observes its duration.
func RecordNotification(channelType string, success bool, d time.Duration) {
	if success {
		atomic.AddInt64(&notificationsSent, counterInc)
	} else {
		atomic.AddInt64(&notificationsFailed, counterInc)
	}
	promNotifications.WithLabelValues(channelType, statusLabel(success)).Inc()
	promDeliveryDuration.WithLabelValues("notification").Observe(d.Seconds())
	touchLastDelivery()
}

// IncNotificationError counts a failed notification by error kind.
func IncNotificationError(kind string) {
	promNotificationErrors.WithLabelValues(kind).Inc()
}

// RecordWebhookDelivery counts one webhook attempt and observes its duration.
func RecordWebhookDelivery(success bool, d time.Duration) {
	if success {
		atomic.AddInt64(&webhooksDelivered, counterInc)
	} else {
		atomic.AddInt64(&webhooksFailed, counterInc)
	}
	promWebhookDeliveries.WithLabelValues(statusLabel(success)).Inc()
	promDeliveryDuration.WithLabelValues("webhook").Observe(d.Seconds())
	touchLastDelivery()
}

// IncDispatchSkipped counts a dispatch that had nothing to deliver.
func IncDispatchSkipped(reason string) {
	atomic.AddInt64(&dispatchSkipped, counterInc)
	promDispatchSkipped.WithLabelValues(reason).Inc()
}

// IncEventIngested counts a domain event accepted from source ("api",
// "kafka", "cli").
func IncEventIngested(source string) {
	atomic.AddInt64(&eventsIngested, counterInc)
	promEventsIngested.WithLabelValues(source).Inc()
}

func touchLastDelivery() {
	now := time.Now().Unix()
	atomic.StoreInt64(&lastDelivery, now)
	promLastDelivery.Set(float64(now))
}

// StatsSnapshot is a snapshot of metrics for JSON encoding.
type StatsSnapshot struct {
	NotificationsSent   int64  `json:"notifications_sent"`
	NotificationsFailed int64  `json:"notifications_failed"`
	WebhooksDelivered   int64  `json:"webhooks_delivered"`
	WebhooksFailed      int64  `json:"webhooks_failed"`
	DispatchSkipped     int64  `json:"dispatch_skipped"`
	EventsIngested      int64  `json:"events_ingested"`
	LastDelivery        int64  `json:"last_delivery_timestamp"`
	LastDeliveryHuman   string `json:"last_delivery_human,omitempty"`
}

// GetSnapshot returns the current values of all internal counters.
func GetSnapshot() StatsSnapshot {
	ts := atomic.LoadInt64(&lastDelivery)
	s := StatsSnapshot{
		NotificationsSent:   atomic.LoadInt64(&notificationsSent),
		NotificationsFailed: atomic.LoadInt64(&notificationsFailed),
		WebhooksDelivered:   atomic.LoadInt64(&webhooksDelivered),
		WebhooksFailed:      atomic.LoadInt64(&webhooksFailed),
		DispatchSkipped:     atomic.LoadInt64(&dispatchSkipped),
		EventsIngested:      atomic.LoadInt64(&eventsIngested),
		LastDelivery:        ts,
	}
	if ts > 0 {
		s.LastDeliveryHuman = time.Unix(ts, 0).UTC().Format(time.RFC3339)
	}
	return s
}

// PromHandler returns an HTTP handler that exposes Prometheus metrics.
func PromHandler() http.Handler { return promhttp.Handler() }

// JSONHandler serves the current StatsSnapshot as JSON.
func JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(GetSnapshot())
	})
}
