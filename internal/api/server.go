// Package api serves the admin surface for channels, webhooks and event
// ingestion.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/leadhub/leadhub/internal/domain"
	"github.com/leadhub/leadhub/internal/logging"
	"github.com/leadhub/leadhub/internal/metrics"
	"github.com/leadhub/leadhub/internal/validate"
	"github.com/leadhub/leadhub/internal/webhook"
)

// Registry is the channel and webhook persistence behind the admin routes.
type Registry interface {
	ListChannels(ctx context.Context) ([]domain.Channel, error)
	GetChannel(ctx context.Context, id string) (*domain.Channel, error)
	CreateChannel(ctx context.Context, ch *domain.Channel) error
	UpdateChannel(ctx context.Context, id string, p validate.ChannelPatch) (*domain.Channel, error)
	DeleteChannel(ctx context.Context, id string) error

	ListWebhooks(ctx context.Context) ([]domain.Webhook, error)
	GetWebhook(ctx context.Context, id string) (*domain.Webhook, error)
	CreateWebhook(ctx context.Context, wh *domain.Webhook) error
	UpdateWebhook(ctx context.Context, id string, p validate.WebhookPatch) (*domain.Webhook, error)
	DeleteWebhook(ctx context.Context, id string) error
	ListDeliveries(ctx context.Context, webhookID string, limit int) ([]domain.WebhookDelivery, error)
}

type ChannelTester interface {
	SendTestNotification(ctx context.Context, channelID string) (*domain.ChannelResult, error)
}

type WebhookTester interface {
	TestWebhook(ctx context.Context, id string) (*webhook.Attempt, error)
}

type Publisher interface {
	Publish(ctx context.Context, event domain.Event, p domain.Payload) error
}

// Deps wires the server. Ready is optional and backs /healthz.
// DeliveryHistory is the default page size of the delivery log. Metrics
// mounts /metrics and /status.
type Deps struct {
	Registry        Registry
	Channels        ChannelTester
	Webhooks        WebhookTester
	Publisher       Publisher
	Ready           func(ctx context.Context) error
	DeliveryHistory int
	Metrics         bool
}

type Server struct {
	deps Deps
}

func NewServer(deps Deps) *Server {
	return &Server{deps: deps}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(accessLog)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.deps.Metrics {
		r.Handle("/metrics", metrics.PromHandler()).Methods(http.MethodGet)
		r.Handle("/status", metrics.JSONHandler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/channels", s.listChannels).Methods(http.MethodGet)
	api.HandleFunc("/channels", s.createChannel).Methods(http.MethodPost)
	api.HandleFunc("/channels/{id}", s.getChannel).Methods(http.MethodGet)
	api.HandleFunc("/channels/{id}", s.updateChannel).Methods(http.MethodPut)
	api.HandleFunc("/channels/{id}", s.deleteChannel).Methods(http.MethodDelete)
	api.HandleFunc("/channels/{id}/test", s.testChannel).Methods(http.MethodPost)

	api.HandleFunc("/webhooks", s.listWebhooks).Methods(http.MethodGet)
	api.HandleFunc("/webhooks", s.createWebhook).Methods(http.MethodPost)
	api.HandleFunc("/webhooks/{id}", s.getWebhook).Methods(http.MethodGet)
	api.HandleFunc("/webhooks/{id}", s.updateWebhook).Methods(http.MethodPut)
	api.HandleFunc("/webhooks/{id}", s.deleteWebhook).Methods(http.MethodDelete)
	api.HandleFunc("/webhooks/{id}/test", s.testWebhook).Methods(http.MethodPost)
	api.HandleFunc("/webhooks/{id}/deliveries", s.listDeliveries).Methods(http.MethodGet)

	api.HandleFunc("/events", s.publishEvent).Methods(http.MethodPost)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			logging.Get().Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.Get().Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}
