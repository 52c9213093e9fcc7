package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/leadhub/leadhub/internal/domain"
	"github.com/leadhub/leadhub/internal/validate"
)

const (
	defaultDeliveryLimit = 50
	maxDeliveryLimit     = 200
)

type webhookView struct {
	domain.Webhook
	HasSecret bool `json:"has_secret"`
}

func viewOf(wh domain.Webhook) webhookView {
	return webhookView{Webhook: wh, HasSecret: wh.HasSecret()}
}

func (s *Server) listWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := s.deps.Registry.ListWebhooks(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	out := make([]webhookView, 0, len(hooks))
	for _, wh := range hooks {
		out = append(out, viewOf(wh))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createWebhook(w http.ResponseWriter, r *http.Request) {
	var in validate.WebhookInput
	if !decode(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		writeFailure(w, err)
		return
	}
	wh := &domain.Webhook{
		Name:    in.Name,
		URL:     in.URL,
		Events:  in.Events,
		Secret:  in.Secret,
		Enabled: in.Enabled == nil || *in.Enabled,
	}
	if err := s.deps.Registry.CreateWebhook(r.Context(), wh); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(*wh))
}

func (s *Server) getWebhook(w http.ResponseWriter, r *http.Request) {
	wh, err := s.deps.Registry.GetWebhook(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(*wh))
}

func (s *Server) updateWebhook(w http.ResponseWriter, r *http.Request) {
	var p validate.WebhookPatch
	if !decode(w, r, &p) {
		return
	}
	if err := p.Validate(); err != nil {
		writeFailure(w, err)
		return
	}
	wh, err := s.deps.Registry.UpdateWebhook(r.Context(), mux.Vars(r)["id"], p)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(*wh))
}

func (s *Server) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Registry.DeleteWebhook(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) testWebhook(w http.ResponseWriter, r *http.Request) {
	att, err := s.deps.Webhooks.TestWebhook(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeFailure(w, err)
		return
	}
	if att == nil {
		writeFailure(w, domain.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, att)
}

func (s *Server) listDeliveries(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	limit := s.deps.DeliveryHistory
	if limit <= 0 {
		limit = defaultDeliveryLimit
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeFailure(w, fieldError("limit", "must be a positive integer"))
			return
		}
		limit = min(n, maxDeliveryLimit)
	}
	if _, err := s.deps.Registry.GetWebhook(r.Context(), id); err != nil {
		writeFailure(w, err)
		return
	}
	deliveries, err := s.deps.Registry.ListDeliveries(r.Context(), id, limit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deliveries)
}
