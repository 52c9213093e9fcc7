package api

import (
	"errors"
	"net/http"

	"github.com/leadhub/leadhub/internal/events"
	"github.com/leadhub/leadhub/internal/metrics"
)

// publishEvent accepts a lead event and returns before any delivery runs.
func (s *Server) publishEvent(w http.ResponseWriter, r *http.Request) {
	var msg events.Message
	if !decode(w, r, &msg) {
		return
	}
	if msg.Payload.Lead.ID == "" {
		writeFailure(w, fieldError("payload", "lead id is required"))
		return
	}
	if err := s.deps.Publisher.Publish(r.Context(), msg.Event, msg.Payload); err != nil {
		if errors.Is(err, events.ErrUnknownEvent) {
			writeFailure(w, fieldError("event", "must be a known lead event"))
			return
		}
		writeFailure(w, err)
		return
	}
	metrics.IncEventIngested("http")
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}
