package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/leadhub/leadhub/internal/domain"
	"github.com/leadhub/leadhub/internal/validate"
)

func (s *Server) listChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.deps.Registry.ListChannels(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

func (s *Server) createChannel(w http.ResponseWriter, r *http.Request) {
	var in validate.ChannelInput
	if !decode(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		writeFailure(w, err)
		return
	}
	ch := &domain.Channel{
		Type:    in.Type,
		Name:    in.Name,
		Config:  in.Config,
		Events:  in.Events,
		Enabled: in.Enabled == nil || *in.Enabled,
	}
	if err := s.deps.Registry.CreateChannel(r.Context(), ch); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (s *Server) getChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := s.deps.Registry.GetChannel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

type channelUpdate struct {
	validate.ChannelPatch
	Type *domain.ChannelType `json:"type"`
}

func (s *Server) updateChannel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in channelUpdate
	if !decode(w, r, &in) {
		return
	}
	current, err := s.deps.Registry.GetChannel(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if in.Type != nil && *in.Type != current.Type {
		writeFailure(w, fieldError("type", "channel type cannot be changed"))
		return
	}
	if err := in.ChannelPatch.ValidateFor(current.Type); err != nil {
		writeFailure(w, err)
		return
	}
	ch, err := s.deps.Registry.UpdateChannel(r.Context(), id, in.ChannelPatch)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) deleteChannel(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Registry.DeleteChannel(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// testChannel sends a sample new-lead notification whether or not the channel
// is enabled.
func (s *Server) testChannel(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Channels.SendTestNotification(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeFailure(w, err)
		return
	}
	if res == nil {
		writeFailure(w, domain.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
