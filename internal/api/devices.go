package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-sonos/internal/speaker"
)

// setPropertyRequest is the body of PUT /devices/{id}/properties/{name}.
type setPropertyRequest struct {
	Value any `json:"value"`
}

// handleListDevices returns the description of every attached speaker.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	speakers := s.registry.Speakers()
	devices := make([]speaker.Description, 0, len(speakers))
	for _, sp := range speakers {
		devices = append(devices, sp.Description())
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a speaker's description. With ?refresh=true the
// group action is rebuilt from the current topology first.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	sp, err := s.registry.Speaker(chi.URLParam(r, "id"))
	if err != nil {
		writeSpeakerError(w, err)
		return
	}

	if r.URL.Query().Get("refresh") == "true" {
		desc, err := sp.Describe(r.Context())
		if err != nil {
			writeSpeakerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, desc)
		return
	}
	writeJSON(w, http.StatusOK, sp.Description())
}

// handleRemoveDevice detaches a speaker and forgets its saved address.
func (s *Server) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.registry.RemoveDevice(r.Context(), id); err != nil {
		writeSpeakerError(w, err)
		return
	}
	s.logger.Info("speaker removed via API", "device_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListProperties(w http.ResponseWriter, r *http.Request) {
	sp, err := s.registry.Speaker(chi.URLParam(r, "id"))
	if err != nil {
		writeSpeakerError(w, err)
		return
	}
	props := sp.Properties()
	writeJSON(w, http.StatusOK, map[string]any{"properties": props, "count": len(props)})
}

func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	sp, err := s.registry.Speaker(chi.URLParam(r, "id"))
	if err != nil {
		writeSpeakerError(w, err)
		return
	}
	p, err := sp.Property(chi.URLParam(r, "name"))
	if err != nil {
		writeSpeakerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleSetProperty writes a property and returns the value the speaker
// settled on.
func (s *Server) handleSetProperty(w http.ResponseWriter, r *http.Request) {
	sp, err := s.registry.Speaker(chi.URLParam(r, "id"))
	if err != nil {
		writeSpeakerError(w, err)
		return
	}

	var req setPropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	name := chi.URLParam(r, "name")
	value, err := sp.SetValue(r.Context(), name, req.Value)
	if err != nil {
		writeSpeakerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "value": value})
}

// handlePerformAction runs an action. The body is the action's object
// input and may be empty. The action record is returned whether or not
// the action succeeded.
func (s *Server) handlePerformAction(w http.ResponseWriter, r *http.Request) {
	sp, err := s.registry.Speaker(chi.URLParam(r, "id"))
	if err != nil {
		writeSpeakerError(w, err)
		return
	}

	var input speaker.ActionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	rec, err := sp.PerformAction(r.Context(), chi.URLParam(r, "name"), input)
	if err != nil && rec.ID == "" {
		writeSpeakerError(w, err)
		return
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, rec)
}
