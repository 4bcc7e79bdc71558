package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

// startPairingRequest is the optional body of POST /pairing.
type startPairingRequest struct {
	Duration int `json:"duration"` // seconds
}

func (s *Server) handleGetPairing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"pairing": s.registry.Pairing()})
}

// handleStartPairing opens a discovery window. Without a body the
// configured window is used.
func (s *Server) handleStartPairing(w http.ResponseWriter, r *http.Request) {
	var req startPairingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Duration < 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "duration must not be negative")
		return
	}

	window := s.pairingWindow
	if req.Duration > 0 {
		window = time.Duration(req.Duration) * time.Second
	}
	s.registry.StartPairing(window)
	s.logger.Info("pairing started via API", "window", window)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"pairing":  s.registry.Pairing(),
		"duration": int(window / time.Second),
	})
}

func (s *Server) handleCancelPairing(w http.ResponseWriter, _ *http.Request) {
	s.registry.CancelPairing()
	writeJSON(w, http.StatusOK, map[string]any{"pairing": s.registry.Pairing()})
}
