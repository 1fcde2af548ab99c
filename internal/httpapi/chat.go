package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ewrenn/greenie/internal/engine"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req engine.TurnRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}
	req.Owner = owner(r)

	res, err := s.engine.Respond(r.Context(), req)
	if err != nil {
		respondTurnError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// SSE event payloads.
type streamDelta struct {
	Delta string `json:"delta"`
}

type streamError struct {
	Error       string   `json:"error"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req engine.TurnRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}
	req.Owner = owner(r)

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support flushing")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	res, err := s.engine.RespondStream(r.Context(), req, func(fragment string) error {
		if err := writeSSE(w, "", streamDelta{Delta: fragment}); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// Headers are gone; the failure travels in-band.
		f := turnError(err)
		_ = writeSSE(w, "error", streamError{Error: f.Code, Message: f.Message, Suggestions: f.Suggestions})
		flusher.Flush()
		return
	}

	_ = writeSSE(w, "done", res)
	flusher.Flush()
}

// writeSSE emits one server-sent event. The payload is JSON-encoded, so
// embedded newlines can never break the framing.
func writeSSE(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := w.Write([]byte("event: " + event + "\n")); err != nil {
			return err
		}
	}
	_, err = w.Write(append(append([]byte("data: "), data...), '\n', '\n'))
	return err
}
