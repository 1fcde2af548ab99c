package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

type addMemoryRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleAddMemory(w http.ResponseWriter, r *http.Request) {
	var req addMemoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	if err := s.store.AddMemory(r.Context(), owner(r), req.Text); err != nil {
		respondTurnError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"status": "saved"})
}

func (s *Server) handleRecentMemories(w http.ResponseWriter, r *http.Request) {
	n := s.cfg.RecentN
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "n must be a non-negative integer")
			return
		}
		n = parsed
	}
	memories, err := s.store.RecentMemories(r.Context(), owner(r), n)
	if err != nil {
		respondTurnError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"memories": emptyIfNil(memories)})
}

func (s *Server) handleClearMemories(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ClearMemories(r.Context(), owner(r)); err != nil {
		respondTurnError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
}

type addKnowledgeRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

func (s *Server) handleAddKnowledge(w http.ResponseWriter, r *http.Request) {
	var req addKnowledgeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}
	if err := s.store.AddKnowledge(r.Context(), owner(r), req.Name, req.Description, req.Keywords); err != nil {
		respondTurnError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"status": "saved"})
}

type searchKnowledgeRequest struct {
	Query string `json:"query"`
	N     int    `json:"n"`
}

func (s *Server) handleSearchKnowledge(w http.ResponseWriter, r *http.Request) {
	var req searchKnowledgeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}
	if req.N <= 0 {
		req.N = s.cfg.KnowledgeN
	}
	entries, err := s.store.SearchKnowledge(r.Context(), owner(r), req.Query, req.N)
	if err != nil {
		respondTurnError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": emptyIfNil(entries)})
}

func (s *Server) handleListKnowledge(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListKnowledge(r.Context(), owner(r))
	if err != nil {
		respondTurnError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": emptyIfNil(entries)})
}

func (s *Server) handleGetTopic(w http.ResponseWriter, r *http.Request) {
	topic := s.engine.Topic(owner(r))
	if topic == "" {
		respondJSON(w, http.StatusOK, map[string]any{"topic": nil})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"topic": topic})
}

type setTopicRequest struct {
	Topic *string `json:"topic"`
}

// handleSetTopic sets the owner's topic; a null or empty topic clears it.
func (s *Server) handleSetTopic(w http.ResponseWriter, r *http.Request) {
	var req setTopicRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	value := ""
	if req.Topic != nil {
		value = strings.TrimSpace(*req.Topic)
	}
	s.engine.SetTopic(owner(r), value)
	if value == "" {
		respondJSON(w, http.StatusOK, map[string]any{"topic": nil})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"topic": value})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"turns":      emptyIfNil(s.sessions.Get(id)),
	})
}

type clearSessionRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	var req clearSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}
	s.sessions.Clear(req.SessionID)
	respondJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
}

func (s *Server) handleWelcome(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"message": s.engine.Welcome(r.Context(), owner(r)),
	})
}

type summarizeRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	summary, err := s.engine.Summarize(r.Context(), req.Text)
	if err != nil {
		respondTurnError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

func (s *Server) handleTime(w http.ResponseWriter, _ *http.Request) {
	info, err := s.engine.Time()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "bad_timezone", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleLastUpdate(w http.ResponseWriter, _ *http.Request) {
	res, ok := s.engine.LastUpdate()
	if !ok {
		respondError(w, http.StatusNotFound, "no_update", "no update has run yet")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleLastPrompt(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"prompt": s.engine.LastPrompt()})
}

func emptyIfNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
