// Package httpapi exposes the conversational engine over HTTP: JSON chat,
// SSE and websocket streaming, and the memory/knowledge/topic/session
// resource endpoints.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ewrenn/greenie/internal/config"
	"github.com/ewrenn/greenie/internal/engine"
	"github.com/ewrenn/greenie/internal/llm"
	"github.com/ewrenn/greenie/internal/observability"
	"github.com/ewrenn/greenie/internal/session"
	"github.com/ewrenn/greenie/internal/store"
)

// ownerHeader carries the authenticated user ID set by the fronting auth
// layer. Absent header means the anonymous owner.
const (
	ownerHeader  = "X-Greenie-User"
	defaultOwner = "1"
)

type Server struct {
	cfg      config.Config
	engine   *engine.Engine
	store    store.Store
	sessions *session.Store
	upgrader websocket.Upgrader
}

func New(cfg config.Config, eng *engine.Engine, st store.Store, sessions *session.Store) *Server {
	return &Server{
		cfg:      cfg,
		engine:   eng,
		store:    st,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Same-origin only unless explicitly opened up; other
				// websites must not be able to drive a user's assistant.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/chat", s.handleChat)
	r.Post("/v1/chat/stream", s.handleChatStream)
	r.Get("/v1/chat/ws", s.handleChatWS)

	r.Post("/v1/memory", s.handleAddMemory)
	r.Get("/v1/memory/recent", s.handleRecentMemories)
	r.Delete("/v1/memory", s.handleClearMemories)

	r.Post("/v1/knowledge", s.handleAddKnowledge)
	r.Post("/v1/knowledge/search", s.handleSearchKnowledge)
	r.Get("/v1/knowledge", s.handleListKnowledge)

	r.Get("/v1/topic", s.handleGetTopic)
	r.Post("/v1/topic", s.handleSetTopic)

	r.Get("/v1/session/{id}", s.handleGetSession)
	r.Post("/v1/session/clear", s.handleClearSession)

	r.Get("/v1/welcome", s.handleWelcome)
	r.Post("/v1/tools/summarize", s.handleSummarize)
	r.Get("/v1/time", s.handleTime)
	r.Get("/v1/update/last", s.handleLastUpdate)

	r.Get("/debug/last_prompt", s.handleLastPrompt)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ready",
		"backend": s.backendMode(),
	})
}

func (s *Server) backendMode() string {
	switch strings.ToLower(strings.TrimSpace(s.cfg.AdapterMode)) {
	case "mock":
		return "mock"
	case "groq":
		return "groq"
	default:
		if s.cfg.GroqAPIKey != "" {
			return "groq"
		}
		return "not_configured"
	}
}

func owner(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(ownerHeader)); v != "" {
		return v
	}
	return defaultOwner
}

type errorResponse struct {
	Error       string   `json:"error"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: code, Message: message})
}

// turnFailure is the wire shape of a failed turn: the stable error code,
// a human-readable message, and optional recovery hints.
type turnFailure struct {
	Status      int
	Code        string
	Message     string
	Suggestions []string
}

// turnError maps an engine error onto a turnFailure.
func turnError(err error) turnFailure {
	var (
		te *llm.TimeoutError
		re *llm.RateLimitedError
		ue *llm.UpstreamError
		se *store.StorageError
	)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		return turnFailure{http.StatusServiceUnavailable, llm.KindNotConfigured,
			"completion backend not configured; set GROQ_API_KEY", nil}
	case errors.As(err, &te):
		return turnFailure{http.StatusGatewayTimeout, llm.KindTimeout,
			"model did not answer within " + te.Timeout.String(),
			[]string{"enable_fast", "retry"}}
	case errors.As(err, &re):
		return turnFailure{http.StatusTooManyRequests, llm.KindRateLimited, err.Error(), nil}
	case errors.As(err, &ue):
		return turnFailure{http.StatusBadGateway, llm.KindUpstream, err.Error(), nil}
	case errors.As(err, &se):
		return turnFailure{http.StatusInternalServerError, "storage_error", err.Error(), nil}
	default:
		return turnFailure{http.StatusInternalServerError, "internal", err.Error(), nil}
	}
}

func respondTurnError(w http.ResponseWriter, err error) {
	f := turnError(err)
	respondJSON(w, f.Status, errorResponse{Error: f.Code, Message: f.Message, Suggestions: f.Suggestions})
}
