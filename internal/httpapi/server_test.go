package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ewrenn/greenie/internal/config"
	"github.com/ewrenn/greenie/internal/engine"
	"github.com/ewrenn/greenie/internal/llm"
	"github.com/ewrenn/greenie/internal/observability"
	"github.com/ewrenn/greenie/internal/protocol"
	"github.com/ewrenn/greenie/internal/session"
	"github.com/ewrenn/greenie/internal/store"
	"github.com/ewrenn/greenie/internal/topic"
	"github.com/ewrenn/greenie/internal/update"
)

var testMetrics = observability.NewMetrics("greenie_httpapi_test")

func newTestServer(t *testing.T, adapterMode string) *httptest.Server {
	t.Helper()
	cfg := config.Config{
		AdapterMode:   adapterMode,
		AssistantName: "Greenie",
		DefaultModel:  "llama3-70b-8192",
		FastModel:     "llama3-8b-8192",
		ChatTimeout:   60 * time.Second,
		FastTimeout:   30 * time.Second,
		Temperature:   0.7,
		MaxTokens:     2048,
		Timezone:      "Europe/London",
		SessionMax:    10,
		MemoryMax:     1000,
		KnowledgeN:    5,
		RecentN:       5,
		UpdateWindow:  60 * time.Second,
	}
	st := store.NewInMemoryStore(cfg.MemoryMax)
	sessions := session.NewStore(cfg.SessionMax)
	client := llm.New(llm.Config{Mode: adapterMode})
	eng := engine.New(
		st,
		topic.NewTracker(),
		sessions,
		client,
		update.NewController(cfg.UpdateWindow, update.NewGitRefresher(t.TempDir())),
		testMetrics,
		engine.Options{
			AssistantName: cfg.AssistantName,
			DefaultModel:  cfg.DefaultModel,
			FastModel:     cfg.FastModel,
			ChatTimeout:   cfg.ChatTimeout,
			FastTimeout:   cfg.FastTimeout,
			Temperature:   cfg.Temperature,
			MaxTokens:     cfg.MaxTokens,
			Timezone:      cfg.Timezone,
			KnowledgeN:    cfg.KnowledgeN,
			RecentN:       cfg.RecentN,
		},
	)
	srv := httptest.NewServer(New(cfg, eng, st, sessions).Router())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, owner string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		req.Header.Set(ownerHeader, owner)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer res.Body.Close()
	var out map[string]any
	data, _ := io.ReadAll(res.Body)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("decode response %q: %v", data, err)
		}
	}
	return res, out
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, "mock")

	res, body := doJSON(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	if res.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz = %d %v", res.StatusCode, body)
	}

	res, body = doJSON(t, http.MethodGet, srv.URL+"/readyz", "", nil)
	if res.StatusCode != http.StatusOK || body["backend"] != "mock" {
		t.Fatalf("readyz = %d %v", res.StatusCode, body)
	}
}

func TestReadyReportsNotConfigured(t *testing.T) {
	srv := newTestServer(t, "auto")
	res, body := doJSON(t, http.MethodGet, srv.URL+"/readyz", "", nil)
	if res.StatusCode != http.StatusOK || body["backend"] != "not_configured" {
		t.Fatalf("readyz = %d %v", res.StatusCode, body)
	}
}

func TestChatRoundTrip(t *testing.T) {
	srv := newTestServer(t, "mock")

	res, body := doJSON(t, http.MethodPost, srv.URL+"/v1/chat", "u1", map[string]any{
		"message":    "hello there",
		"session_id": "s1",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("chat = %d %v", res.StatusCode, body)
	}
	reply, _ := body["reply"].(string)
	if !strings.Contains(reply, "hello there") {
		t.Fatalf("reply = %q", reply)
	}
	if body["source"] != "model" {
		t.Fatalf("source = %v", body["source"])
	}

	// The turn landed in the session.
	res, body = doJSON(t, http.MethodGet, srv.URL+"/v1/session/s1", "u1", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("session = %d %v", res.StatusCode, body)
	}
	turns, _ := body["turns"].([]any)
	if len(turns) != 2 {
		t.Fatalf("turns = %v", body["turns"])
	}

	// And the prompt is retained for debugging.
	res, body = doJSON(t, http.MethodGet, srv.URL+"/debug/last_prompt", "", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("last_prompt = %d", res.StatusCode)
	}
	if p, _ := body["prompt"].(string); !strings.Contains(p, "hello there") {
		t.Fatalf("prompt = %q", p)
	}
}

func TestChatRequiresMessage(t *testing.T) {
	srv := newTestServer(t, "mock")
	res, body := doJSON(t, http.MethodPost, srv.URL+"/v1/chat", "u1", map[string]any{"message": ""})
	if res.StatusCode != http.StatusBadRequest || body["error"] != "invalid_request" {
		t.Fatalf("chat = %d %v", res.StatusCode, body)
	}
}

func TestChatNotConfigured(t *testing.T) {
	srv := newTestServer(t, "auto")
	res, body := doJSON(t, http.MethodPost, srv.URL+"/v1/chat", "u1", map[string]any{"message": "hi"})
	if res.StatusCode != http.StatusServiceUnavailable || body["error"] != "not_configured" {
		t.Fatalf("chat = %d %v", res.StatusCode, body)
	}
	if _, ok := body["message"]; !ok {
		t.Fatalf("error body missing message: %v", body)
	}
}

func TestTimeoutErrorCarriesSuggestions(t *testing.T) {
	f := turnError(&llm.TimeoutError{Timeout: 30 * time.Second})
	if f.Status != http.StatusGatewayTimeout || f.Code != "timeout" {
		t.Fatalf("timeout mapped to %d %q", f.Status, f.Code)
	}
	if len(f.Suggestions) != 2 || f.Suggestions[0] != "enable_fast" || f.Suggestions[1] != "retry" {
		t.Fatalf("suggestions = %v, want [enable_fast retry]", f.Suggestions)
	}

	rec := httptest.NewRecorder()
	respondTurnError(rec, &llm.TimeoutError{Timeout: 30 * time.Second})
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "timeout" {
		t.Fatalf("error field = %v", body["error"])
	}
	sugg, ok := body["suggestions"].([]any)
	if !ok || len(sugg) != 2 || sugg[0] != "enable_fast" {
		t.Fatalf("suggestions on the wire = %v", body["suggestions"])
	}
}

func TestMemoryEndpoints(t *testing.T) {
	srv := newTestServer(t, "mock")

	res, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/memory", "u1", map[string]any{"text": "likes tea"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add memory = %d", res.StatusCode)
	}
	doJSON(t, http.MethodPost, srv.URL+"/v1/memory", "u1", map[string]any{"text": "uses linux"})

	res, body := doJSON(t, http.MethodGet, srv.URL+"/v1/memory/recent?n=1", "u1", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("recent = %d", res.StatusCode)
	}
	memories, _ := body["memories"].([]any)
	if len(memories) != 1 || memories[0] != "uses linux" {
		t.Fatalf("memories = %v", body["memories"])
	}

	// Another owner sees nothing.
	_, body = doJSON(t, http.MethodGet, srv.URL+"/v1/memory/recent", "u2", nil)
	if memories, _ := body["memories"].([]any); len(memories) != 0 {
		t.Fatalf("cross-owner memories = %v", body["memories"])
	}

	res, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/memory", "u1", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("clear = %d", res.StatusCode)
	}
	_, body = doJSON(t, http.MethodGet, srv.URL+"/v1/memory/recent", "u1", nil)
	if memories, _ := body["memories"].([]any); len(memories) != 0 {
		t.Fatalf("memories after clear = %v", body["memories"])
	}
}

func TestKnowledgeEndpoints(t *testing.T) {
	srv := newTestServer(t, "mock")

	res, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/knowledge", "u1", map[string]any{
		"name":        "VPN",
		"description": "Corporate VPN access",
		"keywords":    []string{"vpn", "remote"},
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add knowledge = %d", res.StatusCode)
	}

	res, body := doJSON(t, http.MethodPost, srv.URL+"/v1/knowledge/search", "u1", map[string]any{"query": "vpn"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("search = %d", res.StatusCode)
	}
	entries, _ := body["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("entries = %v", body["entries"])
	}

	_, body = doJSON(t, http.MethodGet, srv.URL+"/v1/knowledge", "u1", nil)
	if entries, _ := body["entries"].([]any); len(entries) != 1 {
		t.Fatalf("list = %v", body["entries"])
	}

	// Owner isolation.
	_, body = doJSON(t, http.MethodGet, srv.URL+"/v1/knowledge", "u2", nil)
	if entries, _ := body["entries"].([]any); len(entries) != 0 {
		t.Fatalf("cross-owner list = %v", body["entries"])
	}
}

func TestTopicEndpoints(t *testing.T) {
	srv := newTestServer(t, "mock")

	_, body := doJSON(t, http.MethodGet, srv.URL+"/v1/topic", "u1", nil)
	if body["topic"] != nil {
		t.Fatalf("initial topic = %v", body["topic"])
	}

	_, body = doJSON(t, http.MethodPost, srv.URL+"/v1/topic", "u1", map[string]any{"topic": "printers"})
	if body["topic"] != "printers" {
		t.Fatalf("set topic = %v", body["topic"])
	}
	_, body = doJSON(t, http.MethodGet, srv.URL+"/v1/topic", "u1", nil)
	if body["topic"] != "printers" {
		t.Fatalf("get topic = %v", body["topic"])
	}

	// Per-owner scoping.
	_, body = doJSON(t, http.MethodGet, srv.URL+"/v1/topic", "u2", nil)
	if body["topic"] != nil {
		t.Fatalf("other owner topic = %v", body["topic"])
	}

	// Null clears.
	_, body = doJSON(t, http.MethodPost, srv.URL+"/v1/topic", "u1", map[string]any{"topic": nil})
	if body["topic"] != nil {
		t.Fatalf("clear topic = %v", body["topic"])
	}
}

func TestSessionClear(t *testing.T) {
	srv := newTestServer(t, "mock")

	doJSON(t, http.MethodPost, srv.URL+"/v1/chat", "u1", map[string]any{"message": "hi", "session_id": "s9"})
	res, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/session/clear", "u1", map[string]any{"session_id": "s9"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("clear = %d", res.StatusCode)
	}
	_, body := doJSON(t, http.MethodGet, srv.URL+"/v1/session/s9", "u1", nil)
	if turns, _ := body["turns"].([]any); len(turns) != 0 {
		t.Fatalf("turns after clear = %v", body["turns"])
	}
}

func TestTimeEndpoint(t *testing.T) {
	srv := newTestServer(t, "mock")
	res, body := doJSON(t, http.MethodGet, srv.URL+"/v1/time", "", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("time = %d", res.StatusCode)
	}
	if body["zone"] != "Europe/London" {
		t.Fatalf("zone = %v", body["zone"])
	}
	if s, _ := body["human_short"].(string); len(s) == 0 {
		t.Fatalf("human_short missing: %v", body)
	}
}

func TestWelcomeAndSummarize(t *testing.T) {
	srv := newTestServer(t, "mock")

	res, body := doJSON(t, http.MethodGet, srv.URL+"/v1/welcome", "u1", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("welcome = %d", res.StatusCode)
	}
	if msg, _ := body["message"].(string); msg == "" {
		t.Fatalf("empty welcome message")
	}

	res, body = doJSON(t, http.MethodPost, srv.URL+"/v1/tools/summarize", "u1", map[string]any{"text": "a long incident report"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("summarize = %d %v", res.StatusCode, body)
	}
	if sum, _ := body["summary"].(string); sum == "" {
		t.Fatalf("empty summary")
	}
}

func TestLastUpdateNotFoundInitially(t *testing.T) {
	srv := newTestServer(t, "mock")
	res, body := doJSON(t, http.MethodGet, srv.URL+"/v1/update/last", "", nil)
	if res.StatusCode != http.StatusNotFound || body["error"] != "no_update" {
		t.Fatalf("update/last = %d %v", res.StatusCode, body)
	}
}

func TestChatStreamSSE(t *testing.T) {
	srv := newTestServer(t, "mock")

	payload, _ := json.Marshal(map[string]any{"message": "stream me", "session_id": "s1"})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/chat/stream", bytes.NewReader(payload))
	req.Header.Set(ownerHeader, "u1")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer res.Body.Close()

	if ct := res.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	raw, _ := io.ReadAll(res.Body)
	body := string(raw)
	if !strings.Contains(body, `"delta"`) {
		t.Fatalf("no delta events in stream:\n%s", body)
	}
	if !strings.Contains(body, "event: done") {
		t.Fatalf("no done event in stream:\n%s", body)
	}
	if !strings.Contains(body, "stream me") {
		t.Fatalf("reply content missing:\n%s", body)
	}
}

func TestChatStreamErrorInBand(t *testing.T) {
	srv := newTestServer(t, "auto")

	payload, _ := json.Marshal(map[string]any{"message": "hi"})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/chat/stream", bytes.NewReader(payload))
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(res.Body)
	body := string(raw)
	if !strings.Contains(body, "event: error") || !strings.Contains(body, "not_configured") {
		t.Fatalf("expected in-band error event:\n%s", body)
	}
}

func TestChatWebSocket(t *testing.T) {
	srv := newTestServer(t, "mock")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/chat/ws"
	header := http.Header{}
	header.Set(ownerHeader, "u1")
	conn, res, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v (res %v)", err, res)
	}
	defer conn.Close()

	out, _ := json.Marshal(protocol.ClientChat{
		Type:      protocol.TypeClientChat,
		SessionID: "s1",
		Message:   "ping over ws",
	})
	if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
		t.Fatalf("write: %v", err)
	}

	sawDelta := false
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("decode frame %q: %v", data, err)
		}
		switch env.Type {
		case protocol.TypeAssistantTextDelta:
			sawDelta = true
		case protocol.TypeAssistantTurnEnd:
			var end protocol.AssistantTurnEnd
			if err := json.Unmarshal(data, &end); err != nil {
				t.Fatalf("decode turn end: %v", err)
			}
			if !strings.Contains(end.Reply, "ping over ws") {
				t.Fatalf("reply = %q", end.Reply)
			}
			if !sawDelta {
				t.Fatalf("turn ended without any delta frames")
			}
			return
		case protocol.TypeErrorEvent:
			t.Fatalf("unexpected error frame: %s", data)
		}
	}
}

func TestChatWebSocketRejectsBadEnvelope(t *testing.T) {
	srv := newTestServer(t, "mock")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"client_chat","message":""}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env protocol.ErrorEvent
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != protocol.TypeErrorEvent || env.Code != "invalid_client_message" {
		t.Fatalf("frame = %+v", env)
	}
}
