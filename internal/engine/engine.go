// Package engine runs one conversational turn end to end: self-update
// interception, topic transition, context gathering, prompt assembly,
// model completion, and post-reply persistence.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ewrenn/greenie/internal/llm"
	"github.com/ewrenn/greenie/internal/observability"
	"github.com/ewrenn/greenie/internal/prompt"
	"github.com/ewrenn/greenie/internal/session"
	"github.com/ewrenn/greenie/internal/store"
	"github.com/ewrenn/greenie/internal/topic"
	"github.com/ewrenn/greenie/internal/update"
)

// SystemInstruction anchors every completion request.
const SystemInstruction = "You are Greenie, a helpful IT support assistant."

// Options tune the engine at construction time.
type Options struct {
	AssistantName string
	DefaultModel  string
	FastModel     string
	ChatTimeout   time.Duration
	FastTimeout   time.Duration
	Temperature   float64
	MaxTokens     int
	Timezone      string
	KnowledgeN    int
	RecentN       int
}

// TurnRequest is one user turn. Pointer fields distinguish "absent" from
// an explicit zero; absent fields take the documented defaults.
type TurnRequest struct {
	Owner     string `json:"-"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Model     string `json:"model"`
	Fast      bool   `json:"fast"`

	Save             *bool `json:"save"`
	Recent           *int  `json:"recent"`
	IncludeKnowledge *bool `json:"include_knowledge"`
	KnowledgeN       *int  `json:"knowledge_n"`
	IncludeSystem    *bool `json:"include_system"`
	ConversationMode *bool `json:"conversation_mode"`
}

// TurnResult is the outcome of a completed turn.
type TurnResult struct {
	TurnID  string `json:"turn_id"`
	Reply   string `json:"reply"`
	Model   string `json:"model"`
	Topic   string `json:"topic,omitempty"`
	Source  string `json:"source"`
	Elapsed int64  `json:"elapsed_ms"`
}

const (
	SourceModel  = "model"
	SourceUpdate = "update"
)

type Engine struct {
	store    store.Store
	topics   *topic.Tracker
	sessions *session.Store
	client   llm.Client
	updates  *update.Controller
	metrics  *observability.Metrics
	opts     Options

	now func() time.Time

	promptMu   sync.Mutex
	lastPrompt string
}

func New(
	st store.Store,
	topics *topic.Tracker,
	sessions *session.Store,
	client llm.Client,
	updates *update.Controller,
	metrics *observability.Metrics,
	opts Options,
) *Engine {
	if opts.KnowledgeN <= 0 {
		opts.KnowledgeN = 5
	}
	if opts.RecentN <= 0 {
		opts.RecentN = 5
	}
	return &Engine{
		store:    st,
		topics:   topics,
		sessions: sessions,
		client:   client,
		updates:  updates,
		metrics:  metrics,
		opts:     opts,
		now:      time.Now,
	}
}

// resolved carries a TurnRequest with every optional field filled in.
type resolved struct {
	owner            string
	sessionID        string
	message          string
	model            string
	timeout          time.Duration
	fast             bool
	save             bool
	recent           int
	includeKnowledge bool
	knowledgeN       int
	includeSystem    bool
	conversationMode bool
}

func (e *Engine) resolve(req TurnRequest) resolved {
	r := resolved{
		owner:            req.Owner,
		sessionID:        req.SessionID,
		message:          req.Message,
		model:            req.Model,
		timeout:          e.opts.ChatTimeout,
		fast:             req.Fast,
		save:             boolOr(req.Save, true),
		recent:           intOr(req.Recent, e.opts.RecentN),
		includeKnowledge: boolOr(req.IncludeKnowledge, true),
		knowledgeN:       intOr(req.KnowledgeN, e.opts.KnowledgeN),
		includeSystem:    boolOr(req.IncludeSystem, true),
		conversationMode: boolOr(req.ConversationMode, true),
	}
	if r.owner == "" {
		r.owner = "1"
	}
	if r.model == "" {
		r.model = e.opts.DefaultModel
	}
	if r.fast {
		// Fast mode trades prompt context for latency: no memories, no
		// knowledge lookup, shorter deadline, smaller model unless the
		// caller pinned one. Persistence is untouched; the exchange
		// still lands in the session for later normal turns.
		r.recent = 0
		r.includeKnowledge = false
		r.timeout = e.opts.FastTimeout
		if req.Model == "" {
			r.model = e.opts.FastModel
		}
	}
	return r
}

// Respond runs one synchronous turn.
func (e *Engine) Respond(ctx context.Context, req TurnRequest) (TurnResult, error) {
	return e.run(ctx, req, nil)
}

// RespondStream runs one turn, forwarding reply fragments as they arrive.
// Nothing is persisted unless the stream completes cleanly.
func (e *Engine) RespondStream(ctx context.Context, req TurnRequest, onFragment llm.FragmentHandler) (TurnResult, error) {
	if onFragment == nil {
		onFragment = func(string) error { return nil }
	}
	return e.run(ctx, req, onFragment)
}

func (e *Engine) run(ctx context.Context, req TurnRequest, onFragment llm.FragmentHandler) (TurnResult, error) {
	start := e.now()
	r := e.resolve(req)
	turnID := uuid.NewString()

	if reply, handled := e.updates.HandleMessage(ctx, r.message); handled {
		e.metrics.UpdateEvents.WithLabelValues("message").Inc()
		if onFragment != nil {
			if err := onFragment(reply); err != nil {
				return TurnResult{}, err
			}
		}
		if r.conversationMode && r.sessionID != "" {
			e.sessions.AppendExchange(r.sessionID, r.message, reply)
		}
		return TurnResult{
			TurnID:  turnID,
			Reply:   reply,
			Topic:   e.currentTopic(r.owner),
			Source:  SourceUpdate,
			Elapsed: e.now().Sub(start).Milliseconds(),
		}, nil
	}

	topicNow := e.transitionTopic(ctx, r)
	promptText := e.assemble(ctx, r, topicNow)

	e.promptMu.Lock()
	e.lastPrompt = promptText
	e.promptMu.Unlock()

	lreq := llm.Request{
		System:      SystemInstruction,
		Prompt:      promptText,
		Model:       r.model,
		Temperature: e.opts.Temperature,
		MaxTokens:   e.opts.MaxTokens,
		Timeout:     r.timeout,
	}

	var reply string
	var err error
	if onFragment == nil {
		reply, err = e.client.Complete(ctx, lreq)
	} else {
		counted := func(fragment string) error {
			e.metrics.StreamFragments.Inc()
			return onFragment(fragment)
		}
		reply, err = e.client.CompleteStream(ctx, lreq, counted)
	}

	elapsed := e.now().Sub(start)
	mode := turnMode(r.fast, onFragment != nil)
	if err != nil {
		e.metrics.Turns.WithLabelValues(mode, "error").Inc()
		kind := llm.Kind(err)
		if kind == "" {
			kind = "internal"
		}
		e.metrics.CompletionErrors.WithLabelValues(kind).Inc()
		return TurnResult{}, err
	}
	e.metrics.Turns.WithLabelValues(mode, "ok").Inc()
	e.metrics.ObserveTurnDuration(elapsed)

	e.persist(ctx, r, reply)

	return TurnResult{
		TurnID:  turnID,
		Reply:   reply,
		Model:   r.model,
		Topic:   topicNow,
		Source:  SourceModel,
		Elapsed: elapsed.Milliseconds(),
	}, nil
}

// transitionTopic applies the per-message topic rules. Inference uses the
// best knowledge match; a failed lookup just means no inference signal.
func (e *Engine) transitionTopic(ctx context.Context, r resolved) string {
	inferred := ""
	if best, err := e.store.BestMatch(ctx, r.owner, r.message); err != nil {
		log.Printf("engine: best-match lookup failed for owner %s: %v", r.owner, err)
	} else if best != nil {
		inferred = best.Name
	}
	current, _ := e.topics.Transition(r.owner, r.message, inferred)
	return current
}

// assemble gathers every optional context section. Each source is
// fallible; a failure drops that section and the turn continues.
func (e *Engine) assemble(ctx context.Context, r resolved, topicNow string) string {
	in := prompt.Inputs{
		Message:       r.message,
		IncludeSystem: r.includeSystem,
		AssistantName: e.opts.AssistantName,
		Topic:         topicNow,
	}

	if ti, err := prompt.CurrentTime(e.opts.Timezone, e.now); err != nil {
		log.Printf("engine: time lookup failed: %v", err)
	} else {
		in.Time = &ti
	}

	if r.includeSystem {
		if all, err := e.store.ListKnowledge(ctx, r.owner); err != nil {
			log.Printf("engine: identity lookup failed for owner %s: %v", r.owner, err)
		} else {
			in.Identity = prompt.SelectIdentity(all, e.opts.AssistantName)
		}
	}

	if r.includeKnowledge && r.knowledgeN > 0 {
		if hits, err := e.store.SearchKnowledge(ctx, r.owner, r.message, r.knowledgeN); err != nil {
			log.Printf("engine: knowledge search failed for owner %s: %v", r.owner, err)
		} else {
			in.Knowledge = hits
		}
	}

	if r.recent > 0 {
		if mems, err := e.store.RecentMemories(ctx, r.owner, r.recent); err != nil {
			log.Printf("engine: memory lookup failed for owner %s: %v", r.owner, err)
		} else {
			in.Memories = mems
		}
	}

	if r.conversationMode && !r.fast && r.sessionID != "" {
		in.History = e.sessions.Get(r.sessionID)
	}

	return prompt.Assemble(in)
}

// persist records the turn after a successful reply. Persistence failures
// are logged, never surfaced: the user already has their answer.
func (e *Engine) persist(ctx context.Context, r resolved, reply string) {
	if r.save {
		if err := e.store.AddMemory(ctx, r.owner, r.message); err != nil {
			log.Printf("engine: memory save failed for owner %s: %v", r.owner, err)
		}
	}
	if r.conversationMode && r.sessionID != "" {
		e.sessions.AppendExchange(r.sessionID, r.message, reply)
		e.metrics.ActiveSessions.Set(float64(e.sessions.Count()))
	}
}

func (e *Engine) currentTopic(owner string) string {
	t, _ := e.topics.Get(owner)
	return t
}

// Topic returns the owner's current topic, empty when unset.
func (e *Engine) Topic(owner string) string { return e.currentTopic(owner) }

// SetTopic sets or, with an empty value, clears the owner's topic.
func (e *Engine) SetTopic(owner, value string) {
	if value == "" {
		e.topics.Clear(owner)
		return
	}
	e.topics.Set(owner, value)
}

// Time reports the current moment in the engine's reference timezone.
func (e *Engine) Time() (prompt.TimeInfo, error) {
	return prompt.CurrentTime(e.opts.Timezone, e.now)
}

// LastPrompt returns the most recently assembled prompt.
func (e *Engine) LastPrompt() string {
	e.promptMu.Lock()
	defer e.promptMu.Unlock()
	return e.lastPrompt
}

// LastUpdate exposes the most recent self-update result.
func (e *Engine) LastUpdate() (update.Result, bool) { return e.updates.LastResult() }

func turnMode(fast, streaming bool) string {
	switch {
	case fast:
		return "fast"
	case streaming:
		return "stream"
	default:
		return "chat"
	}
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
