// Package topic tracks the "current topic" of each owner's conversation.
// The topic is set explicitly by phrases like "let's talk about X", cleared
// by "moving on" style phrases, or inferred from the best-matching
// knowledge entry for the incoming message.
package topic

import (
	"strings"
	"sync"
)

// Tracker holds one optional topic value per owner. Transitions are atomic
// per owner; only the current value is kept, no history.
type Tracker struct {
	mu     sync.RWMutex
	topics map[string]string
}

func NewTracker() *Tracker {
	return &Tracker{topics: make(map[string]string)}
}

// Get returns the current topic and whether one is set.
func (t *Tracker) Get(owner string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.topics[owner]
	return v, ok
}

func (t *Tracker) Set(owner, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.topics[owner] = value
}

func (t *Tracker) Clear(owner string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.topics, owner)
}

// Transition applies the per-message transition rules in priority order and
// returns the topic in effect afterwards. Explicit user intent always wins;
// inference only fires when the message carries no explicit signal, and
// re-inferring the current topic is a no-op indistinguishable from
// "unchanged". inferred is the best-match knowledge name for the message,
// empty when nothing matched.
func (t *Tracker) Transition(owner, message, inferred string) (string, bool) {
	if explicit, ok := ExtractExplicit(message); ok {
		if explicit == "" {
			t.Clear(owner)
			return "", false
		}
		t.Set(owner, explicit)
		return explicit, true
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	current, has := t.topics[owner]
	if inferred != "" && inferred != current {
		t.topics[owner] = inferred
		return inferred, true
	}
	if !has {
		return "", false
	}
	return current, true
}

// movingOnPhrases clear the topic when present anywhere in the message.
var movingOnPhrases = []string{"moving on", "new topic", "different topic", "anyway"}

// ExtractExplicit detects an explicit topic command in the message. It
// returns (topic, true) for a set command, ("", true) for a clear command,
// and ("", false) when the message carries no explicit signal.
func ExtractExplicit(message string) (string, bool) {
	for _, pat := range setPatterns {
		if m := pat.FindStringSubmatch(message); m != nil {
			if topic := cleanTopic(m[1]); topic != "" {
				return topic, true
			}
		}
	}
	lower := strings.ToLower(message)
	for _, p := range movingOnPhrases {
		if strings.Contains(lower, p) {
			return "", true
		}
	}
	return "", false
}

func cleanTopic(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `."'`)
	return s
}
