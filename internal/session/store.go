// Package session keeps ephemeral per-session conversation history. Nothing
// here survives a restart; that is an accepted trade-off, not a defect.
package session

import "sync"

// Roles recorded in session history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single user or assistant message in a session.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Store maps caller-supplied opaque session IDs to bounded turn histories.
// IDs are not validated and carry no ownership binding at this layer.
type Store struct {
	mu       sync.RWMutex
	maxPairs int
	sessions map[string][]Turn
}

// NewStore caps each session at maxPairs exchanges (2×maxPairs turns).
func NewStore(maxPairs int) *Store {
	if maxPairs <= 0 {
		maxPairs = 10
	}
	return &Store{
		maxPairs: maxPairs,
		sessions: make(map[string][]Turn),
	}
}

// Append pushes a turn and drops the oldest turns past the cap. The push
// and truncate are one atomic step per session ID.
func (s *Store) Append(sessionID, role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	arr := append(s.sessions[sessionID], Turn{Role: role, Text: text})
	if limit := 2 * s.maxPairs; len(arr) > limit {
		arr = append(arr[:0:0], arr[len(arr)-limit:]...)
	}
	s.sessions[sessionID] = arr
}

// AppendExchange records a completed user/assistant pair.
func (s *Store) AppendExchange(sessionID, userText, assistantText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	arr := append(s.sessions[sessionID],
		Turn{Role: RoleUser, Text: userText},
		Turn{Role: RoleAssistant, Text: assistantText},
	)
	if limit := 2 * s.maxPairs; len(arr) > limit {
		arr = append(arr[:0:0], arr[len(arr)-limit:]...)
	}
	s.sessions[sessionID] = arr
}

// Get returns a copy of the retained history. Unknown IDs are empty, never
// an error.
func (s *Store) Get(sessionID string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.sessions[sessionID]
	if len(arr) == 0 {
		return nil
	}
	return append([]Turn(nil), arr...)
}

// Clear removes the session entry entirely.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Count returns the number of sessions currently held.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
