package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// InMemoryStore keeps everything in-process for local/dev use and tests.
type InMemoryStore struct {
	mu        sync.RWMutex
	maxItems  int
	memories  map[string][]MemoryRecord
	knowledge map[string][]KnowledgeEntry
	now       func() time.Time
}

func NewInMemoryStore(maxItems int) *InMemoryStore {
	if maxItems <= 0 {
		maxItems = 1000
	}
	return &InMemoryStore{
		maxItems:  maxItems,
		memories:  make(map[string][]MemoryRecord),
		knowledge: make(map[string][]KnowledgeEntry),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source. Used by tests.
func (s *InMemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *InMemoryStore) AddMemory(_ context.Context, owner, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	arr := append(s.memories[owner], MemoryRecord{
		ID:        ulid.Make().String(),
		OwnerID:   owner,
		Text:      text,
		Timestamp: s.now(),
	})
	// Eviction happens under the same lock as the append, so the bound
	// holds even with concurrent adds from one owner.
	if over := len(arr) - s.maxItems; over > 0 {
		arr = append(arr[:0:0], arr[over:]...)
	}
	s.memories[owner] = arr
	return nil
}

func (s *InMemoryStore) RecentMemories(_ context.Context, owner string, n int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.memories[owner]
	if len(arr) == 0 || n <= 0 {
		return nil, nil
	}
	if n > len(arr) {
		n = len(arr)
	}
	// Records append in timestamp order, so walking backwards yields newest
	// first with insertion order breaking timestamp ties.
	out := make([]string, 0, n)
	for i := len(arr) - 1; i >= len(arr)-n; i-- {
		out = append(out, arr[i].Text)
	}
	return out, nil
}

func (s *InMemoryStore) ClearMemories(_ context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memories, owner)
	return nil
}

func (s *InMemoryStore) AddKnowledge(_ context.Context, owner, name, description string, keywords []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kw := append([]string(nil), keywords...)
	s.knowledge[owner] = append(s.knowledge[owner], KnowledgeEntry{
		ID:          uuid.NewString(),
		OwnerID:     owner,
		Name:        name,
		Description: description,
		Keywords:    kw,
	})
	return nil
}

func (s *InMemoryStore) SearchKnowledge(_ context.Context, owner, query string, n int) ([]KnowledgeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rankEntries(s.knowledge[owner], query, n), nil
}

func (s *InMemoryStore) BestMatch(_ context.Context, owner, query string) (*KnowledgeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return bestEntry(s.knowledge[owner], query), nil
}

func (s *InMemoryStore) ListKnowledge(_ context.Context, owner string) ([]KnowledgeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]KnowledgeEntry(nil), s.knowledge[owner]...), nil
}

func (s *InMemoryStore) Close() error { return nil }
