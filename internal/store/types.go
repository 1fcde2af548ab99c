package store

import (
	"context"
	"time"
)

// MemoryRecord is one entry in an owner's long-term memory log.
type MemoryRecord struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// KnowledgeEntry is a named knowledge-base entry owned by a user.
type KnowledgeEntry struct {
	ID          string   `json:"id"`
	OwnerID     string   `json:"owner_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// MemoryStore persists a bounded append-only memory log per owner.
// Inserting past the configured maximum evicts the oldest records as part
// of the same logical operation.
type MemoryStore interface {
	AddMemory(ctx context.Context, owner, text string) error
	// RecentMemories returns up to n texts, newest first. Equal timestamps
	// resolve most-recently-inserted first.
	RecentMemories(ctx context.Context, owner string, n int) ([]string, error)
	// ClearMemories deletes every record for the owner. Idempotent.
	ClearMemories(ctx context.Context, owner string) error
}

// KnowledgeStore persists and searches knowledge entries per owner.
type KnowledgeStore interface {
	AddKnowledge(ctx context.Context, owner, name, description string, keywords []string) error
	// SearchKnowledge returns up to n entries with a positive match score,
	// highest score first. Equal scores keep insertion order.
	SearchKnowledge(ctx context.Context, owner, query string, n int) ([]KnowledgeEntry, error)
	// BestMatch returns the single highest-scoring entry, or nil when no
	// entry scores above zero.
	BestMatch(ctx context.Context, owner, query string) (*KnowledgeEntry, error)
	// ListKnowledge returns all entries for the owner in insertion order.
	ListKnowledge(ctx context.Context, owner string) ([]KnowledgeEntry, error)
}

// Store combines both stores behind one backend.
type Store interface {
	MemoryStore
	KnowledgeStore
	Close() error
}

// StorageError marks a persistence-layer failure so callers can surface it
// distinctly from completion-backend errors.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
