package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the default local backend, persisting to a single file.
type SQLiteStore struct {
	db       *sql.DB
	maxItems int
	now      func() time.Time
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(path string, maxItems int) (*SQLiteStore, error) {
	if maxItems <= 0 {
		maxItems = 1000
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:       db,
		maxItems: maxItems,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id       TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		content  TEXT NOT NULL,
		ts       INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_owner_ts ON memories(owner_id, ts DESC);

	CREATE TABLE IF NOT EXISTS knowledge (
		id          TEXT PRIMARY KEY,
		owner_id    TEXT NOT NULL,
		name        TEXT NOT NULL,
		description TEXT NOT NULL,
		keywords    TEXT NOT NULL DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_knowledge_owner ON knowledge(owner_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) AddMemory(ctx context.Context, owner, text string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("add memory", err)
	}
	defer tx.Rollback()

	id := ulid.Make().String()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO memories (id, owner_id, content, ts) VALUES (?, ?, ?, ?)`,
		id, owner, text, s.now().UnixMicro(),
	); err != nil {
		return storageErr("add memory", err)
	}

	// Prune oldest records in the same transaction so the per-owner bound
	// cannot be observed violated by a concurrent reader.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM memories WHERE owner_id = ? AND id NOT IN (
			SELECT id FROM memories WHERE owner_id = ? ORDER BY ts DESC, id DESC LIMIT ?
		)`,
		owner, owner, s.maxItems,
	); err != nil {
		return storageErr("prune memories", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("add memory", err)
	}
	return nil
}

func (s *SQLiteStore) RecentMemories(ctx context.Context, owner string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM memories WHERE owner_id = ? ORDER BY ts DESC, id DESC LIMIT ?`,
		owner, n,
	)
	if err != nil {
		return nil, storageErr("recent memories", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, storageErr("scan memory row", err)
		}
		out = append(out, text)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate memory rows", err)
	}
	return out, nil
}

func (s *SQLiteStore) ClearMemories(ctx context.Context, owner string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE owner_id = ?`, owner); err != nil {
		return storageErr("clear memories", err)
	}
	return nil
}

func (s *SQLiteStore) AddKnowledge(ctx context.Context, owner, name, description string, keywords []string) error {
	kw, err := json.Marshal(keywords)
	if err != nil {
		return storageErr("encode keywords", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge (id, owner_id, name, description, keywords) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), owner, name, description, string(kw),
	); err != nil {
		return storageErr("add knowledge", err)
	}
	return nil
}

func (s *SQLiteStore) SearchKnowledge(ctx context.Context, owner, query string, n int) ([]KnowledgeEntry, error) {
	entries, err := s.ListKnowledge(ctx, owner)
	if err != nil {
		return nil, err
	}
	return rankEntries(entries, query, n), nil
}

func (s *SQLiteStore) BestMatch(ctx context.Context, owner, query string) (*KnowledgeEntry, error) {
	entries, err := s.ListKnowledge(ctx, owner)
	if err != nil {
		return nil, err
	}
	return bestEntry(entries, query), nil
}

func (s *SQLiteStore) ListKnowledge(ctx context.Context, owner string) ([]KnowledgeEntry, error) {
	// rowid preserves insertion order, which is the documented tie order
	// for search results.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, keywords FROM knowledge WHERE owner_id = ? ORDER BY rowid ASC`,
		owner,
	)
	if err != nil {
		return nil, storageErr("list knowledge", err)
	}
	defer rows.Close()

	var out []KnowledgeEntry
	for rows.Next() {
		var e KnowledgeEntry
		var kw string
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &kw); err != nil {
			return nil, storageErr("scan knowledge row", err)
		}
		e.OwnerID = owner
		if kw != "" {
			if err := json.Unmarshal([]byte(kw), &e.Keywords); err != nil {
				return nil, storageErr("decode keywords", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate knowledge rows", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
