package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// PostgresStore persists memory and knowledge in PostgreSQL.
type PostgresStore struct {
	pool     *pgxpool.Pool
	maxItems int
	now      func() time.Time
}

func NewPostgresStore(ctx context.Context, databaseURL string, maxItems int) (*PostgresStore, error) {
	if maxItems <= 0 {
		maxItems = 1000
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{
		pool:     pool,
		maxItems: maxItems,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			content TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memories_owner_ts ON memories (owner_id, ts DESC);`,
		`CREATE TABLE IF NOT EXISTS knowledge (
			id TEXT PRIMARY KEY,
			seq BIGSERIAL,
			owner_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL,
			keywords TEXT[] NOT NULL DEFAULT '{}'
		);`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_owner ON knowledge (owner_id, seq);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) AddMemory(ctx context.Context, owner, text string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storageErr("add memory", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO memories (id, owner_id, content, ts) VALUES ($1, $2, $3, $4)`,
		ulid.Make().String(), owner, text, s.now(),
	); err != nil {
		return storageErr("add memory", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM memories WHERE owner_id = $1 AND id NOT IN (
			SELECT id FROM memories WHERE owner_id = $1 ORDER BY ts DESC, id DESC LIMIT $2
		)`,
		owner, s.maxItems,
	); err != nil {
		return storageErr("prune memories", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storageErr("add memory", err)
	}
	return nil
}

func (s *PostgresStore) RecentMemories(ctx context.Context, owner string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT content FROM memories WHERE owner_id = $1 ORDER BY ts DESC, id DESC LIMIT $2`,
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

func (s *PostgresStore) ClearMemories(ctx context.Context, owner string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM memories WHERE owner_id = $1`, owner); err != nil {
		return storageErr("clear memories", err)
	}
	return nil
}

func (s *PostgresStore) AddKnowledge(ctx context.Context, owner, name, description string, keywords []string) error {
	if keywords == nil {
		keywords = []string{}
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO knowledge (id, owner_id, name, description, keywords) VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), owner, name, description, keywords,
	); err != nil {
		return storageErr("add knowledge", err)
	}
	return nil
}

func (s *PostgresStore) SearchKnowledge(ctx context.Context, owner, query string, n int) ([]KnowledgeEntry, error) {
	entries, err := s.ListKnowledge(ctx, owner)
	if err != nil {
		return nil, err
	}
	return rankEntries(entries, query, n), nil
}

func (s *PostgresStore) BestMatch(ctx context.Context, owner, query string) (*KnowledgeEntry, error) {
	entries, err := s.ListKnowledge(ctx, owner)
	if err != nil {
		return nil, err
	}
	return bestEntry(entries, query), nil
}

func (s *PostgresStore) ListKnowledge(ctx context.Context, owner string) ([]KnowledgeEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, keywords FROM knowledge WHERE owner_id = $1 ORDER BY seq ASC`,
		owner,
	)
	if err != nil {
		return nil, storageErr("list knowledge", err)
	}
	defer rows.Close()

	var out []KnowledgeEntry
	for rows.Next() {
		var e KnowledgeEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.Keywords); err != nil {
			return nil, storageErr("scan knowledge row", err)
		}
		e.OwnerID = owner
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate knowledge rows", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
