package store

import (
	"context"
	"strings"
)

// New picks a backend from the configured storage settings: Postgres when a
// database URL is present, otherwise a local SQLite file. ":memory:" keeps
// everything in-process.
func New(ctx context.Context, databaseURL, dbPath string, maxItems int) (Store, error) {
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresStore(ctx, databaseURL, maxItems)
	}
	if strings.TrimSpace(dbPath) == "" || dbPath == ":memory:" {
		return NewInMemoryStore(maxItems), nil
	}
	return NewSQLiteStore(dbPath, maxItems)
}
