package sqlscript

import (
	"context"
	"database/sql"
	"fmt"
)

// Executor runs a single statement. Implementations return errors passed
// through Classify so the replayer can tell skips from failures.
type Executor interface {
	Name() string
	Exec(ctx context.Context, stmt Statement) error
}

// DirectExecutor runs statements over a PostgreSQL connection
type DirectExecutor struct {
	db *sql.DB
}

// NewDirectExecutor wraps an open connection pool. A nil db yields an executor
// that reports ErrUnavailable for every statement.
func NewDirectExecutor(db *sql.DB) *DirectExecutor {
	return &DirectExecutor{db: db}
}

// OpenDirect opens a lib/pq pool for dsn and verifies it with a ping.
func OpenDirect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", Classify(err))
	}
	return db, nil
}

func (e *DirectExecutor) Name() string { return "direct" }

func (e *DirectExecutor) Exec(ctx context.Context, stmt Statement) error {
	if e.db == nil {
		return ErrUnavailable
	}
	if _, err := e.db.ExecContext(ctx, stmt.Text); err != nil {
		return Classify(err)
	}
	return nil
}
