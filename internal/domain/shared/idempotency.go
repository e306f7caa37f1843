package shared

import (
	"context"
	"time"
)

// DefaultIdempotencyTTL is how long a processed notification key is remembered
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStore remembers processed notification keys
type IdempotencyStore interface {
	// MarkProcessed records key. It returns false when key was already recorded.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed reports whether key is recorded
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Forget removes key so a failed notification can be retried
	Forget(ctx context.Context, key string) error

	Close() error
}
