package port

import (
	"context"
	"time"
)

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency deletes a key so the same request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error

	// GetJSON decodes a cached value into dst, returns false on a miss
	GetJSON(ctx context.Context, key string, dst any) (bool, error)

	// SetJSON caches a value for roughly ttl
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// CartStorage is the durable per-client storage of the cart snapshot.
type CartStorage interface {
	// LoadCart returns nil data when nothing was stored under key
	LoadCart(ctx context.Context, key string) ([]byte, error)

	SaveCart(ctx context.Context, key string, data []byte) error
}
