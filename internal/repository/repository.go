package repository

import (
	"context"
)

// KeyValueStore persists cart snapshots as opaque strings under a key.
type KeyValueStore interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set overwrites the value stored under key.
	Set(ctx context.Context, key, value string) error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
