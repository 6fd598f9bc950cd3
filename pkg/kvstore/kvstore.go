// Package kvstore provides the key/value storage abstraction backing memory
// and session records.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no record exists at the key.
var ErrNotFound = errors.New("kvstore: key not found")

// Record is an opaque stored document. The store enforces no schema; callers
// impose shape before writing.
type Record map[string]any

// Store is the opaque get/put/query contract. No transactions; writes are
// last-write-wins.
type Store interface {
	Get(ctx context.Context, key string) (Record, error)
	Put(ctx context.Context, key string, record Record) error
	Delete(ctx context.Context, key string) error

	// Query returns up to limit records whose key starts with prefix,
	// keyed by their full key. limit <= 0 means no bound.
	Query(ctx context.Context, prefix string, limit int) (map[string]Record, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
