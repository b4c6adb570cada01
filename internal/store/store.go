// Package store provides keyed TTL tables for captcha records. Every
// backend expires records on its own; callers never see a stale value.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get, Update and friends when the key does not
// exist or its record has expired. Backends normalize their own miss
// signals to this sentinel.
var ErrNotFound = errors.New("record not found")

// Store is a keyed table of values with a per-record time to live.
// Implementations must be safe for concurrent use, but they make no
// atomicity promises across calls; callers that need read-modify-write
// consistency serialize per key themselves.
type Store[V any] interface {
	// Insert writes value under key with the given TTL, replacing any
	// previous record and its deadline.
	Insert(ctx context.Context, key string, value V, ttl time.Duration) error

	// Get returns the live value stored under key.
	Get(ctx context.Context, key string) (V, error)

	// Update replaces the value stored under key without touching the
	// remaining TTL. It reports ErrNotFound if the record is gone.
	Update(ctx context.Context, key string, value V) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
