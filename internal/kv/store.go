package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get and GetDel when the key does not exist
	// or has expired.
	ErrNotFound = errors.New("key not found")

	// ErrUnavailable wraps transport failures and timeouts. Callers treat it
	// as retryable; the client never retries on its own.
	ErrUnavailable = errors.New("key-value store unavailable")
)

// Store is the minimal contract of the remote key-value service.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key. A zero ttl stores the value without expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Counter is implemented by stores with an atomic increment.
type Counter interface {
	// Incr atomically increments the integer stored under key and returns
	// the new value. A missing key counts as zero. ttl is applied when the
	// key is created by this call; zero means no expiry.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Decr atomically decrements the integer stored under key and returns
	// the new value. It keeps the key's TTL.
	Decr(ctx context.Context, key string) (int64, error)
}

// Locker is implemented by stores with a conditional write.
type Locker interface {
	// SetNX stores value under key only if key does not exist. It reports
	// whether the value was written.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// Taker is implemented by stores with an atomic read-and-delete.
type Taker interface {
	// GetDel returns the value stored under key and deletes it in one step.
	// It returns ErrNotFound if the key does not exist.
	GetDel(ctx context.Context, key string) (string, error)
}

// Closer is implemented by stores holding network resources.
type Closer interface {
	Close() error
}
