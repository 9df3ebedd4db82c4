// Package store provides the key-value layer shared by the replay guard and the rate limiter.
// A durable Redis backend is preferred; an in-process memory backend takes over while
// Redis is unreachable.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotInteger is returned by Increment when the key holds a non-numeric value.
var ErrNotInteger = errors.New("store: value is not an integer")

// Backend is one concrete key-value implementation. A ttl of zero means no expiry.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX writes value only if key is absent and reports whether it wrote.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Increment adds one and returns the new value. ttl applies only when the key is created.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

type Mode int32

const (
	ModeDurable Mode = iota
	ModeFallback
	// ModeMemory is used when no durable backend is configured at all.
	ModeMemory
)

func (m Mode) String() string {
	switch m {
	case ModeDurable:
		return "durable"
	case ModeFallback:
		return "fallback"
	case ModeMemory:
		return "memory"
	default:
		return "unknown"
	}
}
