// Package cache provides a small key-value cache abstraction used for
// analyzer responses and the latest tactical picture.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned when a key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Provider is the minimal cache contract. Values are opaque bytes; callers
// own serialization.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// NoopProvider satisfies Provider without storing anything. Used when
// caching is disabled so callers never nil-check.
type NoopProvider struct{}

// NewNoopProvider creates a NoopProvider.
func NewNoopProvider() *NoopProvider { return &NoopProvider{} }

func (NoopProvider) Get(context.Context, string) ([]byte, error) { return nil, ErrCacheMiss }

func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NoopProvider) Delete(context.Context, string) error { return nil }

func (NoopProvider) Close() error { return nil }
