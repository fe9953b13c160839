package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNoopProvider(t *testing.T) {
	p := NewNoopProvider()
	ctx := context.Background()

	if err := p.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := p.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get err = %v, want ErrCacheMiss", err)
	}
	if err := p.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
