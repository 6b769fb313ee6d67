package storage

import (
	"context"

	"github.com/boddenberg/upsell-checkout-bfa/internal/port"
)

// Scoped namespaces a shared store so each checkout session sees its own
// keys, the way a browser tab sees only its origin's local storage.
type Scoped struct {
	inner  port.KeyValueStore
	prefix string
}

// ForSession returns a view of inner whose keys live under session:<id>:.
func ForSession(inner port.KeyValueStore, sessionID string) *Scoped {
	return &Scoped{inner: inner, prefix: "session:" + sessionID + ":"}
}

func (s *Scoped) Get(ctx context.Context, key string) (string, bool, error) {
	return s.inner.Get(ctx, s.prefix+key)
}

func (s *Scoped) Set(ctx context.Context, key, value string) error {
	return s.inner.Set(ctx, s.prefix+key, value)
}

func (s *Scoped) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.prefix+key)
}
