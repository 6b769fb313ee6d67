package checkout

import (
	"sync"
	"time"

	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/cache"
)

// Sessions keeps one controller per checkout session. Idle sessions expire
// after the TTL; expiry, Close and Shutdown all stop the session's timers.
type Sessions struct {
	deps     Deps
	mu       sync.Mutex // guards get-or-create
	registry *cache.InMemory[*Controller]
}

// DefaultSessionTTL applies when NewSessions is given a non-positive TTL.
const DefaultSessionTTL = 2 * time.Hour

// SessionsOption tunes a session registry.
type SessionsOption func(*sessionsConfig)

type sessionsConfig struct {
	sweep time.Duration
}

// WithSweepInterval sets how often expired sessions are reaped in the
// background. Defaults to the TTL. Expired sessions are also closed when
// their id is next opened.
func WithSweepInterval(d time.Duration) SessionsOption {
	return func(c *sessionsConfig) { c.sweep = d }
}

// NewSessions creates an empty session registry.
func NewSessions(ttl time.Duration, deps Deps, opts ...SessionsOption) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	cfg := sessionsConfig{sweep: ttl}
	for _, o := range opts {
		o(&cfg)
	}
	return &Sessions{
		deps: deps,
		registry: cache.New[*Controller](ttl,
			cache.WithOnEvict(func(_ string, c *Controller) { c.Close() }),
			cache.WithCleanupInterval[*Controller](cfg.sweep),
		),
	}
}

// Open returns the session's controller, creating it (and its offer
// countdown) on first use. created reports whether it was new.
func (s *Sessions) Open(id string) (ctrl *Controller, created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.registry.Touch(id); ok {
		return c, false, nil
	}

	c, err := NewController(id, s.deps)
	if err != nil {
		return nil, false, err
	}
	s.registry.Set(id, c)
	return c, true, nil
}

// Get returns a live session and extends its lifetime.
func (s *Sessions) Get(id string) (*Controller, bool) {
	return s.registry.Touch(id)
}

// Close ends a session and releases its timers.
func (s *Sessions) Close(id string) {
	s.registry.Delete(id)
}

// Len reports how many sessions are held.
func (s *Sessions) Len() int {
	return s.registry.Len()
}

// Shutdown closes every session.
func (s *Sessions) Shutdown() {
	s.registry.Close()
}
