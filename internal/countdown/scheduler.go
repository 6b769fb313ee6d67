// Package countdown runs the page's countdown timers on a shared gocron
// scheduler. Each countdown is one limited-run job ticking once per tick.
package countdown

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boddenberg/upsell-checkout-bfa/internal/domain"
	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/observability"
)

// ErrInvalidDuration is returned for non-positive countdown lengths.
var ErrInvalidDuration = errors.New("countdown duration must be positive")

// Scheduler owns the gocron scheduler all countdowns tick on.
type Scheduler struct {
	inner   gocron.Scheduler
	tick    time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewScheduler creates and starts a scheduler. metrics may be nil.
func NewScheduler(tick time.Duration, metrics *observability.Metrics, logger *zap.Logger) (*Scheduler, error) {
	if tick <= 0 {
		tick = time.Second
	}
	inner, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	inner.Start()

	return &Scheduler{inner: inner, tick: tick, metrics: metrics, logger: logger}, nil
}

// Shutdown stops every running countdown without firing their expiry.
func (s *Scheduler) Shutdown() error {
	return s.inner.Shutdown()
}

// Start begins a countdown of total length. onExpire runs exactly once, on
// the scheduler's goroutine, when the last tick elapses. It never runs for a
// cancelled countdown.
func (s *Scheduler) Start(name string, total time.Duration, onExpire func()) (*Countdown, error) {
	if total <= 0 {
		return nil, ErrInvalidDuration
	}

	runs := uint(total / s.tick)
	if total%s.tick != 0 {
		runs++
	}

	c := &Countdown{
		name:      name,
		remaining: total,
		tick:      s.tick,
		onExpire:  onExpire,
		sched:     s,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	job, err := s.inner.NewJob(
		gocron.DurationJob(s.tick),
		gocron.NewTask(c.step),
		gocron.WithLimitedRuns(runs),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("countdown:"+name),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule countdown %s: %w", name, err)
	}
	c.jobID = job.ID()

	if s.metrics != nil {
		s.metrics.CountdownStarted()
	}
	return c, nil
}

func (s *Scheduler) finished() {
	if s.metrics != nil {
		s.metrics.CountdownStopped()
	}
}

// Countdown is a running (or finished) timer.
type Countdown struct {
	name     string
	tick     time.Duration
	onExpire func()
	sched    *Scheduler

	mu        sync.Mutex
	jobID     uuid.UUID
	remaining time.Duration
	expired   bool
	cancelled bool
}

func (c *Countdown) step() {
	c.mu.Lock()
	if c.expired || c.cancelled {
		c.mu.Unlock()
		return
	}
	c.remaining -= c.tick
	if c.remaining > 0 {
		c.mu.Unlock()
		return
	}
	c.remaining = 0
	c.expired = true
	fire := c.onExpire
	c.mu.Unlock()

	c.sched.finished()
	if fire == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.sched.logger.Error("countdown expiry handler panicked",
				zap.String("countdown", c.name), zap.Any("panic", r))
		}
	}()
	fire()
}

// Name returns the countdown's name.
func (c *Countdown) Name() string { return c.name }

// Remaining returns the time left, never negative.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Expired reports whether the countdown reached zero.
func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// Display renders the remaining time as MM:SS.
func (c *Countdown) Display() string {
	return FormatMMSS(c.Remaining())
}

// View is the countdown as rendered by the page.
func (c *Countdown) View() *domain.CountdownView {
	c.mu.Lock()
	remaining, expired := c.remaining, c.expired
	c.mu.Unlock()

	return &domain.CountdownView{
		Name:             c.name,
		RemainingSeconds: int64(remaining.Round(time.Second) / time.Second),
		Display:          FormatMMSS(remaining),
		Expired:          expired,
	}
}

// Cancel stops the countdown without firing onExpire. Safe to call more
// than once and after expiry.
func (c *Countdown) Cancel() {
	c.mu.Lock()
	if c.expired || c.cancelled {
		c.mu.Unlock()
		return
	}
	c.cancelled = true
	id := c.jobID
	c.mu.Unlock()

	if err := c.sched.inner.RemoveJob(id); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		c.sched.logger.Warn("failed to remove countdown job", zap.String("countdown", c.name), zap.Error(err))
	}
	c.sched.finished()
}

// FormatMMSS renders d as zero-padded minutes and seconds.
func FormatMMSS(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
