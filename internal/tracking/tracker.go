package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/upsell-checkout-bfa/internal/domain"
	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/observability"
	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/resilience"
	"github.com/boddenberg/upsell-checkout-bfa/internal/port"
)

// TimestampLayout is the ISO-8601 UTC form with milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// sinkTimeout bounds one background forward to all sinks.
const sinkTimeout = 5 * time.Second

// Tracker records funnel events: it enriches them with the session's
// attribution snapshot, forwards them to analytics sinks in the background
// and keeps a capped log in session storage.
type Tracker struct {
	sinks    []port.AnalyticsSink
	bulkhead *resilience.Bulkhead
	metrics  *observability.Metrics
	logger   *zap.Logger

	mu       sync.Mutex // serializes read-modify-write of event logs
	inflight sync.WaitGroup
	now      func() time.Time
}

// NewTracker creates a tracker. metrics may be nil.
func NewTracker(sinks []port.AnalyticsSink, bulkhead *resilience.Bulkhead, metrics *observability.Metrics, logger *zap.Logger) *Tracker {
	return &Tracker{
		sinks:    sinks,
		bulkhead: bulkhead,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

// Track records one event. It never fails: sink and storage problems are
// logged and swallowed.
func (t *Tracker) Track(ctx context.Context, store port.KeyValueStore, name, pageURL string, extra map[string]any) (ev domain.TrackedEvent) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("tracking panicked", zap.String("event", name), zap.Any("panic", r))
		}
	}()

	ev = domain.TrackedEvent{
		Event:       name,
		Timestamp:   t.now().UTC().Format(TimestampLayout),
		URL:         pageURL,
		Attribution: Snapshot(ctx, store),
		Extra:       extra,
	}
	rec := ev.Record()

	if t.metrics != nil {
		t.metrics.IncrTrackedEvent(name)
	}
	t.logger.Debug("event tracked", zap.String("event", name))

	t.forward(ctx, name, rec)
	t.append(ctx, store, rec)

	return ev
}

// Events returns the stored event log, oldest first.
func (t *Tracker) Events(ctx context.Context, store port.KeyValueStore) []domain.EventRecord {
	return readLog(ctx, store)
}

// Wait blocks until all background sink forwards have finished.
func (t *Tracker) Wait() {
	t.inflight.Wait()
}

func (t *Tracker) append(ctx context.Context, store port.KeyValueStore, rec domain.EventRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	events := append(readLog(ctx, store), rec)
	if len(events) > domain.MaxTrackedEvents {
		events = events[len(events)-domain.MaxTrackedEvents:]
	}

	raw, err := json.Marshal(events)
	if err != nil {
		t.logger.Warn("failed to encode event log", zap.Error(err))
		return
	}
	if err := store.Set(ctx, domain.StorageKeyTrackedEvents, string(raw)); err != nil {
		t.logger.Warn("failed to persist event log", zap.Error(err))
	}
}

func readLog(ctx context.Context, store port.KeyValueStore) []domain.EventRecord {
	raw, ok, err := store.Get(ctx, domain.StorageKeyTrackedEvents)
	if err != nil || !ok {
		return []domain.EventRecord{}
	}
	var events []domain.EventRecord
	if err := json.Unmarshal([]byte(raw), &events); err != nil || events == nil {
		return []domain.EventRecord{}
	}
	return events
}

// forward fans the record out to every sink without blocking the caller.
// When the bulkhead is full the forward is dropped.
func (t *Tracker) forward(ctx context.Context, name string, rec domain.EventRecord) {
	if len(t.sinks) == 0 {
		return
	}
	if t.bulkhead != nil && !t.bulkhead.TryAcquire() {
		t.logger.Warn("analytics forward dropped, too many in flight", zap.String("event", name))
		return
	}

	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()
		if t.bulkhead != nil {
			defer t.bulkhead.Release()
		}

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
		defer cancel()

		// A failing sink must not cancel the others.
		var g errgroup.Group
		for _, sink := range t.sinks {
			g.Go(func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("sink %s panicked: %v", sink.Name(), r)
					}
				}()
				if err := sink.Track(fctx, name, rec); err != nil {
					return fmt.Errorf("sink %s: %w", sink.Name(), err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			if t.metrics != nil {
				t.metrics.IncrExternalError("analytics")
			}
			t.logger.Warn("analytics forward failed", zap.String("event", name), zap.Error(err))
		}
	}()
}
