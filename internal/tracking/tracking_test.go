package tracking_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/upsell-checkout-bfa/internal/domain"
	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/observability"
	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/resilience"
	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/storage"
	"github.com/boddenberg/upsell-checkout-bfa/internal/port"
	"github.com/boddenberg/upsell-checkout-bfa/internal/tracking"
)

// ============================================================
// Attribution
// ============================================================

func TestExtractParams_AllowListOnly(t *testing.T) {
	q := url.Values{
		"utm_source": {"facebook"},
		"utm_medium": {""},
		"gclid":      {"g1", "g2"},
		"ref":        {"ignored"},
	}

	p := tracking.ExtractParams(q)

	assert.Equal(t, domain.AttributionParams{UTMSource: "facebook", GCLID: "g1"}, p)
}

func TestCapture_OverwritesOnlyWhenParamsPresent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	_, wrote := tracking.Capture(ctx, store, url.Values{"utm_source": {"fb"}, "utm_campaign": {"black"}})
	require.True(t, wrote)

	_, wrote = tracking.Capture(ctx, store, url.Values{"page": {"2"}})
	assert.False(t, wrote)
	assert.Equal(t, domain.AttributionParams{UTMSource: "fb", UTMCampaign: "black"}, tracking.Snapshot(ctx, store))

	// a new capture replaces the whole snapshot, it does not merge
	_, wrote = tracking.Capture(ctx, store, url.Values{"fbclid": {"abc"}})
	require.True(t, wrote)
	assert.Equal(t, domain.AttributionParams{FBCLID: "abc"}, tracking.Snapshot(ctx, store))
}

func TestSnapshot_CorruptOrMissingIsEmpty(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	assert.True(t, tracking.Snapshot(ctx, store).IsEmpty())

	require.NoError(t, store.Set(ctx, domain.StorageKeyUTMParams, "{not json"))
	assert.True(t, tracking.Snapshot(ctx, store).IsEmpty())

	assert.True(t, tracking.Snapshot(ctx, failingStore{}).IsEmpty())
}

func TestBuildQuery(t *testing.T) {
	assert.Equal(t, "", tracking.BuildQuery(domain.AttributionParams{}))

	p := domain.AttributionParams{
		GCLID:       "g-1",
		UTMSource:   "face book",
		UTMCampaign: "promo&vip=1",
		UTMContent:  "ação",
	}
	assert.Equal(t,
		"&utm_source=face%20book&utm_campaign=promo%26vip%3D1&utm_content=a%C3%A7%C3%A3o&gclid=g-1",
		tracking.BuildQuery(p),
	)
}

func TestEncodeComponent_MatchesBrowserSet(t *testing.T) {
	assert.Equal(t, "AZaz09-_.!~*'()", tracking.EncodeComponent("AZaz09-_.!~*'()"))
	assert.Equal(t, "%20%2B%2F%3F%23%25", tracking.EncodeComponent(" +/?#%"))
}

func TestAppendToURL(t *testing.T) {
	p := domain.AttributionParams{UTMSource: "fb", ClickID: "c1"}

	cases := map[string]string{
		"https://wa.me/55":             "https://wa.me/55?utm_source=fb&click_id=c1",
		"https://wa.me/55?text=oi":     "https://wa.me/55?text=oi&utm_source=fb&click_id=c1",
		"https://wa.me/55?":            "https://wa.me/55?utm_source=fb&click_id=c1",
		"https://wa.me/55?text=oi&":    "https://wa.me/55?text=oi&utm_source=fb&click_id=c1",
		"https://checkout.example/pay": "https://checkout.example/pay?utm_source=fb&click_id=c1",
	}
	for base, want := range cases {
		assert.Equal(t, want, tracking.AppendToURL(base, p), base)
	}

	assert.Equal(t, "https://wa.me/55?text=oi", tracking.AppendToURL("https://wa.me/55?text=oi", domain.AttributionParams{}))
}

func TestCheckoutURLAndClear(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	tracking.Capture(ctx, store, url.Values{"utm_source": {"tiktok"}})
	require.NoError(t, store.Set(ctx, domain.StorageKeyTrackedEvents, "[]"))

	assert.Equal(t, "https://x.test/c?utm_source=tiktok", tracking.CheckoutURL(ctx, store, "https://x.test/c"))

	require.NoError(t, tracking.Clear(ctx, store))
	assert.Equal(t, "https://x.test/c", tracking.CheckoutURL(ctx, store, "https://x.test/c"))
	_, ok, _ := store.Get(ctx, domain.StorageKeyTrackedEvents)
	assert.False(t, ok)
}

// ============================================================
// Tracker
// ============================================================

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("storage unavailable")
}
func (failingStore) Set(context.Context, string, string) error { return errors.New("quota exceeded") }
func (failingStore) Delete(context.Context, string) error      { return errors.New("storage unavailable") }

type recordingSink struct {
	mu      sync.Mutex
	records []domain.EventRecord
	err     error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Track(_ context.Context, _ string, rec domain.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type panickingSink struct{}

func (panickingSink) Name() string { return "panicking" }
func (panickingSink) Track(context.Context, string, domain.EventRecord) error {
	panic("pixel script crashed")
}

func newTracker(sinks ...port.AnalyticsSink) (*tracking.Tracker, *observability.Metrics) {
	m := observability.NewMetrics()
	tr := tracking.NewTracker(sinks, resilience.NewBulkhead(10), m, zap.NewNop())
	tr.SetClock(func() time.Time {
		return time.Date(2024, 5, 1, 12, 30, 0, 123_000_000, time.FixedZone("BRT", -3*3600))
	})
	return tr, m
}

func TestTrack_EnrichesAndPersists(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	tracking.Capture(ctx, store, url.Values{"utm_source": {"fb"}, "utm_medium": {"cpc"}})

	tr, m := newTracker()
	ev := tr.Track(ctx, store, "pix_generated", "https://offer.test/?utm_source=fb", map[string]any{
		"amount":     "29.90",
		"utm_medium": "override",
	})

	assert.Equal(t, "2024-05-01T15:30:00.123Z", ev.Timestamp)

	events := tr.Events(ctx, store)
	require.Len(t, events, 1)
	rec := events[0]
	assert.Equal(t, "pix_generated", rec.Name())
	assert.Equal(t, "https://offer.test/?utm_source=fb", rec["url"])
	assert.Equal(t, "fb", rec["utm_source"])
	assert.Equal(t, "override", rec["utm_medium"], "extra fields win over attribution")
	assert.Equal(t, "29.90", rec["amount"])
	assert.NotContains(t, rec, "gclid")

	assert.Equal(t, float64(1), m.TrackedEventCount("pix_generated"))
}

func TestTrack_KeepsLast50InOrder(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	tr, _ := newTracker()

	for i := 0; i < 60; i++ {
		tr.Track(ctx, store, fmt.Sprintf("e%d", i), "", nil)
	}

	events := tr.Events(ctx, store)
	require.Len(t, events, domain.MaxTrackedEvents)
	assert.Equal(t, "e10", events[0].Name())
	assert.Equal(t, "e59", events[len(events)-1].Name())
}

func TestTrack_CorruptLogIsReplaced(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(ctx, domain.StorageKeyTrackedEvents, "garbage"))

	tr, _ := newTracker()
	assert.Empty(t, tr.Events(ctx, store))

	tr.Track(ctx, store, "page_view", "", nil)
	events := tr.Events(ctx, store)
	require.Len(t, events, 1)
	assert.Equal(t, "page_view", events[0].Name())
}

func TestTrack_StorageFailureIsSwallowed(t *testing.T) {
	tr, _ := newTracker()

	assert.NotPanics(t, func() {
		ev := tr.Track(context.Background(), failingStore{}, "upsell_button_click", "", nil)
		assert.Equal(t, "upsell_button_click", ev.Event)
	})
	assert.Empty(t, tr.Events(context.Background(), failingStore{}))
}

func TestTrack_ForwardsToSinksAndSurvivesBadOnes(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	good := &recordingSink{}
	broken := &recordingSink{err: errors.New("collector down")}

	tr, m := newTracker(good, broken, panickingSink{})

	assert.NotPanics(t, func() {
		tr.Track(ctx, store, "whatsapp_group_click", "", nil)
	})
	tr.Wait()

	assert.Equal(t, 1, good.count())
	assert.Equal(t, 1, broken.count())
	assert.Len(t, tr.Events(ctx, store), 1)
	assert.Equal(t, float64(1), m.TrackedEventCount("whatsapp_group_click"))
}

func TestTrack_ForwardSurvivesCancelledRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{}
	tr, _ := newTracker(sink)

	tr.Track(ctx, storage.NewMemoryStore(), "payment_confirmed", "", nil)
	cancel()
	tr.Wait()

	assert.Equal(t, 1, sink.count())
}
