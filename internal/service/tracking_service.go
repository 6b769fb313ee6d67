package service

import (
	"context"
	"net/url"

	"github.com/boddenberg/upsell-checkout-bfa/internal/domain"
	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/storage"
	"github.com/boddenberg/upsell-checkout-bfa/internal/port"
	"github.com/boddenberg/upsell-checkout-bfa/internal/tracking"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var trackingTracer = otel.Tracer("service/tracking")

// Event names emitted outside the checkout form.
const (
	EventPageView      = "page_view"
	EventWhatsAppClick = "whatsapp_group_click"
)

// debugRecentEvents is how many events the debug snapshot shows.
const debugRecentEvents = 10

// WhatsAppConfig is the thank-you page group invite.
type WhatsAppConfig struct {
	Number  string
	Message string
}

// TrackingService keeps each session's attribution snapshot and event log.
type TrackingService struct {
	store    port.KeyValueStore
	tracker  *tracking.Tracker
	whatsApp WhatsAppConfig
	logger   *zap.Logger
}

// NewTrackingService creates a tracking service over the shared store.
// Every session gets its own key space within it.
func NewTrackingService(store port.KeyValueStore, tracker *tracking.Tracker, whatsApp WhatsAppConfig, logger *zap.Logger) *TrackingService {
	return &TrackingService{store: store, tracker: tracker, whatsApp: whatsApp, logger: logger}
}

func (s *TrackingService) session(sessionID string) port.KeyValueStore {
	return storage.ForSession(s.store, sessionID)
}

// ============================================================
// Attribution
// ============================================================

// Capture stores the attribution parameters carried by q, if any.
func (s *TrackingService) Capture(ctx context.Context, sessionID string, q url.Values) (domain.AttributionParams, bool) {
	p, stored := tracking.Capture(ctx, s.session(sessionID), q)
	if stored {
		s.logger.Debug("attribution captured", zap.String("session_id", sessionID))
	}
	return p, stored
}

// PageLoad runs on every page load: it captures attribution from the page
// URL and tracks a page_view. It returns the session's snapshot afterwards.
func (s *TrackingService) PageLoad(ctx context.Context, sessionID, pageURL, referrer string) domain.AttributionParams {
	ctx, span := trackingTracer.Start(ctx, "TrackingService.PageLoad")
	defer span.End()

	page := ""
	if u, err := url.Parse(pageURL); err == nil {
		s.Capture(ctx, sessionID, u.Query())
		page = u.Path
	}

	s.Record(ctx, sessionID, EventPageView, pageURL, map[string]any{
		"page":     page,
		"referrer": referrer,
	})
	return s.Snapshot(ctx, sessionID)
}

// Snapshot returns the session's stored attribution.
func (s *TrackingService) Snapshot(ctx context.Context, sessionID string) domain.AttributionParams {
	return tracking.Snapshot(ctx, s.session(sessionID))
}

// Fragment renders the stored attribution as "&k=v..." for the gateway's
// utmQuery field. Empty when nothing is stored.
func (s *TrackingService) Fragment(ctx context.Context, sessionID string) string {
	return tracking.BuildQuery(s.Snapshot(ctx, sessionID))
}

// CheckoutURL appends the stored attribution to base.
func (s *TrackingService) CheckoutURL(ctx context.Context, sessionID, base string) string {
	return tracking.CheckoutURL(ctx, s.session(sessionID), base)
}

// WhatsAppLink is the group invite deep link with attribution appended.
func (s *TrackingService) WhatsAppLink(ctx context.Context, sessionID string) string {
	base := "https://wa.me/" + s.whatsApp.Number + "?text=" + tracking.EncodeComponent(s.whatsApp.Message)
	return tracking.CheckoutURL(ctx, s.session(sessionID), base)
}

// ============================================================
// Events
// ============================================================

// Track records a named event with extra data and returns the stored record.
func (s *TrackingService) Track(ctx context.Context, sessionID, event, pageURL string, data map[string]any) domain.EventRecord {
	ctx, span := trackingTracer.Start(ctx, "TrackingService.Track")
	defer span.End()
	span.SetAttributes(attribute.String("event.name", event))

	return s.tracker.Track(ctx, s.session(sessionID), event, pageURL, data).Record()
}

// Record satisfies port.EventRecorder for the checkout controllers.
func (s *TrackingService) Record(ctx context.Context, sessionID, event, pageURL string, fields map[string]any) {
	s.Track(ctx, sessionID, event, pageURL, fields)
}

// Events returns the session's event log, oldest first.
func (s *TrackingService) Events(ctx context.Context, sessionID string) []domain.EventRecord {
	return s.tracker.Events(ctx, s.session(sessionID))
}

// ClickWhatsApp tracks the thank-you page group click and returns the link.
func (s *TrackingService) ClickWhatsApp(ctx context.Context, sessionID, pageURL string) string {
	s.Record(ctx, sessionID, EventWhatsAppClick, pageURL, map[string]any{
		"source": "thank_you_page",
		"offer":  "vip_group_access",
	})
	return s.WhatsAppLink(ctx, sessionID)
}

// ============================================================
// Debug
// ============================================================

// DebugSnapshot shows the stored attribution, the parameters on the
// current URL and the most recent events, newest first.
func (s *TrackingService) DebugSnapshot(ctx context.Context, sessionID string, current url.Values) domain.TrackingDebugSnapshot {
	events := s.Events(ctx, sessionID)
	if len(events) > debugRecentEvents {
		events = events[len(events)-debugRecentEvents:]
	}

	recent := make([]domain.EventRecord, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		recent = append(recent, events[i])
	}

	return domain.TrackingDebugSnapshot{
		Stored:       s.Snapshot(ctx, sessionID),
		Current:      tracking.ExtractParams(current),
		RecentEvents: recent,
	}
}

// Clear removes the session's attribution and event log.
func (s *TrackingService) Clear(ctx context.Context, sessionID string) error {
	if err := tracking.Clear(ctx, s.session(sessionID)); err != nil {
		return err
	}
	s.logger.Info("tracking data cleared", zap.String("session_id", sessionID))
	return nil
}
