package domain

// ============================================================
// Marketing attribution & tracked events
// ============================================================

// Storage keys owned by each browser session.
const (
	StorageKeyUTMParams     = "utm_params"
	StorageKeyTrackedEvents = "tracked_events"
)

// MaxTrackedEvents caps the local event log; oldest entries are evicted first.
const MaxTrackedEvents = 50

// AttributionParams is the marketing attribution snapshot captured from the page URL.
type AttributionParams struct {
	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	UTMTerm     string `json:"utm_term,omitempty"`
	UTMContent  string `json:"utm_content,omitempty"`
	ClickID     string `json:"click_id,omitempty"`
	FBCLID      string `json:"fbclid,omitempty"`
	GCLID       string `json:"gclid,omitempty"`
}

// IsEmpty reports whether no attribution field is set.
func (p AttributionParams) IsEmpty() bool {
	return p == AttributionParams{}
}

// Pairs returns the key/value pairs in allow-list order, including empty values.
func (p AttributionParams) Pairs() [][2]string {
	return [][2]string{
		{"utm_source", p.UTMSource},
		{"utm_medium", p.UTMMedium},
		{"utm_campaign", p.UTMCampaign},
		{"utm_term", p.UTMTerm},
		{"utm_content", p.UTMContent},
		{"click_id", p.ClickID},
		{"fbclid", p.FBCLID},
		{"gclid", p.GCLID},
	}
}

// Set assigns the field named by key. Unknown keys are ignored.
func (p *AttributionParams) Set(key, value string) {
	switch key {
	case "utm_source":
		p.UTMSource = value
	case "utm_medium":
		p.UTMMedium = value
	case "utm_campaign":
		p.UTMCampaign = value
	case "utm_term":
		p.UTMTerm = value
	case "utm_content":
		p.UTMContent = value
	case "click_id":
		p.ClickID = value
	case "fbclid":
		p.FBCLID = value
	case "gclid":
		p.GCLID = value
	}
}

// TrackedEvent is a logged user/system action.
// Record() flattens it into the shape persisted in the event log.
type TrackedEvent struct {
	Event       string
	Timestamp   string
	URL         string
	Attribution AttributionParams
	Extra       map[string]any
}

// Record flattens the event: base fields, then attribution, then extra.
// Extra fields win on key collision.
func (e TrackedEvent) Record() EventRecord {
	rec := EventRecord{
		"event":     e.Event,
		"timestamp": e.Timestamp,
		"url":       e.URL,
	}
	for _, kv := range e.Attribution.Pairs() {
		if kv[1] != "" {
			rec[kv[0]] = kv[1]
		}
	}
	for k, v := range e.Extra {
		rec[k] = v
	}
	return rec
}

// EventRecord is a flattened tracked event as stored and forwarded to sinks.
type EventRecord map[string]any

// Name returns the event name of a stored record.
func (r EventRecord) Name() string {
	s, _ := r["event"].(string)
	return s
}

// TrackingDebugSnapshot is returned by GET /v1/debug/tracking.
type TrackingDebugSnapshot struct {
	Stored       AttributionParams `json:"stored"`
	Current      AttributionParams `json:"current"`
	RecentEvents []EventRecord     `json:"recentEvents"`
}

// TrackEventRequest is the payload of POST /v1/events.
type TrackEventRequest struct {
	Event string         `json:"event"`
	URL   string         `json:"url,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}
