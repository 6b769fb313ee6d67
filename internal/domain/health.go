package domain

// ============================================================
// Health & session API responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// CountdownView is a countdown as rendered by the page.
type CountdownView struct {
	Name             string `json:"name"`
	RemainingSeconds int64  `json:"remainingSeconds"`
	Display          string `json:"display"` // MM:SS
	Expired          bool   `json:"expired"`
}

// SessionResponse is returned by POST /v1/session.
type SessionResponse struct {
	SessionID   string            `json:"sessionId"`
	Token       string            `json:"token"`
	Offer       Offer             `json:"offer"`
	Countdown   *CountdownView    `json:"countdown,omitempty"`
	Attribution AttributionParams `json:"attribution"`
}

// ThankYouResponse is returned once the customer confirms the payment.
type ThankYouResponse struct {
	Confirmed    bool   `json:"confirmed"`
	WhatsAppLink string `json:"whatsappLink"`
}

// LinkResponse wraps a single outbound link.
type LinkResponse struct {
	URL string `json:"url"`
}
