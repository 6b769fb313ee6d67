package client

import (
	"context"
	"net"
	"net/url"
	"time"

	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/observability"
	"github.com/boddenberg/upsell-checkout-bfa/internal/port"
)

// DialProbe reports the gateway as reachable when a TCP connection to its
// host succeeds. Results are cached so a burst of submits dials once.
type DialProbe struct {
	address string
	timeout time.Duration
	cache   port.Cache[bool]
	metrics *observability.Metrics
}

// NewDialProbe builds a probe for the host of rawURL. The port defaults to
// the scheme's well-known port.
func NewDialProbe(rawURL string, timeout time.Duration, results port.Cache[bool]) (*DialProbe, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	portNum := u.Port()
	if portNum == "" {
		portNum = "443"
		if u.Scheme == "http" {
			portNum = "80"
		}
	}

	return &DialProbe{
		address: net.JoinHostPort(u.Hostname(), portNum),
		timeout: timeout,
		cache:   results,
	}, nil
}

// WithMetrics counts probe cache hits and misses.
func (p *DialProbe) WithMetrics(m *observability.Metrics) *DialProbe {
	p.metrics = m
	return p
}

// Online dials the gateway unless a fresh answer is cached.
func (p *DialProbe) Online(ctx context.Context) bool {
	if online, ok := p.cache.Get(p.address); ok {
		if p.metrics != nil {
			p.metrics.IncrCacheHit("reachability")
		}
		return online
	}
	if p.metrics != nil {
		p.metrics.IncrCacheMiss("reachability")
	}

	d := net.Dialer{Timeout: p.timeout}
	conn, err := d.DialContext(ctx, "tcp", p.address)
	online := err == nil
	if conn != nil {
		conn.Close()
	}

	p.cache.Set(p.address, online)
	return online
}

// StaticReachability always answers the same. Used by tests and the CLI.
type StaticReachability bool

func (s StaticReachability) Online(context.Context) bool { return bool(s) }
