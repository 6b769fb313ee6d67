package handler

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/cache"
	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/observability"
	"github.com/boddenberg/upsell-checkout-bfa/internal/service"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type contextKey string

const (
	sessionIDKey    contextKey = "sessionID"
	sessionTokenKey contextKey = "sessionToken"
)

// Where the browser presents its session token.
const (
	SessionCookie = "upsell_session"
	SessionHeader = "X-Session-Token"
)

// SessionMiddleware resolves the checkout session from the cookie or header.
// A missing or invalid token starts a new session; the fresh token is sent
// back in both the cookie and the header.
func SessionMiddleware(tokens *service.SessionTokens, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(SessionHeader)
			if token == "" {
				if c, err := r.Cookie(SessionCookie); err == nil {
					token = c.Value
				}
			}

			var sessionID string
			if token != "" {
				id, err := tokens.Validate(token)
				if err != nil {
					logger.Debug("session: invalid token, starting a new one",
						zap.String("path", r.URL.Path),
						zap.Error(err),
					)
				}
				sessionID = id
			}

			if sessionID == "" {
				id, fresh, err := tokens.NewSession()
				if err != nil {
					logger.Error("session: failed to issue token", zap.Error(err))
					writeError(w, http.StatusInternalServerError, "internal server error")
					return
				}
				sessionID, token = id, fresh

				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookie,
					Value:    token,
					Path:     "/",
					MaxAge:   int(tokens.TTL().Seconds()),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
				w.Header().Set(SessionHeader, token)
			}

			observability.AddLogFields(r.Context(), zap.String("session_id", sessionID))
			ctx := context.WithValue(r.Context(), sessionIDKey, sessionID)
			ctx = context.WithValue(ctx, sessionTokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionIDFromContext extracts the checkout session ID from context.
func SessionIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(sessionIDKey).(string)
	return v
}

func sessionTokenFromContext(ctx context.Context) string {
	v, _ := ctx.Value(sessionTokenKey).(string)
	return v
}

// AttributionMiddleware captures attribution parameters carried by the
// request URL, or else by the page URL the browser reports.
func AttributionMiddleware(tracking *service.TrackingService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sessionID := SessionIDFromContext(ctx)

			if _, stored := tracking.Capture(ctx, sessionID, r.URL.Query()); !stored {
				if u, err := url.Parse(pageURLFrom(r)); err == nil {
					tracking.Capture(ctx, sessionID, u.Query())
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================
// Rate limiting
// ============================================================

// RateLimiter hands out one token bucket per client IP. Idle buckets are
// dropped after the idle TTL.
type RateLimiter struct {
	rate  rate.Limit
	burst int

	mu      sync.Mutex // guards get-or-create
	clients *cache.InMemory[*rate.Limiter]
}

// NewRateLimiter creates a per-client limiter allowing rps requests per
// second with the given burst.
func NewRateLimiter(rps float64, burst int, idle time.Duration) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rate:    rate.Limit(rps),
		burst:   burst,
		clients: cache.New[*rate.Limiter](idle),
	}
}

// GetLimiter returns the limiter for the given IP.
func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.clients.Touch(ip); ok {
		return l
	}
	l := rate.NewLimiter(rl.rate, rl.burst)
	rl.clients.Set(ip, l)
	return l
}

// RateLimitMiddleware rejects clients that exceed their limit with 429.
func RateLimitMiddleware(rl *RateLimiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.GetLimiter(ip).Allow() {
				logger.Warn("rate limit exceeded", zap.String("path", r.URL.Path))
				writeError(w, http.StatusTooManyRequests, "Muitas requisições. Tente novamente em instantes.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP reads RemoteAddr, which middleware.RealIP has already rewritten.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
