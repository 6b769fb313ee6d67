package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// External services
	GatewayURL       string
	GatewaySecret    string
	CPFLookupURL     string
	AnalyticsSinkURL string // empty disables the HTTP analytics sink

	// HTTP client
	HTTPTimeout     time.Duration
	ReachabilityTTL time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxConcurrency int

	// Rate limiting (per client IP)
	RateLimitRPS   float64
	RateLimitBurst int

	// Storage
	StorageBackend string // memory | redis
	RedisURL       string

	// Sessions
	SessionSecret string
	SessionTTL    time.Duration

	// Offer
	OfferAmountCents int64
	OfferTitle       string
	OfferCountdown   time.Duration
	PixCountdown     time.Duration
	CountdownTick    time.Duration

	// Thank-you page
	WhatsAppNumber  string
	WhatsAppMessage string

	// Observability
	OTLPEndpoint  string
	DebugTracking bool
}

const (
	defaultOfferTitle      = "Combo VIP - 150 Números + Rifa VIP R$5.000 + Grupo VIP"
	defaultWhatsAppMessage = "Oi! Acabei de ativar minha vantagem VIP e quero entrar no grupo para receber meus 150 números extras!"
)

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		GatewayURL:       strings.TrimRight(getEnv("GATEWAY_URL", "http://localhost:8081"), "/"),
		GatewaySecret:    getEnv("GATEWAY_SECRET", ""),
		CPFLookupURL:     strings.TrimRight(getEnv("CPF_LOOKUP_URL", "https://api.cpfcnpj.com.br"), "/"),
		AnalyticsSinkURL: getEnv("ANALYTICS_SINK_URL", ""),

		HTTPTimeout:     getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
		ReachabilityTTL: getEnvDuration("REACHABILITY_TTL", 15*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxBackoff:     getEnvDuration("MAX_BACKOFF", 5*time.Second),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20),

		StorageBackend: getEnv("STORAGE_BACKEND", "memory"),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),

		SessionSecret: getEnv("SESSION_SECRET", "upsell-default-dev-secret-change-me"),
		SessionTTL:    getEnvDuration("SESSION_TTL", 2*time.Hour),

		OfferAmountCents: int64(getEnvInt("OFFER_AMOUNT_CENTS", 2990)),
		OfferTitle:       getEnv("OFFER_TITLE", defaultOfferTitle),
		OfferCountdown:   getEnvDuration("OFFER_COUNTDOWN", 10*time.Minute),
		PixCountdown:     getEnvDuration("PIX_COUNTDOWN", 30*time.Minute),
		CountdownTick:    getEnvDuration("COUNTDOWN_TICK", time.Second),

		WhatsAppNumber:  getEnv("WHATSAPP_NUMBER", "5511999999999"),
		WhatsAppMessage: getEnv("WHATSAPP_MESSAGE", defaultWhatsAppMessage),

		OTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		DebugTracking: getEnvBool("DEBUG_TRACKING", false),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
