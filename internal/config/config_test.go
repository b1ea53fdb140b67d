package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("OUTBOUND_TIMEOUT", "")
	t.Setenv("WEBHOOK_MAX_ATTEMPTS", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.OutboundTimeout != 8*time.Second {
		t.Fatalf("expected default outbound timeout, got %s", cfg.OutboundTimeout)
	}
	if cfg.WebhookMaxAttempts != 3 {
		t.Fatalf("expected default webhook attempts, got %d", cfg.WebhookMaxAttempts)
	}
	if cfg.IPEchoURL != "https://api.ipify.org/?format=json" {
		t.Fatalf("unexpected ip echo default %s", cfg.IPEchoURL)
	}
	if cfg.WhatsAppCountryCode != "+65" {
		t.Fatalf("unexpected country code default %s", cfg.WhatsAppCountryCode)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("OUTBOUND_TIMEOUT", "5s")
	t.Setenv("WEBHOOK_MAX_ATTEMPTS", "5")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("EMAIL_PROVIDER", " SES ")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.test, ,https://b.test")
	t.Setenv("LEAD_ALERT_RECIPIENTS", "ops@x.test")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.OutboundTimeout != 5*time.Second {
		t.Fatalf("expected timeout override, got %s", cfg.OutboundTimeout)
	}
	if cfg.WebhookMaxAttempts != 5 {
		t.Fatalf("expected attempts override, got %d", cfg.WebhookMaxAttempts)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("expected rps override, got %v", cfg.RateLimitRPS)
	}
	if !cfg.RedisTLS {
		t.Fatalf("expected redis tls enabled")
	}
	if cfg.EmailProvider != "ses" {
		t.Fatalf("expected normalized email provider, got %q", cfg.EmailProvider)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.test" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if len(cfg.LeadAlertRecipients) != 1 {
		t.Fatalf("unexpected recipients %v", cfg.LeadAlertRecipients)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("WEBHOOK_MAX_ATTEMPTS", "many")
	t.Setenv("SESSION_TTL", "forever")
	cfg := Load()
	if cfg.WebhookMaxAttempts != 3 {
		t.Fatalf("expected fallback attempts, got %d", cfg.WebhookMaxAttempts)
	}
	if cfg.SessionTTL != 2*time.Hour {
		t.Fatalf("expected fallback session ttl, got %s", cfg.SessionTTL)
	}
}
