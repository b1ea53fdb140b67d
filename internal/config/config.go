package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	SessionTTL    time.Duration

	CORSAllowedOrigins []string
	AdminJWTSecret     string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Bounded timeout applied to every outbound call.
	OutboundTimeout time.Duration

	ContentModeratorURL string
	ContentModeratorKey string
	DNCCheckURL         string
	IPEchoURL           string

	FrequencyURL       string
	FrequencyAuth      string
	WebhookURL         string
	WebhookAuth        string
	WebhookMaxAttempts int
	WebhookBackoff     time.Duration

	DiscordWebhookURL string
	DefaultSourceURL  string

	WhatsAppAPIURL      string
	WhatsAppAPIKey      string
	WhatsAppFromNumber  string
	WhatsAppCountryCode string

	// Operator email alerts
	EmailProvider       string
	SendGridAPIKey      string
	EmailFrom           string
	EmailFromName       string
	LeadAlertRecipients []string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string

	FormLabelsFile           string
	EligibilityListingPrefix string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 2*time.Hour),

		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", nil),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 1),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 10),

		OutboundTimeout: getEnvAsDuration("OUTBOUND_TIMEOUT", 8*time.Second),

		ContentModeratorURL: getEnv("CONTENT_MODERATOR_URL", ""),
		ContentModeratorKey: getEnv("CONTENT_MODERATOR_KEY", ""),
		DNCCheckURL:         getEnv("DNC_CHECK_URL", ""),
		IPEchoURL:           getEnv("IP_ECHO_URL", "https://api.ipify.org/?format=json"),

		FrequencyURL:       getEnv("FREQUENCY_URL", ""),
		FrequencyAuth:      getEnv("FREQUENCY_AUTH", ""),
		WebhookURL:         getEnv("WEBHOOK_URL", ""),
		WebhookAuth:        getEnv("WEBHOOK_AUTH", ""),
		WebhookMaxAttempts: getEnvAsInt("WEBHOOK_MAX_ATTEMPTS", 3),
		WebhookBackoff:     getEnvAsDuration("WEBHOOK_BACKOFF", 500*time.Millisecond),

		DiscordWebhookURL: getEnv("DISCORD_WEBHOOK_URL", ""),
		DefaultSourceURL:  getEnv("DEFAULT_SOURCE_URL", "https://launchgovtest.homes/"),

		WhatsAppAPIURL:      getEnv("WHATSAPP_API_URL", "https://api.p.2chat.io/open/whatsapp/send-message"),
		WhatsAppAPIKey:      getEnv("WHATSAPP_API_KEY", ""),
		WhatsAppFromNumber:  getEnv("WHATSAPP_FROM_NUMBER", ""),
		WhatsAppCountryCode: getEnv("WHATSAPP_COUNTRY_CODE", "+65"),

		EmailProvider:       strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "none"))),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:           getEnv("EMAIL_FROM", ""),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "Lead Capture"),
		LeadAlertRecipients: getEnvAsSlice("LEAD_ALERT_RECIPIENTS", nil),
		AWSRegion:           getEnv("AWS_REGION", "ap-southeast-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),

		FormLabelsFile:           getEnv("FORM_LABELS_FILE", ""),
		EligibilityListingPrefix: getEnv("ELIGIBILITY_LISTING_PREFIX", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsSlice splits a comma separated variable, dropping blanks.
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
