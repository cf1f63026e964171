package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	// Tenant identity and inbound address handling
	OrgID              string
	DefaultPhoneRegion string
	PublicBaseURL      string

	// Operator endpoints
	OperatorJWTSecret string
	PanelOrigins      []string
	WebhookRatePerSec  float64
	WebhookBurst       int

	// Twilio WhatsApp dispatch
	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioWhatsAppFrom  string
	TwilioWebhookSecret string

	// Classifier models
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	BedrockModelID      string
	GeminiAPIKey        string
	GeminiModelID       string

	// Inbound turn debouncing
	BufferWindow      time.Duration
	BufferMaxSegments int

	// Scheduling loops
	ReminderInterval   time.Duration
	ReminderMargin     time.Duration
	AttendanceInterval time.Duration
	SurveyInterval     time.Duration
	EvictionInterval   time.Duration
	EvictionTTL        time.Duration
	FollowupInterval   time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		OrgID:              getEnv("ORG_ID", "default"),
		DefaultPhoneRegion: getEnv("DEFAULT_PHONE_REGION", "MX"),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", ""),

		OperatorJWTSecret: getEnv("OPERATOR_JWT_SECRET", ""),
		PanelOrigins:      getEnvAsList("PANEL_ALLOWED_ORIGINS"),
		WebhookRatePerSec:  getEnvAsFloat("WEBHOOK_RATE_PER_SEC", 5),
		WebhookBurst:       getEnvAsInt("WEBHOOK_BURST", 10),

		TwilioAccountSID:    getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioWhatsAppFrom:  getEnv("TWILIO_WHATSAPP_NUMBER", ""),
		TwilioWebhookSecret: getEnv("TWILIO_WEBHOOK_SECRET", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:       getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		BufferWindow:      getEnvAsDuration("BUFFER_WINDOW", 10*time.Second),
		BufferMaxSegments: getEnvAsInt("BUFFER_MAX_SEGMENTS", 3),

		// Reminder and attendance windows are minutes wide; the poll
		// interval must stay shorter than the window or rows slip past
		// unclaimed.
		ReminderInterval:   getEnvAsDuration("REMINDER_INTERVAL", time.Minute),
		ReminderMargin:     getEnvAsDuration("REMINDER_MARGIN", 5*time.Minute),
		AttendanceInterval: getEnvAsDuration("ATTENDANCE_INTERVAL", time.Minute),
		SurveyInterval:     getEnvAsDuration("SURVEY_INTERVAL", 15*time.Minute),
		EvictionInterval:   getEnvAsDuration("EVICTION_INTERVAL", 10*time.Minute),
		EvictionTTL:        getEnvAsDuration("EVICTION_TTL", 30*time.Minute),
		FollowupInterval:   getEnvAsDuration("FOLLOWUP_INTERVAL", 30*time.Minute),
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

// getEnvAsList splits a comma-separated environment variable.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
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
