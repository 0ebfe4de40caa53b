package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string

	// Database
	DatabaseURL string
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	// JWT
	JWTSecret string

	// Internal API (service-to-service scan calls)
	InternalAPIKey string

	// OpenAI
	OpenAIAPIKey   string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64
	ReviewEnabled  bool

	// Detection
	FuzzyThreshold float64
	NegationWindow int
	MaxExcerptLen  int
	DedupCooldown  time.Duration

	// Escalation windows per tier
	CriticalAckTimeout time.Duration
	HighAckTimeout     time.Duration
	ModerateAckTimeout time.Duration

	// Notification channels
	ChannelTimeout  time.Duration
	DigestFlushHour int
	CareTeamUserID  string
	CareTeamEmail   string
	CareTeamPhone   string

	// Push (FCM)
	FCMProjectID string
	FCMServerKey string

	// Email (SendGrid)
	SendGridAPIKey string
	EmailFrom      string

	// SMS (Twilio)
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	// Snowflake
	NodeID int64

	// CORS
	AllowedOrigins []string

	// Scheduler
	SchedulerEnabled bool
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "sentinel"),
		RedisURL:    getEnv("REDIS_URL", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		// Internal API
		InternalAPIKey: getEnv("INTERNAL_API_KEY", ""),

		// OpenAI
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 512),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.2),
		ReviewEnabled:  getEnvBool("LLM_REVIEW_ENABLED", false),

		// Detection
		FuzzyThreshold: getEnvFloat("FUZZY_THRESHOLD", 0.82),
		NegationWindow: getEnvInt("NEGATION_WINDOW", 3),
		MaxExcerptLen:  getEnvInt("MAX_EXCERPT_LEN", 500),
		DedupCooldown:  time.Duration(getEnvInt("DEDUP_COOLDOWN_MIN", 30)) * time.Minute,

		// Escalation windows
		CriticalAckTimeout: time.Duration(getEnvInt("CRITICAL_ACK_TIMEOUT_MIN", 10)) * time.Minute,
		HighAckTimeout:     time.Duration(getEnvInt("HIGH_ACK_TIMEOUT_MIN", 60)) * time.Minute,
		ModerateAckTimeout: time.Duration(getEnvInt("MODERATE_ACK_TIMEOUT_MIN", 1440)) * time.Minute,

		// Notification channels
		ChannelTimeout:  time.Duration(getEnvInt("CHANNEL_TIMEOUT_SEC", 10)) * time.Second,
		DigestFlushHour: getEnvInt("DIGEST_FLUSH_HOUR", 9),
		CareTeamUserID:  getEnv("CARE_TEAM_USER_ID", ""),
		CareTeamEmail:   getEnv("CARE_TEAM_EMAIL", ""),
		CareTeamPhone:   getEnv("CARE_TEAM_PHONE", ""),

		// Push
		FCMProjectID: getEnv("FCM_PROJECT_ID", ""),
		FCMServerKey: getEnv("FCM_SERVER_KEY", ""),

		// Email
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:      getEnv("EMAIL_FROM", "alerts@sentinel.local"),

		// SMS
		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: getEnv("TWILIO_FROM_NUMBER", ""),

		// Snowflake
		NodeID: int64(getEnvInt("NODE_ID", 1)),

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", nil),

		// Scheduler
		SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return defaultValue
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
