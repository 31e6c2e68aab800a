package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr      string
	PublicBaseURL string
	DatabaseURL   string
	LogLevel      string

	// Question generation
	OpenAIAPIKey string

	// LiveKit room access
	LiveKitURL       string
	LiveKitAPIKey    string
	LiveKitAPISecret string

	// Interview settings
	QuestionCount int
	Language      string

	// Session token authentication
	JWTSecret string
	JWTExpiry time.Duration

	// Stale session reaper
	ReaperInterval time.Duration
	SessionIdleFor time.Duration

	// Notifications
	DiscordWebhookURL string

	// Error reporting
	SentryDSN string
}

func LoadConfigFromEnv() Config {
	jwtExpiry, err := time.ParseDuration(getenv("JWT_EXPIRY", "4h"))
	if err != nil {
		jwtExpiry = 4 * time.Hour
	}

	return Config{
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		PublicBaseURL: getenv("PUBLIC_BASE_URL", "http://localhost:8080"),
		DatabaseURL:   getenv("DATABASE_URL", ""),
		LogLevel:      getenv("LOG_LEVEL", "info"),

		// Question generation
		OpenAIAPIKey: getenv("OPENAI_API_KEY", ""),

		// LiveKit room access
		LiveKitURL:       getenv("LIVEKIT_URL", ""),
		LiveKitAPIKey:    getenv("LIVEKIT_API_KEY", ""),
		LiveKitAPISecret: getenv("LIVEKIT_API_SECRET", ""),

		// Interview settings
		QuestionCount: getenvInt("QUESTION_COUNT", 5),
		Language:      getenv("INTERVIEW_LANGUAGE", "en-US"),

		// Session token authentication
		JWTSecret: os.Getenv("JWT_SECRET"), // Required - no fallback for security
		JWTExpiry: jwtExpiry,

		// Stale session reaper
		ReaperInterval: getenvDuration("REAPER_INTERVAL", 1*time.Minute),
		SessionIdleFor: getenvDuration("SESSION_IDLE_FOR", 10*time.Minute),

		// Notifications
		DiscordWebhookURL: getenv("DISCORD_WEBHOOK_URL", ""),

		// Error reporting
		SentryDSN: getenv("SENTRY_DSN", ""),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
