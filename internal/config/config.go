package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Gemini AI
	GeminiAPIKey         string
	GeminiConcurrentReqs int
	ScriptModel          string

	// Text-to-speech
	GoogleTTSAPIKey string
	TTSModel        string
	DefaultVoice    string

	// Generation pipeline
	GenerationLeadTime      time.Duration
	GenerationRetryInterval time.Duration
	GenerationCallTimeout   time.Duration
	WorkerCount             int

	// Wake delivery
	FailSafeGrace   time.Duration
	FallbackSoundID string
	BackupSoundID   string

	// Snooze defaults for new alarms
	DefaultSnoozeDuration time.Duration
	DefaultMaxSnoozes     int
	DefaultTone           string

	// Storage
	StoragePath string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		Env:         getEnvOrDefault("ENV", "development"),
		DatabaseURL: mustGetEnv("DATABASE_URL"),
		RedisURL:    mustGetEnv("REDIS_URL"),
		JWTSecret:   mustGetEnv("JWT_SECRET"),

		GeminiAPIKey:         mustGetEnv("GEMINI_API_KEY"),
		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
		ScriptModel:          getEnvOrDefault("SCRIPT_MODEL", "gemini-2.0-flash"),

		GoogleTTSAPIKey: getEnvOrDefault("GOOGLE_TTS_API_KEY", ""),
		TTSModel:        getEnvOrDefault("TTS_MODEL", "neural2"),
		DefaultVoice:    getEnvOrDefault("DEFAULT_VOICE", "en-US-Neural2-F"),

		GenerationLeadTime:      getEnvAsDurationOrDefault("GENERATION_LEAD_TIME", time.Hour),
		GenerationRetryInterval: getEnvAsDurationOrDefault("GENERATION_RETRY_INTERVAL", 10*time.Minute),
		GenerationCallTimeout:   getEnvAsDurationOrDefault("GENERATION_CALL_TIMEOUT", 60*time.Second),
		WorkerCount:             getEnvAsIntOrDefault("WORKER_COUNT", 4),

		FailSafeGrace:   getEnvAsDurationOrDefault("FAILSAFE_GRACE_INTERVAL", 90*time.Second),
		FallbackSoundID: getEnvOrDefault("FALLBACK_SOUND_ID", "classic_bell"),
		BackupSoundID:   getEnvOrDefault("BACKUP_SOUND_ID", "backup_siren"),

		DefaultSnoozeDuration: getEnvAsDurationOrDefault("DEFAULT_SNOOZE_DURATION", 9*time.Minute),
		DefaultMaxSnoozes:     getEnvAsIntOrDefault("DEFAULT_MAX_SNOOZES", 3),
		DefaultTone:           getEnvOrDefault("DEFAULT_TONE", "energetic"),

		StoragePath: getEnvOrDefault("STORAGE_PATH", "./audio"),
		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	// One Google API key usually covers both products.
	if cfg.GoogleTTSAPIKey == "" {
		cfg.GoogleTTSAPIKey = cfg.GeminiAPIKey
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
