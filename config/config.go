package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	RedisURL    string
	ServerPort  string

	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string
	S3Bucket    string

	// Translation provider (chat-completions style endpoint).
	TranslationAPIURL string
	TranslationAPIKey string
	TranslationModel  string

	// Rate limiting and run bounds.
	RateLimitDelay    time.Duration
	MaxChaptersPerRun int
	ChunkSize         int

	// Headless toggles the rod browser fetcher. When false the pipeline
	// uses plain colly HTTP fetching.
	Headless bool
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	return &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		ServerPort:  envOr("PORT", "8080"),

		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3Bucket:    envOr("S3_BUCKET", "webtales"),

		TranslationAPIURL: envOr("TRANSLATION_API_URL", "https://api.openai.com/v1/chat/completions"),
		TranslationAPIKey: os.Getenv("TRANSLATION_API_KEY"),
		TranslationModel:  envOr("TRANSLATION_MODEL", "gpt-4o-mini"),

		RateLimitDelay:    time.Duration(envInt("TRANSLATION_RATE_LIMIT_MS", 1500)) * time.Millisecond,
		MaxChaptersPerRun: envInt("MAX_CHAPTERS_PER_RUN", 50),
		ChunkSize:         envInt("TRANSLATION_CHUNK_SIZE", 4000),

		Headless: envBool("HEADLESS", true),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
