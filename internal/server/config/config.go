package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const (
	KVBackendMemory = "memory"
	KVBackendRedis  = "redis"

	ImageStorageInline     = "inline"
	ImageStorageFilesystem = "filesystem"
	ImageStorageMinio      = "minio"
)

type Config struct {
	Port        string
	Environment string
	BaseURL     string

	KVBackend     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DatabaseURL     string
	DatabaseMaxConn int32
	CleanupInterval time.Duration

	ImageStorage   string
	StoragePath    string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	GeminiAPIKey        string
	GeminiModel         string
	AITemperature       float64
	AIMaxOutputTokens   int
	AIRequestsPerMinute int
	CritiqueMaxRetries  int
	CritiqueTimeout     time.Duration
	MaxUploadSize       int64
	MaxCritiqueSize     int64
	RateLimitRPS        float64
	RateLimitBurst      int
	OTLPEndpoint        string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		BaseURL:     strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/"),

		KVBackend:     getEnv("KV_BACKEND", KVBackendMemory),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		DatabaseURL:     getEnv("DATABASE_URL", ""),
		DatabaseMaxConn: int32(getEnvInt("DATABASE_MAX_CONNS", 0)),
		CleanupInterval: getEnvHours("CLEANUP_INTERVAL_HOURS", time.Hour),

		ImageStorage:   getEnv("IMAGE_STORAGE", ImageStorageInline),
		StoragePath:    getEnv("STORAGE_PATH", "./storage/images"),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:    getEnv("MINIO_BUCKET", "photo-critiques"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		AITemperature:       getEnvFloat64("AI_TEMPERATURE", 0.7),
		AIMaxOutputTokens:   getEnvInt("AI_MAX_OUTPUT_TOKENS", 1000),
		AIRequestsPerMinute: getEnvInt("AI_REQUESTS_PER_MINUTE", 15),
		CritiqueMaxRetries:  getEnvInt("CRITIQUE_MAX_RETRIES", 1),
		CritiqueTimeout:     time.Duration(getEnvInt("CRITIQUE_TIMEOUT_SECONDS", 90)) * time.Second,
		MaxUploadSize:       getEnvInt64("MAX_UPLOAD_SIZE", 10<<20),
		MaxCritiqueSize:     getEnvInt64("MAX_CRITIQUE_SIZE", 20<<20),
		RateLimitRPS:        getEnvFloat64("RATE_LIMIT_RPS", 2),
		RateLimitBurst:      getEnvInt("RATE_LIMIT_BURST", 10),
		OTLPEndpoint:        getEnv("OTLP_ENDPOINT", ""),
	}
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func (c *Config) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat64(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvHours parses fractional hours, so "0.5" is thirty minutes.
func getEnvHours(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if hours, err := strconv.ParseFloat(val, 64); err == nil {
			return time.Duration(hours * float64(time.Hour))
		}
	}
	return fallback
}
