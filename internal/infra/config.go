package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Job store backends.
const (
	JobStoreFile   = "file"
	JobStoreRedis  = "redis"
	JobStoreMemory = "memory"
)

// Status sources.
const (
	StatusSourceDB   = "db"
	StatusSourceHTTP = "http"
)

// Storage backends.
const (
	StorageLocal  = "local"
	StorageRemote = "remote"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv        string
	Port          string
	DatabaseURL   string
	RedisURL      string
	DefaultLocale string

	SessionID   string
	JobStore    string
	JobStoreDir string

	WorkerPoolBaseURL string
	WorkerPoolAPIKey  string
	StatusSource      string

	StorageBackend    string
	StorageAPIBaseURL string
	StorageAPIKey     string
	StoragePath       string
	StorageBaseURL    string
	StorageSigningKey string

	PollInterval      time.Duration
	GenerationTimeout time.Duration
	SignedURLTTL      time.Duration
	BucketFallbacks   map[string][]string
	SignRatePerSecond float64

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	APIToken           string
	CORSAllowedOrigins []string
	APIRatePerSecond   float64
	APIRateBurst       int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
// A .env file in the working directory is read first when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              port,
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		DefaultLocale:     getEnv("DEFAULT_LOCALE", "en"),
		SessionID:         getEnv("SESSION_ID", "default"),
		JobStore:          strings.ToLower(getEnv("JOB_STORE", JobStoreFile)),
		JobStoreDir:       getEnv("JOB_STORE_DIR", "./.genjobs"),
		WorkerPoolBaseURL: strings.TrimRight(os.Getenv("WORKER_POOL_BASE_URL"), "/"),
		WorkerPoolAPIKey:  os.Getenv("WORKER_POOL_API_KEY"),
		StatusSource:      strings.ToLower(getEnv("STATUS_SOURCE", StatusSourceDB)),
		StorageBackend:    strings.ToLower(getEnv("STORAGE_BACKEND", StorageLocal)),
		StorageAPIBaseURL: strings.TrimRight(os.Getenv("STORAGE_API_BASE_URL"), "/"),
		StorageAPIKey:     os.Getenv("STORAGE_API_KEY"),
		StoragePath:       getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:    getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		StorageSigningKey: os.Getenv("STORAGE_SIGNING_KEY"),
		PollInterval:      time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 10)),
		GenerationTimeout: time.Second * time.Duration(getEnvInt("GENERATION_TIMEOUT_SECONDS", 300)),
		SignedURLTTL:      time.Second * time.Duration(getEnvInt("SIGNED_URL_TTL_SECONDS", 3600)),
		BucketFallbacks:   parseFallbacks(getEnv("BUCKET_FALLBACKS", "workspace-temp=user-library")),
		SignRatePerSecond: getEnvFloat("SIGN_RATE_PER_SECOND", 0),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 0)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),

		APIToken:           os.Getenv("API_TOKEN"),
		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		APIRatePerSecond:   getEnvFloat("API_RATE_PER_SECOND", 10),
		APIRateBurst:       getEnvInt("API_RATE_BURST", 20),
	}

	if cfg.WorkerPoolBaseURL == "" {
		return nil, fmt.Errorf("WORKER_POOL_BASE_URL is required")
	}
	// Asset records and push notifications both live in Postgres.
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	switch cfg.JobStore {
	case JobStoreFile, JobStoreMemory:
	case JobStoreRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when JOB_STORE=redis")
		}
	default:
		return nil, fmt.Errorf("unsupported JOB_STORE %q", cfg.JobStore)
	}
	switch cfg.StatusSource {
	case StatusSourceDB, StatusSourceHTTP:
	default:
		return nil, fmt.Errorf("unsupported STATUS_SOURCE %q", cfg.StatusSource)
	}
	switch cfg.StorageBackend {
	case StorageLocal:
		if cfg.StorageSigningKey == "" {
			return nil, fmt.Errorf("STORAGE_SIGNING_KEY is required when STORAGE_BACKEND=local")
		}
	case StorageRemote:
		if cfg.StorageAPIBaseURL == "" {
			return nil, fmt.Errorf("STORAGE_API_BASE_URL is required when STORAGE_BACKEND=remote")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	return cfg, nil
}

// parseFallbacks reads "bucket=alt1|alt2,other=alt3".
func parseFallbacks(raw string) map[string][]string {
	out := make(map[string][]string)
	for _, pair := range strings.Split(raw, ",") {
		bucket, alts, ok := strings.Cut(strings.TrimSpace(pair), "=")
		bucket = strings.TrimSpace(bucket)
		if !ok || bucket == "" {
			continue
		}
		for _, alt := range strings.Split(alts, "|") {
			if alt = strings.TrimSpace(alt); alt != "" {
				out[bucket] = append(out[bucket], alt)
			}
		}
	}
	return out
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
