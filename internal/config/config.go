package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)
	PublicBaseURL      string // Base URL this service is reachable at (for payload/callback/download URLs)

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Object storage (narrow contract: upload bytes, get back a URL)
	StorageURL        string
	StorageServiceKey string
	StorageBucket     string

	// Internal worker contract
	InternalRenderSecret string // Shared secret for payload/callback endpoints
	RemoteWorkerURL      string // Remote encoding worker dispatch endpoint (empty = render in-process)
	RemoteWorkerToken    string // Bearer token the remote worker expects

	// Render engine
	WorkDir              string // Per-job scratch directories live under here
	OutputDir            string // Finished files kept locally when storage upload fails
	WatermarkText        string
	RenderTimeoutSec     int // Wall-clock ceiling for one render job
	DownloadTimeoutSec   int // Per-fetch bound for audio/clip downloads
	ParallelSceneEncodes int // Concurrent sub-clip encodes within one job
	SweepMaxAgeHours     int // Janitor removes scratch dirs older than this

	// Worker
	MaxConcurrentJobs int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),

		StorageURL:        getEnv("STORAGE_URL", ""),
		StorageServiceKey: getEnv("STORAGE_SERVICE_KEY", ""),
		StorageBucket:     getEnv("STORAGE_BUCKET", "renders"),

		InternalRenderSecret: getEnv("INTERNAL_RENDER_SECRET", ""),
		RemoteWorkerURL:      getEnv("REMOTE_WORKER_URL", ""),
		RemoteWorkerToken:    getEnv("REMOTE_WORKER_TOKEN", ""),

		WorkDir:              getEnv("WORK_DIR", "/tmp/clipsmith"),
		OutputDir:            getEnv("OUTPUT_DIR", "/tmp/clipsmith/outputs"),
		WatermarkText:        getEnv("WATERMARK_TEXT", "clipsmith"),
		RenderTimeoutSec:     getEnvInt("RENDER_TIMEOUT_SEC", 300),
		DownloadTimeoutSec:   getEnvInt("DOWNLOAD_TIMEOUT_SEC", 60),
		ParallelSceneEncodes: getEnvInt("PARALLEL_SCENE_ENCODES", 2),
		SweepMaxAgeHours:     getEnvInt("SWEEP_MAX_AGE_HOURS", 24),

		MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", 2),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.InternalRenderSecret == "" {
		return nil, fmt.Errorf("INTERNAL_RENDER_SECRET is required")
	}

	// Storage is optional (local streaming fallback covers dev), but partial
	// configuration is almost certainly a mistake.
	if (cfg.StorageURL == "") != (cfg.StorageServiceKey == "") {
		return nil, fmt.Errorf("STORAGE_URL and STORAGE_SERVICE_KEY must be set together")
	}

	if cfg.RemoteWorkerURL != "" && cfg.RemoteWorkerToken == "" {
		return nil, fmt.Errorf("REMOTE_WORKER_TOKEN is required when REMOTE_WORKER_URL is set")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
