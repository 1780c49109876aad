package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all service configuration, loaded from the environment.
type AppConfig struct {
	Port         string
	DatabasePath string
	LogLevel     string

	// GCSBucket selects Google Cloud Storage for uploaded statements.
	// When empty, blobs are written under LocalStorageDir instead.
	GCSBucket       string
	LocalStorageDir string

	// ExtractionModel is the model name requested from the extraction service.
	ExtractionModel string
	// ExtractionTimeout caps a single extraction call. The pipeline itself
	// imposes no timeout; this is the caller-side bound.
	ExtractionTimeout time.Duration

	MaxUploadSizeBytes int64
	JobQueueSize       int
	WorkerCount        int
}

// Load reads configuration from a .env file (when present) and the OS
// environment. Missing values fall back to development defaults.
func Load() *AppConfig {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on OS environment variables and defaults")
	}

	cfg := &AppConfig{
		Port:            getEnv("PORT", "8080"),
		DatabasePath:    getEnv("DATABASE_PATH", "./spendy.db"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		GCSBucket:       getEnv("GCS_BUCKET", ""),
		LocalStorageDir: getEnv("LOCAL_STORAGE_DIR", "./uploads"),
		ExtractionModel: getEnv("EXTRACTION_MODEL", "gemini-2.5-flash"),
	}

	cfg.ExtractionTimeout = getEnvDuration("EXTRACTION_TIMEOUT", 2*time.Minute)
	cfg.MaxUploadSizeBytes = getEnvInt64("MAX_UPLOAD_SIZE_BYTES", 4*1024*1024)
	cfg.JobQueueSize = int(getEnvInt64("JOB_QUEUE_SIZE", 100))
	cfg.WorkerCount = int(getEnvInt64("WORKER_COUNT", 5))

	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("WARNING: invalid %s=%q, using default %d", key, raw, fallback)
		return fallback
	}
	return value
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("WARNING: invalid %s=%q, using default %s", key, raw, fallback)
		return fallback
	}
	return value
}
