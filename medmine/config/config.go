package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
	JWTSecret  string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string

	ListenAddr  string
	LLMProvider string
	LLMModel    string
	OllamaURL   string
	GroqAPIKey  string

	// IngestSyncRows is the largest table stored inline by /process. Larger
	// tables are answered with status "enqueued" and stored by the queue.
	IngestSyncRows int
	IngestWorkers  int
	MaxUploadBytes int64
}

// ClientConfig drives the medmine CLI and the client packages.
type ClientConfig struct {
	APIURL    string
	Token     string
	StateFile string
	PageSize  int
	Timeout   time.Duration
}

func LoadConfig() Config {
	loadDotEnv()

	return Config{
		DBUser:     getEnv("DB_USER", ""),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBName:     getEnv("DB_NAME", "medmine"),
		JWTSecret:  getEnv("JWT_SECRET", ""),

		MinIOEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinIOBucket:    getEnv("MINIO_BUCKET", "medmine-uploads"),

		ListenAddr:  getEnv("LISTEN_ADDR", ":8000"),
		LLMProvider: getEnv("LLM_PROVIDER", "ollama"),
		LLMModel:    getEnv("LLM_MODEL", "llama3:8b"),
		OllamaURL:   getEnv("OLLAMA_URL", "http://localhost:11434/api"),
		GroqAPIKey:  getEnv("GROQ_API_KEY", ""),

		IngestSyncRows: getEnvInt("INGEST_SYNC_ROWS", 500),
		IngestWorkers:  getEnvInt("INGEST_WORKERS", 2),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_MB", 32)) << 20,
	}
}

func LoadClientConfig() ClientConfig {
	loadDotEnv()

	return ClientConfig{
		APIURL:    getEnv("MEDMINE_API_URL", "http://localhost:8000/api/v1"),
		Token:     getEnv("MEDMINE_TOKEN", ""),
		StateFile: getEnv("MEDMINE_STATE_FILE", defaultStateFile()),
		PageSize:  getEnvInt("MEDMINE_PAGE_SIZE", 100),
		Timeout:   getEnvDuration("MEDMINE_TIMEOUT", 120*time.Second),
	}
}

// loadDotEnv reads .env when present; system environment variables win.
func loadDotEnv() {
	_ = godotenv.Load()
}

func defaultStateFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "medmine", "state.yaml")
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
