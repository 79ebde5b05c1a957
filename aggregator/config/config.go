package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr string
	Env        string

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
	DBSSLMode  string
	JWTSecret  string
	TokenTTL   time.Duration

	// seeded on first start when the users table has no admin
	AdminEmail    string
	AdminPassword string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOSecure    bool

	RedisURL        string
	ChatRateLimit   int // requests per RateLimitWindow per client IP
	RateLimitWindow time.Duration
	MaxBodyBytes    int64

	ModelCatalogPath string
	LogDir           string

	// provider credentials used when no enabled key is stored in the api_keys table
	OpenRouterAPIKey string
	OpenAIAPIKey     string
	OllamaBaseURL    string
	YandexAPIKey     string
	YandexFolderID   string
	AllowedOrigins   []string
}

func LoadConfig() Config {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	return Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8000"),
		Env:        getEnv("ENV", "development"),

		DBUser:     getEnv("DB_USER", ""),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBName:     getEnv("DB_NAME", ""),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		JWTSecret:  getEnv("JWT_SECRET", ""),
		TokenTTL:   getDuration("TOKEN_TTL", 24*time.Hour),

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		MinIOEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinIOBucket:    getEnv("MINIO_BUCKET", "knowledge"),
		MinIOSecure:    getEnv("MINIO_SECURE", "false") == "true",

		RedisURL:        getEnv("REDIS_URL", ""),
		ChatRateLimit:   getPositiveInt("CHAT_RATE_LIMIT", 30),
		RateLimitWindow: getPositiveDuration("RATE_LIMIT_WINDOW", time.Minute),
		MaxBodyBytes:    int64(getInt("MAX_BODY_BYTES", 10<<20)),

		ModelCatalogPath: getEnv("MODEL_CATALOG", "aggregator/config/models.yaml"),
		LogDir:           getEnv("LOG_DIR", "./logs"),

		OpenRouterAPIKey: getEnv("OPENROUTER_API_KEY", ""),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OllamaBaseURL:    getEnv("OLLAMA_BASE_URL", "http://localhost:11434/api"),
		YandexAPIKey:     getEnv("YANDEX_API_KEY", ""),
		YandexFolderID:   getEnv("YANDEX_FOLDER_ID", ""),
		AllowedOrigins:   getList("ALLOWED_ORIGINS", []string{"*"}),
	}
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}

// getPositiveInt ignores zero and negative values; a limit of 0 would stop
// the limiter from ever refilling.
func getPositiveInt(key string, fallback int) int {
	if n := getInt(key, fallback); n > 0 {
		return n
	}
	return fallback
}

func getPositiveDuration(key string, fallback time.Duration) time.Duration {
	if d := getDuration(key, fallback); d > 0 {
		return d
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return d
}

func getList(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var out []string
	for _, entry := range strings.Split(raw, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
