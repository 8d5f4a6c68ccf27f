package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr string

	// History persistence: "db" (gorm over sqlite/mysql) or "redis".
	HistoryBackend string
	DBDriver       string
	DBDSN          string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// Empty secret disables auth (dev mode).
	JWTSecret string

	// Request lifecycle
	ContextBudgetChars    int
	MaxConcurrentRequests int
	RequestTimeout        time.Duration

	// AI provider
	AIProvider        string
	OllamaBaseURL     string
	OllamaModel       string
	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterSiteURL string
	OpenRouterAppName string

	// rabbitMQ event publishing; empty URL disables it
	RabbitURL   string
	RabbitQueue string
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func Load() Config {
	budget := envInt("CHAT_CONTEXT_BUDGET_CHARS", 8000)

	maxConcurrent := envInt("CHAT_MAX_CONCURRENT_REQUESTS", 1)
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	timeout := time.Duration(envInt("CHAT_REQUEST_TIMEOUT_SECONDS", 120)) * time.Second
	if timeout < 0 {
		timeout = 0
	}

	return Config{
		Addr: envStr("ADDR", ":8080"),

		HistoryBackend: envStr("HISTORY_BACKEND", "db"),
		DBDriver:       envStr("DB_DRIVER", "sqlite"),
		DBDSN:          envStr("DB_DSN", "file:chatcore.db?cache=shared"),
		RedisAddr:      envStr("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        envInt("REDIS_DB", 0),

		JWTSecret: os.Getenv("JWT_SECRET"),

		ContextBudgetChars:    budget,
		MaxConcurrentRequests: maxConcurrent,
		RequestTimeout:        timeout,

		AIProvider:        envStr("AI_PROVIDER", "ollama"),
		OllamaBaseURL:     envStr("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:       envStr("OLLAMA_MODEL", "llama3:latest"),
		OpenRouterBaseURL: envStr("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel:   envStr("OPENROUTER_MODEL", "openrouter/auto"),
		OpenRouterSiteURL: os.Getenv("OPENROUTER_SITE_URL"),
		OpenRouterAppName: os.Getenv("OPENROUTER_APP_NAME"),

		RabbitURL:   os.Getenv("RABBIT_URL"),
		RabbitQueue: envStr("RABBIT_QUEUE", "chat_events"),
	}
}
