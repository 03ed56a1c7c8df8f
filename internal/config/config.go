package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Triage    TriageConfig
	Provider  ProviderConfig
	Embedding EmbeddingConfig
	Worker    WorkerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// TriageConfig carries the classification category set and cache tuning.
// Categories come from the YAML triage file, not the environment, so the
// category set can be reviewed and versioned alongside the deployment.
type TriageConfig struct {
	ConfigFile string
	Categories []string
	// ShieldThreshold is the maximum cosine distance accepted as a semantic
	// cache hit. Strictly-below comparison; tune conservatively, a false
	// positive silently mislabels a ticket.
	ShieldThreshold float64
	FewShotLimit    int
	// TeachUnclassified controls whether sentinel results are written into
	// the semantic cache after a model call.
	TeachUnclassified bool
}

// ProviderConfig selects and tunes the classification provider.
type ProviderConfig struct {
	// Kind is one of "gemini", "ollama", "none".
	Kind             string
	GeminiAPIKey     string
	GeminiModel      string
	OllamaHost       string
	OllamaModel      string
	TimeoutSeconds   int
	MaxAttempts      int
	RetryBaseSeconds float64
}

// EmbeddingConfig points at the embedding service backing the vector index.
type EmbeddingConfig struct {
	Host       string
	Model      string
	Dimensions int
}

// WorkerConfig sizes the deferred classification pool.
type WorkerConfig struct {
	Count     int
	QueueSize int
}

// triageFile mirrors the on-disk YAML layout.
type triageFile struct {
	Triage struct {
		Categories        []string `yaml:"categories"`
		ShieldThreshold   *float64 `yaml:"shield_threshold"`
		FewShotLimit      *int     `yaml:"few_shot_limit"`
		TeachUnclassified *bool    `yaml:"teach_unclassified"`
	} `yaml:"triage"`
}

// Load reads configuration from environment variables and the triage YAML
// file, applying defaults where possible. A missing or empty category list is
// a fatal configuration error: the classifier has nothing to classify into.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "triage-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Triage: TriageConfig{
			ConfigFile:        getEnv("TRIAGE_CONFIG_FILE", "config.yaml"),
			ShieldThreshold:   0.5,
			FewShotLimit:      3,
			TeachUnclassified: false,
		},
		Provider: ProviderConfig{
			Kind:             getEnv("LLM_PROVIDER", "gemini"),
			GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
			GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			OllamaHost:       getEnv("OLLAMA_HOST", "http://127.0.0.1:11434"),
			OllamaModel:      getEnv("OLLAMA_MODEL", "llama3"),
			TimeoutSeconds:   getEnvAsInt("LLM_TIMEOUT_SECONDS", 60),
			MaxAttempts:      getEnvAsInt("LLM_MAX_ATTEMPTS", 5),
			RetryBaseSeconds: getEnvAsFloat("LLM_RETRY_BASE_SECONDS", 4.0),
		},
		Embedding: EmbeddingConfig{
			Host:       getEnv("EMBEDDING_HOST", "http://127.0.0.1:11434"),
			Model:      getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			Dimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 768),
		},
		Worker: WorkerConfig{
			Count:     getEnvAsInt("WORKER_COUNT", 4),
			QueueSize: getEnvAsInt("WORKER_QUEUE_SIZE", 256),
		},
	}

	if err := loadTriageFile(&cfg.Triage); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadTriageFile merges the YAML triage section into the defaults.
func loadTriageFile(cfg *TriageConfig) error {
	data, err := os.ReadFile(cfg.ConfigFile)
	if err != nil {
		return fmt.Errorf("read triage config %s: %w", cfg.ConfigFile, err)
	}

	var file triageFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse triage config %s: %w", cfg.ConfigFile, err)
	}

	if len(file.Triage.Categories) == 0 {
		return fmt.Errorf("triage config %s: triage.categories is empty", cfg.ConfigFile)
	}
	cfg.Categories = file.Triage.Categories

	if file.Triage.ShieldThreshold != nil {
		cfg.ShieldThreshold = *file.Triage.ShieldThreshold
	}
	if file.Triage.FewShotLimit != nil {
		cfg.FewShotLimit = *file.Triage.FewShotLimit
	}
	if file.Triage.TeachUnclassified != nil {
		cfg.TeachUnclassified = *file.Triage.TeachUnclassified
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the per-call provider timeout.
func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// RetryBase returns the base delay for the provider backoff schedule.
func (p ProviderConfig) RetryBase() time.Duration {
	if p.RetryBaseSeconds <= 0 {
		return 4 * time.Second
	}
	return time.Duration(p.RetryBaseSeconds * float64(time.Second))
}

// HasCategory reports membership in the configured category set.
func (t TriageConfig) HasCategory(category string) bool {
	for _, c := range t.Categories {
		if c == category {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
