package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Document store. mongodb:// selects MongoDB, "@tcp(" selects MySQL, anything else is SQLite.
	DBDSN         string `mapstructure:"db_dsn"`
	MongoDatabase string `mapstructure:"mongo_database"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	// Generation
	GenerationProvider string        `mapstructure:"generation_provider"`
	GenerationModel    string        `mapstructure:"generation_model"`
	GenerationTimeout  time.Duration `mapstructure:"generation_timeout"`
	GeminiAPIKey       string        `mapstructure:"gemini_api_key"`
	GeminiBaseURL      string        `mapstructure:"gemini_base_url"`
	OpenAIAPIKey       string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL      string        `mapstructure:"openai_base_url"`
	OpenRouterAPIKey   string        `mapstructure:"openrouter_api_key"`
	OpenRouterBaseURL  string        `mapstructure:"openrouter_base_url"`
	OllamaBaseURL      string        `mapstructure:"ollama_base_url"`

	// rabbitMQ
	RabbitURL         string `mapstructure:"rabbit_url"`
	RabbitQueue       string `mapstructure:"rabbit_queue"`
	WorkerConcurrency int    `mapstructure:"worker_concurrency"`

	// JobTimeout bounds one reply job, including after a shutdown signal.
	JobTimeout time.Duration `mapstructure:"job_timeout"`

	LogLevel       string `mapstructure:"log_level"`
	LogDevelopment bool   `mapstructure:"log_development"`
}

type StoreKind string

const (
	StoreSQLite StoreKind = "sqlite"
	StoreMySQL  StoreKind = "mysql"
	StoreMongo  StoreKind = "mongo"
)

// StoreKind reports which backend DBDSN points at.
func (c Config) StoreKind() StoreKind {
	dsn := strings.TrimSpace(c.DBDSN)
	switch {
	case strings.HasPrefix(dsn, "mongodb://"), strings.HasPrefix(dsn, "mongodb+srv://"):
		return StoreMongo
	case strings.Contains(dsn, "@tcp("):
		return StoreMySQL
	default:
		return StoreSQLite
	}
}

// AsyncRepliesEnabled is true when both the job store and the queue are configured.
func (c Config) AsyncRepliesEnabled() bool {
	return c.RedisAddr != "" && c.RabbitURL != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("shutdown_timeout", 10*time.Second)

	v.SetDefault("db_dsn", "ducktype.db")
	v.SetDefault("mongo_database", "ducktype")

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("generation_provider", "gemini")
	v.SetDefault("generation_model", "")
	v.SetDefault("generation_timeout", 90*time.Second)
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("gemini_base_url", "https://generativelanguage.googleapis.com/")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_base_url", "")
	v.SetDefault("openrouter_api_key", "")
	v.SetDefault("openrouter_base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("ollama_base_url", "http://localhost:11434")

	v.SetDefault("rabbit_url", "")
	v.SetDefault("rabbit_queue", "reply_jobs")
	v.SetDefault("worker_concurrency", 2)
	v.SetDefault("job_timeout", 2*time.Minute)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_development", false)
}

// Load reads configuration from the environment and, when CONFIG_FILE is set, from that file.
// Environment variables win over the file.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.GenerationProvider = strings.ToLower(strings.TrimSpace(cfg.GenerationProvider))
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 2
	}
	if cfg.WorkerConcurrency > 50 {
		cfg.WorkerConcurrency = 50
	}
	return cfg, nil
}
