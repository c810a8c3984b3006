package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// DefaultOutput is the workbook written when no output is configured.
const DefaultOutput = "emotion_results_time_2sec.xlsx"

// localDSN is used by commands that need the archive when nothing is configured.
const localDSN = "postgres://localhost:5432/moodlog"

// Config is read from MOODLOG_* variables. Command-line flags take precedence.
type Config struct {
	Source        string        `envconfig:"SOURCE" default:"0"`
	Output        string        `envconfig:"OUTPUT" default:"emotion_results_time_2sec.xlsx"`
	Cascade       string        `envconfig:"CASCADE"`
	Backend       string        `envconfig:"BACKEND" default:"python"`
	Model         string        `envconfig:"MODEL"`
	Python        string        `envconfig:"PYTHON" default:"python3"`
	WorkerScript  string        `envconfig:"WORKER_SCRIPT" default:"python/emotion_worker.py"`
	WorkerTimeout time.Duration `envconfig:"WORKER_TIMEOUT" default:"30s"` // per response, after the first
	DatabaseURL   string        `envconfig:"DB_URL"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"info"`

	Postgres Postgres `ignored:"true"`
}

// Postgres holds the POSTGRES_* variables shared with the database container.
type Postgres struct {
	Host     string `envconfig:"HOST"`
	Port     string `envconfig:"PORT" default:"5432"`
	User     string `envconfig:"USER"`
	Password string `envconfig:"PASSWORD"`
	DB       string `envconfig:"DB" default:"moodlog"`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("moodlog", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := envconfig.Process("postgres", &cfg.Postgres); err != nil {
		return nil, fmt.Errorf("load postgres config: %w", err)
	}
	return &cfg, nil
}

// DSN resolves the archive connection string: explicit URL, then POSTGRES_* variables.
// When nothing is configured it returns "" unless required, in which case the local default is used.
func (c *Config) DSN(required bool) string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	if p := c.Postgres; p.Host != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", p.User, p.Password, p.Host, p.Port, p.DB)
	}
	if required {
		return localDSN
	}
	return ""
}

// NewLogger builds the diagnostic logger. Human-facing progress goes to stderr separately.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
