package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all service configuration loaded from environment variables.
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"production"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Addr        string `envconfig:"ADDR" default:":8080"`

	// Telegram
	BotToken      string  `envconfig:"TG_BOT_TOKEN" required:"true"`
	WebhookURL    string  `envconfig:"TG_WEBHOOK_URL"` // empty selects long polling
	WebhookSecret string  `envconfig:"TG_WEBHOOK_SECRET"`
	MaxRPS        float64 `envconfig:"TG_MAX_RPS" default:"25"`
	AdminIDs      []int64 `envconfig:"ADMIN_IDS"`

	// Ledger
	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBDSN    string `envconfig:"DB_DSN" default:"subgate.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"`

	// Scheduling and policy
	Timezone         string        `envconfig:"TIMEZONE" default:"UTC"`
	SweepEnabled     bool          `envconfig:"SWEEP_ENABLED" default:"true"`
	SweepInterval    time.Duration `envconfig:"SWEEP_INTERVAL" default:"24h"`
	RemindWindowDays int           `envconfig:"REMIND_WINDOW_DAYS" default:"3"`
	DefaultGrantDays int           `envconfig:"DEFAULT_GRANT_DAYS" default:"30"`
	CodeTTL          time.Duration `envconfig:"CODE_TTL" default:"10m"`

	ConversationIdleTimeout time.Duration `envconfig:"CONVERSATION_IDLE_TIMEOUT" default:"30m"`
}

// Load layers dotenv files under the process environment and parses the result.
// Variables already present in the environment are never overridden.
func Load() (*Config, error) {
	if err := loadDotEnvs(); err != nil {
		return nil, fmt.Errorf("loading dotenv: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnvs() error {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "production"
	}
	files := []string{".env." + env + ".local", ".env.local", ".env." + env, ".env"}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		// godotenv.Load keeps variables that are already set, so earlier files win.
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q", c.DBDriver)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: TIMEZONE: %w", err)
	}
	if c.RemindWindowDays < 1 {
		return fmt.Errorf("config: REMIND_WINDOW_DAYS must be positive")
	}
	if c.DefaultGrantDays < 1 {
		return fmt.Errorf("config: DEFAULT_GRANT_DAYS must be positive")
	}
	if c.WebhookURL != "" && c.WebhookSecret == "" {
		return fmt.Errorf("config: TG_WEBHOOK_SECRET is required with TG_WEBHOOK_URL")
	}
	return nil
}

// Location returns the configured time zone. Load has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsAdmin reports whether id is a configured operator.
func (c *Config) IsAdmin(id int64) bool {
	for _, a := range c.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}
