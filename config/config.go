// Package config loads the starpay binary's settings from the environment.
// A .env file, when present, is read first; real environment variables win.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Telegram transport modes.
const (
	ModePolling  = "polling"
	ModeWebhook  = "webhook"
	ModeDisabled = "disabled"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreBolt     = "bolt"
)

// Config holds every setting. Each field names its variable in the
// envconfig tag and its fallback in the default tag.
type Config struct {
	TelegramToken string `envconfig:"STARPAY_TELEGRAM_TOKEN" validate:"required_unless=TelegramMode disabled"`
	TelegramMode  string `envconfig:"STARPAY_TELEGRAM_MODE" default:"polling" validate:"oneof=polling webhook disabled"`
	WebhookURL    string `envconfig:"STARPAY_WEBHOOK_URL" validate:"required_if=TelegramMode webhook,omitempty,url"`
	WebhookSecret string `envconfig:"STARPAY_WEBHOOK_SECRET"`

	Store         string `envconfig:"STARPAY_STORE" default:"sqlite" validate:"oneof=memory sqlite postgres mongo bolt"`
	StoreDSN      string `envconfig:"STARPAY_STORE_DSN" default:"file:starpay.db?_pragma=busy_timeout(5000)" validate:"required_unless=Store memory"`
	MongoDatabase string `envconfig:"STARPAY_MONGO_DATABASE"`

	PlansFile           string        `envconfig:"STARPAY_PLANS_FILE"`
	ReferenceKey        string        `envconfig:"STARPAY_REFERENCE_KEY" validate:"omitempty,min=16"`
	PreCheckoutDeadline time.Duration `envconfig:"STARPAY_PRECHECKOUT_DEADLINE" default:"2s" validate:"gt=0,lte=10s"`

	RedisAddr     string `envconfig:"STARPAY_REDIS_ADDR" validate:"omitempty,hostname_port"`
	RedisPassword string `envconfig:"STARPAY_REDIS_PASSWORD"`

	SlackWebhookURL string `envconfig:"STARPAY_SLACK_WEBHOOK_URL" validate:"omitempty,url"`
	SlackChannel    string `envconfig:"STARPAY_SLACK_CHANNEL"`

	HTTPAddr   string `envconfig:"STARPAY_HTTP_ADDR" default:":8080" validate:"required"`
	AdminToken string `envconfig:"STARPAY_ADMIN_TOKEN"`

	LogLevel  string `envconfig:"STARPAY_LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn warning error disabled"`
	LogFormat string `envconfig:"STARPAY_LOG_FORMAT" default:"auto" validate:"oneof=json console auto"`
}

// Load reads envFiles (".env" when none are given), then the environment,
// and validates the result. Missing env files are not an error.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: read %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv decodes the process environment into a Config and validates it.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Durable reports whether the configured store survives restarts.
func (c *Config) Durable() bool { return c.Store != StoreMemory }

func validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("envconfig")
	})

	err := v.Struct(cfg)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s fails %q", fe.Field(), fe.Tag())
	}
	return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
}
