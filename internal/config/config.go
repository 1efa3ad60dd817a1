// Package config loads application settings from defaults, an optional YAML
// file, an optional .env file and the environment, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names the environment variable pointing at a YAML file.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

// Config holds the configuration for the application.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	CORS      CORSConfig      `koanf:"cors"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Paths     PathsConfig     `koanf:"paths"`
	Training  TrainingConfig  `koanf:"training"`
	Inference InferenceConfig `koanf:"inference"`
	Logging   LoggingConfig   `koanf:"logging"`
	Admin     AdminConfig     `koanf:"admin"`
	Telegram  TelegramConfig  `koanf:"telegram"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type RateLimitConfig struct {
	Disabled bool          `koanf:"disabled"`
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
}

type PathsConfig struct {
	ModelDir      string `koanf:"model_dir"`
	SubmissionLog string `koanf:"submission_log"`
	DatabasePath  string `koanf:"database_path"`
}

// TrainingConfig holds the fixed hyperparameters of a training run.
type TrainingConfig struct {
	SyntheticRows      int           `koanf:"synthetic_rows"`
	Seed               int64         `koanf:"seed"`
	Trees              int           `koanf:"trees"`
	MaxDepth           int           `koanf:"max_depth"`
	MinSamplesLeaf     int           `koanf:"min_samples_leaf"`
	ValidationFraction float64       `koanf:"validation_fraction"`
	MinFrequency       int           `koanf:"min_frequency"`
	UnknownPolicy      string        `koanf:"unknown_policy"`
	Timeout            time.Duration `koanf:"timeout"`
	RetainVersions     int           `koanf:"retain_versions"`
	OnStartup          bool          `koanf:"on_startup"`
	OnSelection        bool          `koanf:"on_selection"`
	IncludeSubmissions bool          `koanf:"include_submissions"`
}

type InferenceConfig struct {
	TopK            int           `koanf:"top_k"`
	Timeout         time.Duration `koanf:"timeout"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type AdminConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

// TelegramConfig is optional; the bot is disabled when BotToken is empty.
type TelegramConfig struct {
	BotToken       string  `koanf:"bot_token"`
	WebhookURL     string  `koanf:"webhook_url"`
	AllowedUserIDs []int64 `koanf:"allowed_user_ids"`
	AdminUserID    int64   `koanf:"admin_user_id"`
}

// Enabled reports whether the bot should be started.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != ""
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    3 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"https://jetzy-nutrition-plan.netlify.app"},
		},
		RateLimit: RateLimitConfig{
			Requests: 60,
			Window:   time.Minute,
		},
		Paths: PathsConfig{
			ModelDir:      "data/model",
			SubmissionLog: "data/submissions.jsonl",
			DatabasePath:  "data/nutrition.db",
		},
		Training: TrainingConfig{
			SyntheticRows:      1000,
			Seed:               42,
			Trees:              100,
			MaxDepth:           12,
			MinSamplesLeaf:     1,
			ValidationFraction: 0.2,
			MinFrequency:       1,
			UnknownPolicy:      "other",
			Timeout:            2 * time.Minute,
			RetainVersions:     3,
			OnStartup:          true,
			OnSelection:        true,
			IncludeSubmissions: true,
		},
		Inference: InferenceConfig{
			TopK:            5,
			Timeout:         2 * time.Second,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Admin: AdminConfig{
			TokenTTL: 24 * time.Hour,
		},
	}
}

// envMappings maps environment variable names to config keys.
var envMappings = map[string]string{
	"host":                         "server.host",
	"port":                         "server.port",
	"server_read_timeout":          "server.read_timeout",
	"server_write_timeout":         "server.write_timeout",
	"server_shutdown_timeout":      "server.shutdown_timeout",
	"cors_allowed_origins":         "cors.allowed_origins",
	"frontend_origin":              "cors.allowed_origins",
	"rate_limit_disabled":          "rate_limit.disabled",
	"rate_limit_requests":          "rate_limit.requests",
	"rate_limit_window":            "rate_limit.window",
	"model_dir":                    "paths.model_dir",
	"submission_log":               "paths.submission_log",
	"database_path":                "paths.database_path",
	"training_synthetic_rows":      "training.synthetic_rows",
	"training_seed":                "training.seed",
	"training_trees":               "training.trees",
	"training_max_depth":           "training.max_depth",
	"training_min_samples_leaf":    "training.min_samples_leaf",
	"training_validation_fraction": "training.validation_fraction",
	"training_min_frequency":       "training.min_frequency",
	"training_unknown_policy":      "training.unknown_policy",
	"training_timeout":             "training.timeout",
	"training_retain_versions":     "training.retain_versions",
	"train_on_startup":             "training.on_startup",
	"retrain_on_selection":         "training.on_selection",
	"training_include_submissions": "training.include_submissions",
	"inference_top_k":              "inference.top_k",
	"inference_timeout":            "inference.timeout",
	"inference_breaker_failures":   "inference.breaker_failures",
	"inference_breaker_cooldown":   "inference.breaker_cooldown",
	"log_level":                    "logging.level",
	"log_format":                   "logging.format",
	"admin_jwt_secret":             "admin.jwt_secret",
	"admin_token_ttl":              "admin.token_ttl",
	"telegram_bot_token":           "telegram.bot_token",
	"telegram_webhook_url":         "telegram.webhook_url",
	"telegram_allowed_user_ids":    "telegram.allowed_user_ids",
	"telegram_admin_user_id":       "telegram.admin_user_id",
}

var sliceConfigPaths = []string{
	"cors.allowed_origins",
	"telegram.allowed_user_ids",
}

// Load builds the Config. A missing .env or YAML file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// processSliceFields splits comma-separated env values into slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("cors.allowed_origins must name at least one origin"))
	}
	if !c.RateLimit.Disabled && (c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate_limit.requests and rate_limit.window must be positive"))
	}
	if c.Paths.ModelDir == "" || c.Paths.SubmissionLog == "" || c.Paths.DatabasePath == "" {
		errs = append(errs, errors.New("paths.model_dir, paths.submission_log and paths.database_path are required"))
	}
	if c.Training.SyntheticRows < 1 {
		errs = append(errs, errors.New("training.synthetic_rows must be positive"))
	}
	if c.Training.Trees < 1 {
		errs = append(errs, errors.New("training.trees must be positive"))
	}
	if c.Training.ValidationFraction < 0 || c.Training.ValidationFraction >= 0.5 {
		errs = append(errs, fmt.Errorf("training.validation_fraction must be in [0, 0.5), got %g", c.Training.ValidationFraction))
	}
	if c.Training.UnknownPolicy != "other" && c.Training.UnknownPolicy != "reject" {
		errs = append(errs, fmt.Errorf("training.unknown_policy must be 'other' or 'reject', got %q", c.Training.UnknownPolicy))
	}
	if c.Training.Timeout <= 0 {
		errs = append(errs, errors.New("training.timeout must be positive"))
	}
	// A selection that retrains answers only after the run publishes.
	if c.Training.OnSelection && c.Server.WriteTimeout <= c.Training.Timeout {
		errs = append(errs, fmt.Errorf("server.write_timeout (%s) must exceed training.timeout (%s) while training.on_selection is set", c.Server.WriteTimeout, c.Training.Timeout))
	}
	if c.Inference.TopK < 1 || c.Inference.TopK > 20 {
		errs = append(errs, fmt.Errorf("inference.top_k must be between 1 and 20, got %d", c.Inference.TopK))
	}
	if c.Inference.Timeout <= 0 {
		errs = append(errs, errors.New("inference.timeout must be positive"))
	}
	if c.Telegram.Enabled() && c.Telegram.WebhookURL == "" {
		errs = append(errs, errors.New("telegram.webhook_url is required when telegram.bot_token is set"))
	}

	return errors.Join(errs...)
}
