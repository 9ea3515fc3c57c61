package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken  string         `yaml:"discord_token"`
	LogLevel      string         `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFile       string         `yaml:"log_file"`
	LogMaxSizeMB  int            `yaml:"log_max_size_mb" validate:"gte=0"`
	LogMaxBackups int            `yaml:"log_max_backups" validate:"gte=0"`
	LogMaxAgeDays int            `yaml:"log_max_age_days" validate:"gte=0"`
	SecretsDir    string         `yaml:"secrets_dir" validate:"required"`
	Settings      SettingsConfig `yaml:"settings"`
	Commands      CommandConfig  `yaml:"commands"`
	Health        HealthConfig   `yaml:"health"`
	Notifications NotifyConfig   `yaml:"notifications"`
}

type SettingsConfig struct {
	Backend     string           `yaml:"backend" validate:"oneof=file postgres"`
	Path        string           `yaml:"path" validate:"required_if=Backend file"`
	DatabaseURL string           `yaml:"database_url" validate:"required_if=Backend postgres"`
	Document    string           `yaml:"document" validate:"required"`
	StrictKeys  bool             `yaml:"strict_keys"`
	Defaults    SettingsDefaults `yaml:"defaults"`
}

// SettingsDefaults is the record every guild starts with.
type SettingsDefaults struct {
	WelcomeChannel string `yaml:"welcome_channel"`
	RulesChannel   string `yaml:"rules_channel"`
	WelcomeEnabled bool   `yaml:"welcome_enabled"`
	GoodbyeEnabled bool   `yaml:"goodbye_enabled"`
	WelcomeMessage string `yaml:"welcome_message"`
	GoodbyeMessage string `yaml:"goodbye_message"`
	EmbedColor     int    `yaml:"embed_color" validate:"gte=0,lte=16777215"`
}

type CommandConfig struct {
	RateLimit         int `yaml:"rate_limit" validate:"gte=0"`
	RateWindowSeconds int `yaml:"rate_window_seconds" validate:"gte=0"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" validate:"required_if=Enabled true"`
}

type NotifyConfig struct {
	EmbedColors EmbedColors `yaml:"embed_colors"`
}

type EmbedColors struct {
	Action int `yaml:"action" validate:"gte=0,lte=16777215"`
	Error  int `yaml:"error" validate:"gte=0,lte=16777215"`
}

var validate = validator.New()

func DefaultConfig() Config {
	return Config{
		LogLevel:      "info",
		LogMaxSizeMB:  50,
		LogMaxBackups: 7,
		LogMaxAgeDays: 14,
		SecretsDir:    ".steward",
		Settings: SettingsConfig{
			Backend:  "file",
			Path:     "settings.json",
			Document: "default",
			Defaults: SettingsDefaults{
				WelcomeChannel: "welcome",
				RulesChannel:   "rules",
				WelcomeEnabled: true,
				GoodbyeEnabled: true,
				WelcomeMessage: "Welcome to {server}, {mention}! 🎉\n\nWe're glad to have you here. You're member #{member_count}!",
				GoodbyeMessage: "{username} has left the server. We'll miss you! 👋",
				EmbedColor:     0x00FF00,
			},
		},
		Commands: CommandConfig{RateLimit: 5, RateWindowSeconds: 10},
		Health:   HealthConfig{Enabled: false, Addr: ":8080"},
		Notifications: NotifyConfig{
			EmbedColors: EmbedColors{
				Action: 0x22C55E,
				Error:  0xEF4444,
			},
		},
	}
}

// Load builds the configuration from defaults, an optional .env file, the
// YAML file at CONFIG_PATH and environment overrides, in that order.
// The Discord token may legitimately be empty here; it is resolved later
// from the secret store.
func Load() (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Settings.Backend = normalizeBackend(cfg.Settings.Backend)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = envString("LOG_FILE", cfg.LogFile)
	cfg.SecretsDir = envString("SECRETS_DIR", cfg.SecretsDir)
	cfg.Settings.Backend = envString("SETTINGS_BACKEND", cfg.Settings.Backend)
	cfg.Settings.Path = envString("SETTINGS_PATH", cfg.Settings.Path)
	cfg.Settings.DatabaseURL = envString("DATABASE_URL", cfg.Settings.DatabaseURL)
	cfg.Settings.Document = envString("SETTINGS_DOCUMENT", cfg.Settings.Document)
	cfg.Settings.StrictKeys = envBool("SETTINGS_STRICT_KEYS", cfg.Settings.StrictKeys)
	cfg.Commands.RateLimit = envInt("COMMAND_RATE_LIMIT", cfg.Commands.RateLimit)
	cfg.Commands.RateWindowSeconds = envInt("COMMAND_RATE_WINDOW_SECONDS", cfg.Commands.RateWindowSeconds)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Notifications.EmbedColors.Action = envInt("EMBED_COLOR_ACTION", cfg.Notifications.EmbedColors.Action)
	cfg.Notifications.EmbedColors.Error = envInt("EMBED_COLOR_ERROR", cfg.Notifications.EmbedColors.Error)
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}

func normalizeBackend(value string) string {
	switch strings.ToLower(value) {
	case "postgres", "postgresql", "pg":
		return "postgres"
	default:
		return "file"
	}
}
