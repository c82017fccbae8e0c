// Package config loads the appraisal-lots settings from env files, the
// environment and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/raine/appraisal-lots/internal/imageset"
	"github.com/raine/appraisal-lots/internal/llm"
	"gopkg.in/yaml.v3"
)

const (
	AppName     = "appraisal-lots"
	EnvFileName = "config.env"

	DefaultDBPath      = "appraisal.db"
	DefaultConcurrency = 4
	DefaultLanguage    = "en"
	DefaultCurrency    = "USD"
)

// Config holds all runtime settings.
type Config struct {
	Provider        string        `yaml:"provider" validate:"oneof=gemini claude"`
	GeminiAPIKey    string        `yaml:"gemini_api_key" validate:"required_if=Provider gemini"`
	GeminiModel     string        `yaml:"gemini_model"`
	AnthropicAPIKey string        `yaml:"anthropic_api_key" validate:"required_if=Provider claude"`
	ClaudeModel     string        `yaml:"claude_model"`
	DBPath          string        `yaml:"db_path" validate:"required"`
	Concurrency     int           `yaml:"concurrency" validate:"gte=1,lte=64"`
	Language        string        `yaml:"language" validate:"oneof=en fr es"`
	Currency        string        `yaml:"currency" validate:"len=3,alpha"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout" validate:"gt=0"`
	MaxImageBytes   int64         `yaml:"max_image_bytes" validate:"gt=0"`
	LogLevel        string        `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
	LogFile         string        `yaml:"log_file"`
}

var validate = validator.New()

// ConfigDir returns the XDG config directory for the app.
// Uses $XDG_CONFIG_HOME/appraisal-lots or ~/.config/appraisal-lots
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", AppName)
}

// ConfigPath returns the full path to a config file.
func ConfigPath(filename string) string {
	return filepath.Join(ConfigDir(), filename)
}

// LoadEnvFiles loads a local .env and the config.env of the user's config
// directory into the environment. Variables already set are kept, and
// errors are ignored since the files may not exist.
func LoadEnvFiles() {
	_ = godotenv.Load()
	_ = godotenv.Load(ConfigPath(EnvFileName))
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Provider:      string(llm.ProviderGemini),
		DBPath:        DefaultDBPath,
		Concurrency:   DefaultConcurrency,
		Language:      DefaultLanguage,
		Currency:      DefaultCurrency,
		FetchTimeout:  imageset.DefaultFetchTimeout,
		MaxImageBytes: imageset.DefaultMaxImageSize,
		LogLevel:      "info",
	}
}

// Load builds the configuration from defaults, the environment and, when
// path is not empty, a YAML file whose values take precedence. The result is
// not validated so callers can apply flag overrides first.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setString("AI_PROVIDER", &c.Provider)
	setString("GEMINI_API_KEY", &c.GeminiAPIKey)
	setString("GEMINI_MODEL", &c.GeminiModel)
	setString("ANTHROPIC_API_KEY", &c.AnthropicAPIKey)
	setString("CLAUDE_MODEL", &c.ClaudeModel)
	setString("APPRAISAL_DB_PATH", &c.DBPath)
	setString("APPRAISAL_LANGUAGE", &c.Language)
	setString("APPRAISAL_CURRENCY", &c.Currency)
	setString("LOG_LEVEL", &c.LogLevel)
	setString("APPRAISAL_LOG_FILE", &c.LogFile)

	var errs []error
	if v := getenv("APPRAISAL_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("APPRAISAL_CONCURRENCY must be an integer: %w", err))
		}
		c.Concurrency = n
	}
	if v := getenv("IMAGE_FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("IMAGE_FETCH_TIMEOUT must be a duration: %w", err))
		}
		c.FetchTimeout = d
	}
	if v := getenv("IMAGE_MAX_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("IMAGE_MAX_BYTES must be an integer: %w", err))
		}
		c.MaxImageBytes = n
	}
	return errors.Join(errs...)
}

func (c *Config) normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "anthropic" {
		c.Provider = string(llm.ProviderClaude)
	}
	c.Language = strings.ToLower(strings.TrimSpace(c.Language))
	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
}

// Validate checks the configuration after all overrides have been applied.
func (c *Config) Validate() error {
	c.normalize()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ProviderConfig returns the settings of the selected AI provider.
func (c *Config) ProviderConfig() llm.ProviderConfig {
	switch llm.ProviderType(c.Provider) {
	case llm.ProviderClaude:
		return llm.ProviderConfig{Provider: llm.ProviderClaude, APIKey: c.AnthropicAPIKey, Model: c.ClaudeModel}
	default:
		return llm.ProviderConfig{Provider: llm.ProviderGemini, APIKey: c.GeminiAPIKey, Model: c.GeminiModel}
	}
}
