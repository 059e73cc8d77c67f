// Package config loads the settings of the instructor CLI and examples from a
// config file, the environment and an optional .env file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "INSTRUCTOR"

// Providers supported by the CLI.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds everything needed to build an extraction client.
type Config struct {
	Provider string `json:"provider" mapstructure:"provider" validate:"required,oneof=openai anthropic"`
	Model    string `json:"model" mapstructure:"model" validate:"required"`
	Mode     string `json:"mode" mapstructure:"mode" validate:"required,oneof=function auto required none"`

	MaxRetries int           `json:"max_retries" mapstructure:"max_retries" validate:"min=0,max=20"`
	MaxTokens  int           `json:"max_tokens" mapstructure:"max_tokens" validate:"min=0"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout" validate:"min=0"`
	BaseURL    string        `json:"base_url,omitempty" mapstructure:"base_url" validate:"omitempty,url"`

	OpenAIAPIKey    string `json:"openai_api_key,omitempty" mapstructure:"openai_api_key"`
	AnthropicAPIKey string `json:"anthropic_api_key,omitempty" mapstructure:"anthropic_api_key"`

	LogLevel  string `json:"log_level" mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `json:"log_format" mapstructure:"log_format" validate:"oneof=json console"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Provider:   ProviderOpenAI,
		Model:      "gpt-4o",
		Mode:       "function",
		MaxRetries: 1,
		Timeout:    60 * time.Second,
		LogLevel:   "info",
		LogFormat:  "console",
	}
}

// NewViper returns a viper instance preloaded with defaults and environment
// bindings. INSTRUCTOR_<KEY> overrides any key; the API keys also fall back to
// the provider's usual OPENAI_API_KEY and ANTHROPIC_API_KEY.
func NewViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("provider", d.Provider)
	v.SetDefault("model", d.Model)
	v.SetDefault("mode", d.Mode)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("max_tokens", d.MaxTokens)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("openai_api_key", EnvPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("anthropic_api_key", EnvPrefix+"_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	return v
}

// LoadDotEnv loads environment files into the process environment without
// overriding variables that are already set. With no arguments it reads
// ".env"; a missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the config file at path (JSON, YAML or TOML; optional) into v,
// applies the environment and validates the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = NewViper()
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks field constraints. API keys are checked by APIKey, since
// commands such as "schema" never talk to a provider.
func (c *Config) Validate() error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	return validator.New().Struct(c)
}

// APIKey returns the key of the configured provider.
func (c *Config) APIKey() (string, error) {
	var key, env string
	switch c.Provider {
	case ProviderOpenAI:
		key, env = c.OpenAIAPIKey, "OPENAI_API_KEY"
	case ProviderAnthropic:
		key, env = c.AnthropicAPIKey, "ANTHROPIC_API_KEY"
	default:
		return "", fmt.Errorf("unknown provider %q", c.Provider)
	}
	if key == "" {
		return "", fmt.Errorf("%s is required for provider %s", env, c.Provider)
	}
	return key, nil
}

// SaveToFile writes the configuration as indented JSON. API keys are left out.
func (c *Config) SaveToFile(path string) error {
	out := *c
	out.OpenAIAPIKey, out.AnthropicAPIKey = "", ""
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// String renders the configuration with API keys masked.
func (c *Config) String() string {
	out := *c
	out.OpenAIAPIKey = mask(out.OpenAIAPIKey)
	out.AnthropicAPIKey = mask(out.AnthropicAPIKey)
	data, _ := json.MarshalIndent(out, "", "  ")
	return string(data)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return strings.Repeat("*", len(s))
}
