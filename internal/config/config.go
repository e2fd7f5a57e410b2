package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	// Output
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"`
	Color        bool   `mapstructure:"color" yaml:"color"`

	// Loading and engine
	InferTypes    bool `mapstructure:"infer_types" yaml:"infer_types"`
	MaxRows       int  `mapstructure:"max_rows" yaml:"max_rows"`
	DedupeMissing bool `mapstructure:"dedupe_missing" yaml:"dedupe_missing"`
	Jobs          int  `mapstructure:"jobs" yaml:"jobs"`

	// Storage
	CacheEnabled  bool   `mapstructure:"cache_enabled" yaml:"cache_enabled"`
	CacheDir      string `mapstructure:"cache_dir" yaml:"cache_dir"`
	WorkspacesDir string `mapstructure:"workspaces_dir" yaml:"workspaces_dir"`

	// Assistant
	Provider        string  `mapstructure:"provider" yaml:"provider"`
	Model           string  `mapstructure:"model" yaml:"model"`
	APIKey          string  `mapstructure:"api_key" yaml:"api_key"`
	AnthropicAPIKey string  `mapstructure:"anthropic_api_key" yaml:"anthropic_api_key"`
	OllamaHost      string  `mapstructure:"ollama_host" yaml:"ollama_host"`
	MaxTokens       int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature" yaml:"temperature"`
	ContextTokens   int     `mapstructure:"context_tokens" yaml:"context_tokens"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`
}

// Keys lists every configuration key in display order.
var Keys = []string{
	"output_format", "color", "infer_types", "max_rows", "dedupe_missing", "jobs",
	"cache_enabled", "cache_dir", "workspaces_dir",
	"provider", "model", "api_key", "anthropic_api_key", "ollama_host",
	"max_tokens", "temperature", "context_tokens",
	"http_timeout_sec", "retry_max_attempts", "retry_base_delay_ms", "retry_max_delay_ms",
}

// Dir returns ~/.datalens.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".datalens"), nil
}

// Save writes the given configuration to cfgFile, or to ~/.datalens/config.yaml when
// cfgFile is empty.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output_format", "text")
	v.SetDefault("color", true)
	v.SetDefault("infer_types", false)
	v.SetDefault("max_rows", 100000)
	v.SetDefault("dedupe_missing", false)
	v.SetDefault("jobs", 4)
	v.SetDefault("cache_enabled", true)
	v.SetDefault("cache_dir", "")
	v.SetDefault("workspaces_dir", "")
	v.SetDefault("provider", "openrouter")
	v.SetDefault("model", "openai/gpt-4o-mini")
	v.SetDefault("api_key", "")
	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("max_tokens", 1024)
	v.SetDefault("temperature", 0.2)
	v.SetDefault("context_tokens", 6000)
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults; command flags are applied by the caller.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("DATALENS")
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.WorkspacesDir == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		c.WorkspacesDir = filepath.Join(dir, "workspaces")
	}
	// Fall back to the conventional provider variables when no key is configured.
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if c.AnthropicAPIKey == "" {
		c.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return &c, nil
}

// Set assigns one key by name, converting the string value to the field's type.
func Set(c *Global, key, value string) error {
	v := viper.New()
	setDefaults(v)
	if !v.IsSet(key) {
		return fmt.Errorf("unknown config key %q", key)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	m := map[string]any{}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return err
	}
	var parsed any
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil || parsed == nil {
		parsed = value
	}
	if _, isString := m[key].(string); isString {
		parsed = value
	}
	m[key] = parsed
	out, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	var next Global
	if err := yaml.Unmarshal(out, &next); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*c = next
	return nil
}
