package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every key when read from the environment.
const EnvPrefix = "RETAILMIND"

// Global configuration structure.
type Global struct {
	APIKey            string  `mapstructure:"api_key" yaml:"api_key"`
	DefaultModel      string  `mapstructure:"default_model" yaml:"default_model"`
	DefaultProvider   string  `mapstructure:"default_provider" yaml:"default_provider"`
	EmbeddingProvider string  `mapstructure:"embedding_provider" yaml:"embedding_provider"`
	EmbeddingModel    string  `mapstructure:"embedding_model" yaml:"embedding_model"`
	MaxTokens         int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature       float64 `mapstructure:"temperature" yaml:"temperature"`

	// Retrieval and indexing
	RetrievalTopK    int     `mapstructure:"retrieval_top_k" yaml:"retrieval_top_k"`
	ChunkTokens      int     `mapstructure:"chunk_tokens" yaml:"chunk_tokens"`
	EmbedIntervalMs  int     `mapstructure:"embed_interval_ms" yaml:"embed_interval_ms"`
	EmbedConcurrency int     `mapstructure:"embed_concurrency" yaml:"embed_concurrency"`
	StoreMaxDatasets int     `mapstructure:"store_max_datasets" yaml:"store_max_datasets"`
	StoreTTLMin      int     `mapstructure:"store_ttl_min" yaml:"store_ttl_min"`
	MinConfidence    float64 `mapstructure:"min_confidence" yaml:"min_confidence"`
	PreviewRows      int     `mapstructure:"preview_rows" yaml:"preview_rows"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost       string `mapstructure:"ollama_host" yaml:"ollama_host"`
	OllamaTimeoutSec int    `mapstructure:"ollama_timeout_sec" yaml:"ollama_timeout_sec"`

	// HTTP server
	ServerHost string `mapstructure:"server_host" yaml:"server_host"`
	ServerPort int    `mapstructure:"server_port" yaml:"server_port"`
	CORSOrigin string `mapstructure:"cors_origin" yaml:"cors_origin"`
}

var defaults = map[string]any{
	"api_key":             "",
	"default_model":       "openai/gpt-4o-mini",
	"default_provider":    "openrouter",
	"embedding_provider":  "openrouter",
	"embedding_model":     "openai/text-embedding-3-small",
	"max_tokens":          1024,
	"temperature":         0.2,
	"retrieval_top_k":     5,
	"chunk_tokens":        500,
	"embed_interval_ms":   50,
	"embed_concurrency":   1,
	"store_max_datasets":  64,
	"store_ttl_min":       0,
	"min_confidence":      0.3,
	"preview_rows":        10,
	"http_timeout_sec":    60,
	"retry_max_attempts":  3,
	"retry_base_delay_ms": 500,
	"retry_max_delay_ms":  4000,
	"ollama_host":         "http://127.0.0.1:11434",
	"ollama_timeout_sec":  60,
	"server_host":         "127.0.0.1",
	"server_port":         8000,
	"cors_origin":         "http://localhost:3000",
}

// Keys lists every configuration key in a stable order.
func Keys() []string {
	return []string{
		"api_key", "default_model", "default_provider", "embedding_provider", "embedding_model",
		"max_tokens", "temperature", "retrieval_top_k", "chunk_tokens", "embed_interval_ms",
		"embed_concurrency", "store_max_datasets", "store_ttl_min", "min_confidence", "preview_rows",
		"http_timeout_sec", "retry_max_attempts", "retry_base_delay_ms", "retry_max_delay_ms",
		"ollama_host", "ollama_timeout_sec", "server_host", "server_port", "cors_origin",
	}
}

// IsKey reports whether key is a known configuration key.
func IsKey(key string) bool {
	_, ok := defaults[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// DefaultPath returns ~/.retailmind/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".retailmind", "config.yaml"), nil
}

// LoadDotEnv loads a .env file into the process environment without
// overriding variables already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.retailmind/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
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

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		path, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(filepath.Dir(path))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// optional read
		if err := v.ReadInConfig(); err != nil {
			if _, missing := err.(viper.ConfigFileNotFoundError); !missing {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// Set assigns a string value to key using yaml scalar rules, so "8080" becomes
// an int and "0.5" a float where the field expects one.
func (c *Global) Set(key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	if !IsKey(key) {
		return fmt.Errorf("unknown config key %q", key)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("unmarshal yaml: %w", err)
	}
	var scalar any
	if err := yaml.Unmarshal([]byte(value), &scalar); err != nil || scalar == nil {
		scalar = value
	}
	doc[key] = scalar
	b, err = yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	var next Global
	if err := yaml.Unmarshal(b, &next); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*c = next
	return nil
}

// Masked returns a copy safe to print.
func (c Global) Masked() Global {
	if c.APIKey != "" {
		c.APIKey = maskKey(c.APIKey)
	}
	return c
}

func maskKey(k string) string {
	if len(k) <= 8 {
		return "****"
	}
	return k[:4] + "..." + k[len(k)-4:]
}
