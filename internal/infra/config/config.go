// Package config loads the gateway's configuration: a layered viper stack
// (defaults -> global ~/.evermemoryarchive/ -> project-local -> environment)
// unmarshalled into a nested, mapstructure-tagged Config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Actor    ActorConfig    `mapstructure:"actor"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	LLM      LLMConfig      `mapstructure:"llm"`
}

// GatewayConfig configures the HTTP/SSE front door.
type GatewayConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // local, production
}

// TelegramConfig configures the Telegram collaborator front end.
type TelegramConfig struct {
	BotToken string  `mapstructure:"bot_token"`
	AllowIDs []int64 `mapstructure:"allow_ids"`
}

// DatabaseConfig configures the gorm-backed stores.
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // sqlite, postgres
	DSN  string `mapstructure:"dsn"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ActorConfig configures the core ActorWorker/Agent loop (spec §4.3/§4.4).
type ActorConfig struct {
	MaxSteps             int           `mapstructure:"max_steps"`
	TokenLimit           int           `mapstructure:"token_limit"`
	SystemPromptTemplate string        `mapstructure:"system_prompt_template"`
	BufferWindow         int           `mapstructure:"buffer_window"`
	ToolTimeout          time.Duration `mapstructure:"tool_timeout"`
}

// MemoryConfig configures long-term (vector) memory.
type MemoryConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	StoreType  string `mapstructure:"store_type"` // lancedb | memory
	StorePath  string `mapstructure:"store_path"` // LanceDB persistence directory
	OllamaURL  string `mapstructure:"ollama_url"`
	EmbedModel string `mapstructure:"embed_model"`
}

// LLMProviderConfig configures one LLM provider adapter.
type LLMProviderConfig struct {
	Name     string `mapstructure:"name"`
	Type     string `mapstructure:"type"` // openai, anthropic, gemini
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Priority int    `mapstructure:"priority"`
}

// LLMConfig configures the provider registry and circuit breaker.
type LLMConfig struct {
	DefaultProvider    string              `mapstructure:"default_provider"`
	Providers          []LLMProviderConfig `mapstructure:"providers"`
	MaxRetries         int                 `mapstructure:"max_retries"`
	RetryBaseWait      time.Duration       `mapstructure:"retry_base_wait"`
	CircuitFailures    int                 `mapstructure:"circuit_failures"`
	CircuitRecoverWait time.Duration       `mapstructure:"circuit_recover_wait"`
}

// Load builds a Config from the layered viper sources described above.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	globalDir := filepath.Join(os.Getenv("HOME"), ".evermemoryarchive")
	v.AddConfigPath(globalDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read global config: %w", err)
		}
	}

	for _, localDir := range []string{"./config", "."} {
		localPath := filepath.Join(localDir, "config.yaml")
		if _, err := os.Stat(localPath); err == nil {
			v2 := viper.New()
			v2.SetConfigFile(localPath)
			if err := v2.ReadInConfig(); err == nil {
				_ = v.MergeConfigMap(v2.AllSettings())
			}
			break
		}
	}

	v.SetEnvPrefix("EMA")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 18789)
	v.SetDefault("gateway.mode", "local")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "ema.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("actor.max_steps", 25)
	v.SetDefault("actor.token_limit", 100000)
	v.SetDefault("actor.buffer_window", 10)
	v.SetDefault("actor.tool_timeout", "30s")
	v.SetDefault("actor.system_prompt_template",
		"You are EMA, a helpful conversational actor.\n\nRecent history:\n{MEMORY_BUFFER}\n")

	v.SetDefault("memory.enabled", true)
	v.SetDefault("memory.store_type", "memory")

	v.SetDefault("llm.default_provider", "openai")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_base_wait", "2s")
	v.SetDefault("llm.circuit_failures", 5)
	v.SetDefault("llm.circuit_recover_wait", "30s")
}
