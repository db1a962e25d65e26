package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Answer    AnswerConfig    `yaml:"answer" mapstructure:"answer"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// NotionConfig holds Notion API credentials and the knowledge database ID.
type NotionConfig struct {
	Token       string `yaml:"token" mapstructure:"token"`
	KnowledgeDB string `yaml:"knowledge_db" mapstructure:"knowledge_db"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// AnswerConfig configures answer generation.
type AnswerConfig struct {
	MaxTokens       int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Temperature     float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxSkills       int     `yaml:"max_skills" mapstructure:"max_skills"`
	HistoryMaxTurns int     `yaml:"history_max_turns" mapstructure:"history_max_turns"`
	SystemPrompt    string  `yaml:"system_prompt" mapstructure:"system_prompt"`
	FallbackText    string  `yaml:"fallback_text" mapstructure:"fallback_text"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int    `yaml:"port" mapstructure:"port"`
	SyncToken string `yaml:"sync_token" mapstructure:"sync_token"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("QNA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Secret keys default to empty so AutomaticEnv can
	// populate them during Unmarshal.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "qna.db")
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.knowledge_db", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("server.sync_token", "")
	v.SetDefault("answer.max_tokens", 2048)
	v.SetDefault("answer.timeout_secs", 120)
	// 0 keeps the provider's default sampling temperature.
	v.SetDefault("answer.temperature", 0.0)
	v.SetDefault("answer.max_skills", 5)
	v.SetDefault("answer.history_max_turns", 20)
	v.SetDefault("answer.system_prompt", "You answer vendor questionnaires on behalf of the company. Be accurate and concise; when the provided knowledge does not cover a question, say so rather than guessing.")
	v.SetDefault("answer.fallback_text", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
