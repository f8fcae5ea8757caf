package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. It is loaded once at
// startup and passed explicitly into each component; nothing reads the
// environment after this point.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Litsearch LitsearchConfig `yaml:"litsearch" mapstructure:"litsearch"`
	Inference InferenceConfig `yaml:"inference" mapstructure:"inference"`
	Ollama    OllamaConfig    `yaml:"ollama" mapstructure:"ollama"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Rules     RulesConfig     `yaml:"rules" mapstructure:"rules"`
	Report    ReportConfig    `yaml:"report" mapstructure:"report"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LitsearchConfig holds literature search API settings, including the
// request rate ceiling shared across all gene queries.
type LitsearchConfig struct {
	Key               string `yaml:"key" mapstructure:"key"`
	BaseURL           string `yaml:"base_url" mapstructure:"base_url"`
	PageSize          int    `yaml:"page_size" mapstructure:"page_size"`
	RequestsPerMinute int    `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	MaxAttempts       int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	MaxConcurrent     int    `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// InferenceConfig configures the clinical relevance scoring engine.
type InferenceConfig struct {
	Backend       string  `yaml:"backend" mapstructure:"backend"`
	Temperature   float64 `yaml:"temperature" mapstructure:"temperature"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxConcurrent int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// OllamaConfig holds local inference server settings.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings for the remote backend.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// RulesConfig configures the exclusion rule set. Path points at a versioned
// YAML rule file; Exclusions is a comma-separated inline fallback for
// deployments without a rule file.
type RulesConfig struct {
	Path       string `yaml:"path" mapstructure:"path"`
	Exclusions string `yaml:"exclusions" mapstructure:"exclusions"`
}

// ReportConfig configures where rendered delta reports are written.
type ReportConfig struct {
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// ServerConfig configures the status API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("GUARDIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Keys that default to empty still need an entry so
	// AutomaticEnv picks them up during Unmarshal.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("litsearch.key", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("rules.path", "")
	v.SetDefault("rules.exclusions", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("litsearch.base_url", "https://api.litsearch.io/v1")
	v.SetDefault("litsearch.page_size", 50)
	v.SetDefault("litsearch.requests_per_minute", 30)
	v.SetDefault("litsearch.max_attempts", 3)
	v.SetDefault("litsearch.max_concurrent", 4)
	v.SetDefault("inference.backend", "ollama")
	v.SetDefault("inference.temperature", 0.1)
	v.SetDefault("inference.timeout_secs", 60)
	v.SetDefault("inference.max_concurrent", 4)
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "llama3.2")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("report.output_dir", "reports")

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
