package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/valuation-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  VendorConfig     `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     VendorConfig     `yaml:"openai" mapstructure:"openai"`
	Gemini     VendorConfig     `yaml:"gemini" mapstructure:"gemini"`
	Perplexity VendorConfig     `yaml:"perplexity" mapstructure:"perplexity"`
	Engine     EngineConfig     `yaml:"engine" mapstructure:"engine"`
	Benchmark  BenchmarkConfig  `yaml:"benchmark" mapstructure:"benchmark"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// VendorConfig holds one AI vendor's API settings.
type VendorConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// EngineConfig configures the analysis pipeline.
type EngineConfig struct {
	ProvidersFile   string `yaml:"providers_file" mapstructure:"providers_file"`
	CallTimeoutSecs int    `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	LedgerQueueSize int    `yaml:"ledger_queue_size" mapstructure:"ledger_queue_size"`
}

// BenchmarkConfig configures weekly calibration.
type BenchmarkConfig struct {
	LookbackWeeks int `yaml:"lookback_weeks" mapstructure:"lookback_weeks"`
	MinSamples    int `yaml:"min_samples" mapstructure:"min_samples"`
}

// ServerConfig configures the HTTP API server.
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
	v.SetEnvPrefix("VALUATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "valuation.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("engine.providers_file", "providers.yaml")
	v.SetDefault("engine.call_timeout_secs", 45)
	v.SetDefault("engine.ledger_queue_size", 256)
	v.SetDefault("benchmark.lookback_weeks", 4)
	v.SetDefault("benchmark.min_samples", 5)

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

// providersFile is the on-disk shape of the provider roster.
type providersFile struct {
	Providers []model.ProviderConfig `yaml:"providers"`
}

// LoadProviders reads the provider roster from a YAML file and validates it.
func LoadProviders(path string) ([]model.ProviderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read providers file %s", path)
	}

	var file providersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "config: parse providers file %s", path)
	}
	if len(file.Providers) == 0 {
		return nil, eris.Errorf("config: providers file %s lists no providers", path)
	}

	seen := make(map[string]bool)
	for _, p := range file.Providers {
		if p.ID == "" {
			return nil, eris.New("config: provider with empty id")
		}
		if seen[p.ID] {
			return nil, eris.Errorf("config: duplicate provider id %s", p.ID)
		}
		seen[p.ID] = true

		if p.BaseWeight <= 0 {
			return nil, eris.Errorf("config: provider %s: base_weight must be positive", p.ID)
		}
		switch p.Capability {
		case model.CapabilityVision, model.CapabilityText, model.CapabilitySearch:
		default:
			return nil, eris.Errorf("config: provider %s: unknown capability %q", p.ID, p.Capability)
		}
	}

	return file.Providers, nil
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
