package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved daemon configuration, read from flags, the
// config file, and the environment via viper.
type Config struct {
	Server   ServerConfig
	DB       DBConfig
	LLM      LLMConfig
	Provider ProviderConfig
	Generate GenerateConfig
	Batch    BatchConfig
	Logging  LoggingConfig
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	ListenAddr string
	Debug      bool
}

// DBConfig holds the storage settings.
type DBConfig struct {
	Path string
}

// LLMConfig holds the completion endpoint settings.
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// ProviderConfig holds the mailbox gateway settings.
type ProviderConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxResults int
}

// GenerateConfig holds the per-draft workflow settings.
type GenerateConfig struct {
	MaxAttempts   int
	ExcerptBudget int

	// IntentMaxMessages bounds the classification window.
	IntentMaxMessages int

	// IntentStaleness is the fallback heuristic's follow-up threshold.
	IntentStaleness time.Duration
}

// BatchConfig holds the multi-address settings.
type BatchConfig struct {
	Workers int
	Timeout time.Duration
}

// LoggingConfig holds the log file settings. An empty Dir disables
// file logging entirely.
type LoggingConfig struct {
	Dir            string
	MaxLogFiles    int
	MaxLogFileSize int
}

// Load reads the resolved configuration out of viper.
func Load() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr: viper.GetString("server.addr"),
			Debug:      viper.GetBool("server.debug"),
		},
		DB: DBConfig{
			Path: viper.GetString("db.path"),
		},
		LLM: LLMConfig{
			BaseURL:     viper.GetString("llm.base_url"),
			APIKey:      viper.GetString("llm.api_key"),
			Model:       viper.GetString("llm.model"),
			Temperature: viper.GetFloat64("llm.temperature"),
			Timeout:     viper.GetDuration("llm.timeout"),
		},
		Provider: ProviderConfig{
			BaseURL:    viper.GetString("provider.api_url"),
			Timeout:    viper.GetDuration("provider.timeout"),
			MaxResults: viper.GetInt("provider.max_results"),
		},
		Generate: GenerateConfig{
			MaxAttempts: viper.GetInt("generate.max_attempts"),
			ExcerptBudget: viper.GetInt(
				"generate.excerpt_budget",
			),
			IntentMaxMessages: viper.GetInt(
				"generate.intent_max_messages",
			),
			IntentStaleness: viper.GetDuration(
				"generate.intent_staleness",
			),
		},
		Batch: BatchConfig{
			Workers: viper.GetInt("batch.workers"),
			Timeout: viper.GetDuration("batch.timeout"),
		},
		Logging: LoggingConfig{
			Dir:         viper.GetString("logging.dir"),
			MaxLogFiles: viper.GetInt("logging.max_log_files"),
			MaxLogFileSize: viper.GetInt(
				"logging.max_log_file_size",
			),
		},
	}
}
