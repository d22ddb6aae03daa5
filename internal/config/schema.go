package config

import "time"

// Config holds fable configuration.
// Stored at: ./config.yaml or ~/.fable/config.yaml
type Config struct {
	Server     ServerCfg     `mapstructure:"server" yaml:"server"`
	Generation GenerationCfg `mapstructure:"generation" yaml:"generation"`
	Audio      AudioCfg      `mapstructure:"audio" yaml:"audio"`
	Redis      RedisCfg      `mapstructure:"redis" yaml:"redis"`
}

// ServerCfg configures the local HTTP surface.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// GenerationCfg configures the external generation service and the
// batch-mode loop tunables.
type GenerationCfg struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// APIKey supports ${ENV_VAR} syntax
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	ModelID string `mapstructure:"model_id" yaml:"model_id"`
	// Speed is the generation speed preset passed through to the service
	Speed    string `mapstructure:"speed" yaml:"speed"`
	Parallel bool   `mapstructure:"parallel" yaml:"parallel"`

	// RetryAttempts bounds consecutive advance failures. Fixed-delay
	// retries; the delay does not back off.
	RetryAttempts uint          `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	BatchPause    time.Duration `mapstructure:"batch_pause" yaml:"batch_pause"`
}

// AudioCfg configures the external narration service.
type AudioCfg struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// APIKey supports ${ENV_VAR} syntax
	APIKey   string  `mapstructure:"api_key" yaml:"api_key"`
	Provider string  `mapstructure:"provider" yaml:"provider"`
	Voice    string  `mapstructure:"voice" yaml:"voice"`
	Model    string  `mapstructure:"model" yaml:"model"`
	Speed    float64 `mapstructure:"speed" yaml:"speed"`
	// RequestTimeout bounds one narration request; synthesis is slow
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// RedisCfg configures the optional Redis backend for the result cache
// and per-book preferences. When disabled, in-memory stores are used.
type RedisCfg struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: "8080",
		},
		Generation: GenerationCfg{
			BaseURL:       "https://api.fablepress.dev",
			APIKey:        "${FABLE_API_KEY}",
			ModelID:       "fable-standard",
			Speed:         "standard",
			Parallel:      false,
			RetryAttempts: 3,
			RetryDelay:    2 * time.Second,
			BatchPause:    500 * time.Millisecond,
		},
		Audio: AudioCfg{
			BaseURL:        "https://api.fablepress.dev",
			APIKey:         "${FABLE_API_KEY}",
			Provider:       "openai",
			Voice:          "alloy",
			Speed:          1.0,
			RequestTimeout: 12 * time.Minute,
		},
		Redis: RedisCfg{
			Enabled: false,
			Addr:    "localhost:6379",
		},
	}
}
