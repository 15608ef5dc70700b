package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config defines the application configuration structure
type Config struct {
	API    APIConfig    `mapstructure:"api"`
	Fetch  FetchConfig  `mapstructure:"fetch"`
	Output OutputConfig `mapstructure:"output"`
}

// APIConfig defines the upstream exchange-rate API configuration
type APIConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	Key          string `mapstructure:"key"`
	Version      string `mapstructure:"version"`
	BaseCurrency string `mapstructure:"base_currency"`
}

// FetchConfig defines how rates are fetched from the upstream
type FetchConfig struct {
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
	RequestDelay   int  `mapstructure:"request_delay"`
	MaxRetries     int  `mapstructure:"max_retries"`
	Strict         bool `mapstructure:"strict"`
}

// OutputConfig defines where partition files are written
type OutputConfig struct {
	SavePath string `mapstructure:"save_path"`
}

// LoadConfig loads configuration from file and overrides with environment variables
func LoadConfig(path string) (Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("FX")

	// Mappings for nested config keys to env vars
	viper.BindEnv("api.base_url", "FX_API_BASE_URL")
	viper.BindEnv("api.key", "FX_API_KEY")
	viper.BindEnv("api.version", "FX_API_VERSION")
	viper.BindEnv("api.base_currency", "FX_BASE_CURRENCY")

	viper.BindEnv("fetch.timeout_seconds", "FX_TIMEOUT_SECONDS")
	viper.BindEnv("fetch.request_delay", "FX_REQUEST_DELAY")
	viper.BindEnv("fetch.max_retries", "FX_MAX_RETRIES")
	viper.BindEnv("fetch.strict", "FX_STRICT")

	viper.BindEnv("output.save_path", "FX_SAVE_PATH")

	// A missing config file is fine, env vars and defaults cover everything
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Printf("Error reading config file %s: %v, falling back to environment variables\n", path, err)
		}
	}

	// Env vars take precedence over config file values
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}

	applyDefaults(&config)

	return config, nil
}

// applyDefaults sets default values for any config values not set from file or environment
func applyDefaults(config *Config) {
	if config.API.BaseURL == "" {
		config.API.BaseURL = "https://openexchangerates.org/api/"
	}
	if config.API.Version == "" {
		config.API.Version = "v1"
	}
	if config.API.BaseCurrency == "" {
		config.API.BaseCurrency = "USD"
	}

	if config.Fetch.TimeoutSeconds == 0 {
		config.Fetch.TimeoutSeconds = 10
	}
	if config.Fetch.RequestDelay == 0 {
		config.Fetch.RequestDelay = 500
	}
	if config.Fetch.MaxRetries == 0 {
		config.Fetch.MaxRetries = 5
	}

	if config.Output.SavePath == "" {
		config.Output.SavePath = "output"
	}
}
