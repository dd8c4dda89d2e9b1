// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	Marketplaces MarketplacesConfig `mapstructure:"marketplaces"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Polling      PollingConfig      `mapstructure:"polling"`
	Gateway      GatewayConfig      `mapstructure:"gateway"`
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// TelegramConfig contains Bot API configuration
type TelegramConfig struct {
	Token       string        `mapstructure:"token"`
	APIURL      string        `mapstructure:"api_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PollTimeout int           `mapstructure:"poll_timeout"`
}

// MarketplacesConfig contains marketplace API credentials and endpoints
type MarketplacesConfig struct {
	OpenSeaAPIKey   string `mapstructure:"opensea_api_key"`
	OpenSeaAPIURL   string `mapstructure:"opensea_api_url"`
	MagicEdenAPIKey string `mapstructure:"magiceden_api_key"`
	MagicEdenAPIURL string `mapstructure:"magiceden_api_url"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// PollingConfig contains the three tier intervals
type PollingConfig struct {
	InstantInterval time.Duration `mapstructure:"instant_interval"`
	TenMinInterval  time.Duration `mapstructure:"ten_min_interval"`
	HourlyInterval  time.Duration `mapstructure:"hourly_interval"`
}

// GatewayConfig contains outbound request rate limits
type GatewayConfig struct {
	WindowCalls  int           `mapstructure:"window_calls"`
	Window       time.Duration `mapstructure:"window"`
	GlobalCalls  int           `mapstructure:"global_calls"`
	GlobalWindow time.Duration `mapstructure:"global_window"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./internal/config")
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("NFT_WATCHER")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override with environment variables if present
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		config.Telegram.Token = token
	}
	if key := os.Getenv("OPENSEA_API_KEY"); key != "" {
		config.Marketplaces.OpenSeaAPIKey = key
	}
	if key := os.Getenv("MAGICEDEN_API_KEY"); key != "" {
		config.Marketplaces.MagicEdenAPIKey = key
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "nft-trade-watcher")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// Telegram defaults
	viper.SetDefault("telegram.api_url", "https://api.telegram.org")
	viper.SetDefault("telegram.timeout", "30s")
	viper.SetDefault("telegram.poll_timeout", 30)

	// Marketplace defaults
	viper.SetDefault("marketplaces.opensea_api_url", "https://api.opensea.io/api/v2")
	viper.SetDefault("marketplaces.magiceden_api_url", "https://api-mainnet.magiceden.dev/v2")

	// Storage defaults
	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.connection_string", "./data/nft_tracker.db")
	viper.SetDefault("storage.max_connections", 25)
	viper.SetDefault("storage.max_idle_time", "15m")

	// Polling defaults, one interval per frequency tier
	viper.SetDefault("polling.instant_interval", "30s")
	viper.SetDefault("polling.ten_min_interval", "10m")
	viper.SetDefault("polling.hourly_interval", "1h")

	// Gateway defaults
	viper.SetDefault("gateway.window_calls", 5)
	viper.SetDefault("gateway.window", "1s")
	viper.SetDefault("gateway.global_calls", 20)
	viper.SetDefault("gateway.global_window", "60s")
	viper.SetDefault("gateway.timeout", "10s")

	// Server defaults
	viper.SetDefault("server.port", 8081)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("server.enable_metrics", true)
	viper.SetDefault("server.enable_health", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram bot token is required")
	}
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	if c.Polling.InstantInterval <= 0 || c.Polling.TenMinInterval <= 0 || c.Polling.HourlyInterval <= 0 {
		return fmt.Errorf("polling intervals must be positive")
	}
	if c.Gateway.WindowCalls <= 0 || c.Gateway.GlobalCalls <= 0 {
		return fmt.Errorf("gateway rate limits must be positive")
	}
	return nil
}
