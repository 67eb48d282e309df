package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Charger   ChargerConfig   `mapstructure:"charger"`
	Intervals IntervalsConfig `mapstructure:"intervals"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	API       APIConfig       `mapstructure:"api"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Datadog   DatadogConfig   `mapstructure:"datadog"`
}

// ChargerConfig identifies the charger this bridge connects to
type ChargerConfig struct {
	Host     string `mapstructure:"host"`
	Password string `mapstructure:"password"`
	// Name overrides the display name registered with the home automation
	// platform. Optional.
	Name string `mapstructure:"name"`
}

// IntervalsConfig contains the poll intervals per data category
type IntervalsConfig struct {
	Meter      time.Duration `mapstructure:"meter"`
	UserConfig time.Duration `mapstructure:"user_config"`
	Version    time.Duration `mapstructure:"version"`
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker          string `mapstructure:"broker"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	ClientID        string `mapstructure:"client_id"`
	TopicPrefix     string `mapstructure:"topic_prefix"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"` // Home Assistant discovery prefix
}

// APIConfig contains local HTTP API settings
type APIConfig struct {
	Port int        `mapstructure:"port"`
	Auth AuthConfig `mapstructure:"auth"`
}

// AuthConfig contains API authentication settings
type AuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"` // Optional: log file path
}

// DatadogConfig contains Datadog APM settings
type DatadogConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	AgentHost   string `mapstructure:"agent_host"`
	AgentPort   int    `mapstructure:"agent_port"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.peblar-bridge")
		v.AddConfigPath("/etc/peblar-bridge")
	}

	// Set defaults
	v.SetDefault("intervals.meter", 10*time.Second)
	v.SetDefault("intervals.user_config", 5*time.Minute)
	v.SetDefault("intervals.version", 2*time.Hour)
	v.SetDefault("mqtt.broker", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "peblar-bridge")
	v.SetDefault("mqtt.topic_prefix", "peblar")
	v.SetDefault("mqtt.discovery_prefix", "homeassistant")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.auth.enabled", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("datadog.enabled", false)
	v.SetDefault("datadog.agent_host", "localhost")
	v.SetDefault("datadog.agent_port", 8126)
	v.SetDefault("datadog.service_name", "peblar-bridge")
	v.SetDefault("datadog.environment", "production")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Fprintf(os.Stderr, "Warning: Config file not found, using defaults\n")
		} else {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Charger.Host == "" {
		return fmt.Errorf("charger.host is required")
	}

	if c.Charger.Password == "" {
		return fmt.Errorf("charger.password is required")
	}

	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		return fmt.Errorf("mqtt.port must be between 1 and 65535")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("api.port must be between 1 and 65535")
	}

	if c.Intervals.Meter < time.Second {
		return fmt.Errorf("intervals.meter must be at least 1s")
	}

	if c.Intervals.UserConfig < time.Second {
		return fmt.Errorf("intervals.user_config must be at least 1s")
	}

	if c.Intervals.Version < time.Minute {
		return fmt.Errorf("intervals.version must be at least 1m")
	}

	if c.API.Auth.Enabled && (c.API.Auth.Username == "" || c.API.Auth.Password == "") {
		return fmt.Errorf("api.auth.username and api.auth.password are required when auth is enabled")
	}

	return nil
}
