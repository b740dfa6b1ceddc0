// Package config holds the application configuration, loaded through Viper
// and validated before anything starts.
package config

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var (
	instance *Config
	once     sync.Once
)

// Config is the root configuration structure.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger"`
	Browser BrowserConfig `mapstructure:"browser"`
	Network NetworkConfig `mapstructure:"network"`
}

// LoggerConfig configures the zap logger and optional rotating log file.
type LoggerConfig struct {
	Level       string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format      string `mapstructure:"format" validate:"omitempty,oneof=console json"`
	AddSource   bool   `mapstructure:"add_source"`
	ServiceName string `mapstructure:"service_name"`
	LogFile     string `mapstructure:"log_file"`
	MaxSize     int    `mapstructure:"max_size" validate:"min=0"`
	MaxBackups  int    `mapstructure:"max_backups" validate:"min=0"`
	MaxAge      int    `mapstructure:"max_age" validate:"min=0"`
	Compress    bool   `mapstructure:"compress"`
}

// BrowserConfig holds settings for the browser executable.
type BrowserConfig struct {
	Headless        bool   `mapstructure:"headless"`
	ExecPath        string `mapstructure:"exec_path"`
	IgnoreTLSErrors bool   `mapstructure:"ignore_tls_errors"`
}

// NetworkConfig holds the optional default proxy applied to new contexts.
type NetworkConfig struct {
	Proxy ProxyConfig `mapstructure:"proxy"`
}

// ProxyConfig describes a proxy endpoint. When enabled, Address is required
// and passed through to the engine unmodified.
type ProxyConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address" validate:"required_if=Enabled true,omitempty,url|hostname_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

var validate = validator.New()

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// SetDefaults installs defaults so the app runs with no config file at all.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "stealthctx")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("browser.headless", true)
}

// Load initializes the configuration singleton from Viper.
func Load(v *viper.Viper) error {
	var loadErr error
	once.Do(func() {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			loadErr = fmt.Errorf("error unmarshaling config: %w", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			loadErr = err
			return
		}
		instance = &cfg
	})
	return loadErr
}

// Get returns the loaded configuration instance.
func Get() *Config {
	if instance == nil {
		panic("Configuration not initialized. Call config.Load() in the root command.")
	}
	return instance
}

// Set replaces the configuration instance. Intended for tests.
func Set(c *Config) {
	instance = c
}
