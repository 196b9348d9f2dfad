package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config represents the main configuration structure
type Config struct {
	Compression CompressionConfig `mapstructure:"compression"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// CompressionConfig contains the defaults applied to every job
type CompressionConfig struct {
	Quality          int      `mapstructure:"quality" validate:"min=0,max=100"`
	Format           string   `mapstructure:"format" validate:"oneof=jpeg jpg png"`
	TargetSizeKB     int      `mapstructure:"target_size_kb" validate:"min=0"`
	FailureThreshold int      `mapstructure:"failure_threshold" validate:"min=0"`
	PreserveMetadata bool     `mapstructure:"preserve_metadata"`
	Recursive        bool     `mapstructure:"recursive"`
	Extensions       []string `mapstructure:"extensions" validate:"min=1"`
}

// PerformanceConfig contains performance tuning settings
type PerformanceConfig struct {
	WorkerThreads int  `mapstructure:"worker_threads" validate:"min=0"` // 0 = plan from host stats
	ShowProgress  bool `mapstructure:"show_progress"`
}

// ServerConfig contains web server settings
type ServerConfig struct {
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size" validate:"min=0"` // MB
	MaxBackups int    `mapstructure:"max_backups" validate:"min=0"`
	MaxAge     int    `mapstructure:"max_age" validate:"min=0"` // days
	Compress   bool   `mapstructure:"compress"`
	SentryDSN  string `mapstructure:"sentry_dsn" validate:"omitempty,url"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Compression: CompressionConfig{
			Quality:          80,
			Format:           "jpeg",
			TargetSizeKB:     0, // 0 means no size target
			FailureThreshold: 10,
			PreserveMetadata: false,
			Recursive:        false,
			Extensions: []string{
				".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".tif", ".webp",
			},
		},
		Performance: PerformanceConfig{
			WorkerThreads: 0,
			ShowProgress:  true,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "imgpress.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.imgpress")
		v.AddConfigPath("/etc/imgpress")
	}

	// Enable environment variable support
	v.SetEnvPrefix("IMGPRESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	// Try to read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	// mapstructure decodes into the existing slice in place, so a shorter list would keep the default tail
	if v.IsSet("compression.extensions") {
		config.Compression.Extensions = nil
	}

	// Unmarshal config
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate and normalize config
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// bindEnv registers every key so AutomaticEnv also applies to keys absent
// from the config file.
func bindEnv(v *viper.Viper) {
	keys := []string{
		"compression.quality",
		"compression.format",
		"compression.target_size_kb",
		"compression.failure_threshold",
		"compression.preserve_metadata",
		"compression.recursive",
		"performance.worker_threads",
		"performance.show_progress",
		"server.port",
		"logging.level",
		"logging.file_path",
		"logging.sentry_dsn",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	c.Compression.Format = strings.ToLower(c.Compression.Format)
	c.Compression.Extensions = normalizeExtensions(c.Compression.Extensions)

	if err := validator.New().Struct(c); err != nil {
		return err
	}

	// Validate logging settings
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// TargetSize returns the configured size target, or nil when unset.
func (c *Config) TargetSize() *int {
	if c.Compression.TargetSizeKB <= 0 {
		return nil
	}
	kb := c.Compression.TargetSizeKB
	return &kb
}

// IsImageExtension checks if the extension is a supported input extension
func (c *Config) IsImageExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, supportedExt := range c.Compression.Extensions {
		if ext == supportedExt {
			return true
		}
	}
	return false
}

// Helper functions

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, len(extensions))
	for i, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[i] = ext
	}
	return normalized
}
