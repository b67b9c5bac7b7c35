package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Catalog  CatalogConfig  `json:"catalog" mapstructure:"catalog"`
	Download DownloadConfig `json:"download" mapstructure:"download"`
	Network  NetworkConfig  `json:"network" mapstructure:"network"`
	Metrics  MetricsConfig  `json:"metrics" mapstructure:"metrics"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
}

// CatalogConfig contains catalog database settings
type CatalogConfig struct {
	DBPath         string `json:"db_path" mapstructure:"db_path"`
	MaxConnections int    `json:"max_connections" mapstructure:"max_connections"`
}

// DownloadConfig contains download-related settings
type DownloadConfig struct {
	OutputDir      string `json:"output_dir" mapstructure:"output_dir"`
	ConcurrentJobs int    `json:"concurrent_jobs" mapstructure:"concurrent_jobs"`
	AudioFormat    string `json:"audio_format" mapstructure:"audio_format"`
	VideoFormat    string `json:"video_format" mapstructure:"video_format"`
	EmbedArtwork   bool   `json:"embed_artwork" mapstructure:"embed_artwork"`
	ArtworkSize    int    `json:"artwork_size" mapstructure:"artwork_size"`
}

// NetworkConfig contains network-related settings
type NetworkConfig struct {
	Timeout           int     `json:"timeout" mapstructure:"timeout"`
	MaxRetries        int     `json:"max_retries" mapstructure:"max_retries"`
	RequestsPerSecond float64 `json:"requests_per_second" mapstructure:"requests_per_second"`
}

// MetricsConfig contains metrics endpoint settings
type MetricsConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	ListenAddr string `json:"listen_addr" mapstructure:"listen_addr"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	Format     string `json:"format" mapstructure:"format"`
	Output     string `json:"output" mapstructure:"output"`
	FilePath   string `json:"file_path" mapstructure:"file_path"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// Load loads configuration from file or creates default
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath == "" {
		configPath = getDefaultConfigPath()
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	if err := ensureConfigDir(configPath); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	// Read config file if it exists, otherwise persist the defaults
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
			if err := v.WriteConfigAs(configPath); err != nil {
				return nil, fmt.Errorf("failed to write default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Allow environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("TUNEVAULT")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Catalog validation
	if c.Catalog.DBPath == "" {
		return fmt.Errorf("catalog database path cannot be empty")
	}

	if c.Catalog.MaxConnections < 1 {
		return fmt.Errorf("catalog max connections must be at least 1")
	}

	// Download validation
	if c.Download.ConcurrentJobs < 1 {
		return fmt.Errorf("concurrent jobs must be at least 1")
	}

	if c.Download.ConcurrentJobs > 32 {
		return fmt.Errorf("concurrent jobs cannot exceed 32")
	}

	if c.Download.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}

	if c.Download.EmbedArtwork && (c.Download.ArtworkSize < 100 || c.Download.ArtworkSize > 5000) {
		return fmt.Errorf("artwork size must be between 100 and 5000 pixels")
	}

	// Network validation
	if c.Network.Timeout < 1 {
		return fmt.Errorf("network timeout must be at least 1 second")
	}

	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	if c.Network.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logging.Format)
	}

	validOutputs := map[string]bool{"file": true, "console": true, "both": true}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("invalid log output: %s (must be file, console, or both)", c.Logging.Output)
	}

	if c.Logging.MaxSizeMB < 1 {
		return fmt.Errorf("log max size must be at least 1 MB")
	}

	return nil
}

// Save saves the configuration to file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.Set("catalog", c.Catalog)
	v.Set("download", c.Download)
	v.Set("network", c.Network)
	v.Set("metrics", c.Metrics)
	v.Set("logging", c.Logging)

	return v.WriteConfig()
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Catalog defaults
	v.SetDefault("catalog.db_path", filepath.Join(GetDataDir(), "catalog.db"))
	v.SetDefault("catalog.max_connections", 4)

	// Download defaults
	v.SetDefault("download.output_dir", filepath.Join(GetDataDir(), "media"))
	v.SetDefault("download.concurrent_jobs", 4)
	v.SetDefault("download.audio_format", "mp3")
	v.SetDefault("download.video_format", "mp4")
	v.SetDefault("download.embed_artwork", true)
	v.SetDefault("download.artwork_size", 1200)

	// Network defaults
	v.SetDefault("network.timeout", 30)
	v.SetDefault("network.max_retries", 3)
	v.SetDefault("network.requests_per_second", 10.0)

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", "127.0.0.1:9414")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "both")
	v.SetDefault("logging.file_path", filepath.Join(GetDataDir(), "logs", "tunevault.log"))
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)
}

// GetDataDir returns the application data directory
func GetDataDir() string {
	appData := os.Getenv("APPDATA")
	if appData == "" {
		appData = os.Getenv("HOME")
	}
	return filepath.Join(appData, "TuneVault")
}

// getDefaultConfigPath returns the default configuration file path
func getDefaultConfigPath() string {
	return filepath.Join(GetDataDir(), "settings.json")
}

// ensureConfigDir ensures the config file's directory exists
func ensureConfigDir(configPath string) error {
	return os.MkdirAll(filepath.Dir(configPath), 0755)
}
