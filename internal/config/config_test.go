package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_CreatesDefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "settings.json")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Download.ConcurrentJobs != 4 {
		t.Errorf("Expected default concurrent jobs 4, got %d", cfg.Download.ConcurrentJobs)
	}
	if cfg.Catalog.MaxConnections != 4 {
		t.Errorf("Expected default max connections 4, got %d", cfg.Catalog.MaxConnections)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.Logging.Level)
	}

	// Default config should have been written to disk
	if _, err := os.Stat(configPath); err != nil {
		t.Errorf("Expected config file to be created: %v", err)
	}
}

func TestLoad_ReadsExistingConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "settings.json")

	content := `{
		"catalog": {"db_path": "` + strings.ReplaceAll(filepath.Join(tmpDir, "cat.db"), `\`, `\\`) + `", "max_connections": 2},
		"download": {"output_dir": "` + strings.ReplaceAll(tmpDir, `\`, `\\`) + `", "concurrent_jobs": 2}
	}`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Download.ConcurrentJobs != 2 {
		t.Errorf("Expected concurrent jobs 2 from file, got %d", cfg.Download.ConcurrentJobs)
	}
	if cfg.Catalog.MaxConnections != 2 {
		t.Errorf("Expected max connections 2 from file, got %d", cfg.Catalog.MaxConnections)
	}
	// Unset fields keep defaults
	if cfg.Network.Timeout != 30 {
		t.Errorf("Expected default network timeout 30, got %d", cfg.Network.Timeout)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Catalog:  CatalogConfig{DBPath: "/tmp/cat.db", MaxConnections: 4},
			Download: DownloadConfig{OutputDir: "/tmp/media", ConcurrentJobs: 4, EmbedArtwork: true, ArtworkSize: 1200},
			Network:  NetworkConfig{Timeout: 30, MaxRetries: 3, RequestsPerSecond: 10},
			Logging:  LoggingConfig{Level: "info", Format: "json", Output: "both", MaxSizeMB: 100},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"empty db path", func(c *Config) { c.Catalog.DBPath = "" }, "database path"},
		{"zero workers", func(c *Config) { c.Download.ConcurrentJobs = 0 }, "concurrent jobs"},
		{"too many workers", func(c *Config) { c.Download.ConcurrentJobs = 64 }, "concurrent jobs"},
		{"empty output dir", func(c *Config) { c.Download.OutputDir = "" }, "output directory"},
		{"tiny artwork", func(c *Config) { c.Download.ArtworkSize = 10 }, "artwork size"},
		{"zero timeout", func(c *Config) { c.Network.Timeout = 0 }, "timeout"},
		{"negative retries", func(c *Config) { c.Network.MaxRetries = -1 }, "retries"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "log level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected valid config, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "settings.json")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	cfg.Download.ConcurrentJobs = 6
	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	reloaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to reload config: %v", err)
	}
	if reloaded.Download.ConcurrentJobs != 6 {
		t.Errorf("Expected concurrent jobs 6 after reload, got %d", reloaded.Download.ConcurrentJobs)
	}
}
