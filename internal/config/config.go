package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Type string `yaml:"type"` // "sqlite" or "postgres"
		Path string `yaml:"path"` // SQLite file path
		URL  string `yaml:"url"`  // PostgreSQL connection URL
	} `yaml:"database"`

	Models struct {
		Dir         string `yaml:"dir"`          // where trained artifacts are written
		DefaultPath string `yaml:"default_path"` // packaged default model directory
	} `yaml:"models"`

	Runtime struct {
		Type                string `yaml:"type"` // "http" or "gemini"
		URL                 string `yaml:"url"`
		PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
		GeminiAPIKey        string `yaml:"gemini_api_key"`
		GeminiModel         string `yaml:"gemini_model"`
	} `yaml:"runtime"`

	Generation struct {
		CacheSize int `yaml:"cache_size"`
	} `yaml:"generation"`
}

// LoadConfig loads configuration from YAML file
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	// Set defaults
	if config.Server.Port == "" {
		config.Server.Port = "8010"
	}

	if config.Database.Type == "" {
		config.Database.Type = "sqlite"
	}

	if config.Database.Path == "" {
		config.Database.Path = "./data/bookgen.db"
	}

	if config.Models.Dir == "" {
		config.Models.Dir = "./data/models"
	}

	if config.Runtime.Type == "" {
		config.Runtime.Type = "http"
	}

	if config.Runtime.URL == "" {
		config.Runtime.URL = "http://localhost:8011"
	}

	if config.Runtime.PollIntervalSeconds == 0 {
		config.Runtime.PollIntervalSeconds = 5
	}

	if config.Runtime.GeminiModel == "" {
		config.Runtime.GeminiModel = "gemini-2.0-flash-exp"
	}

	if config.Generation.CacheSize == 0 {
		config.Generation.CacheSize = 4
	}

	// Expand environment variables in secrets and connection strings
	config.Database.URL = os.ExpandEnv(config.Database.URL)
	config.Runtime.GeminiAPIKey = os.ExpandEnv(config.Runtime.GeminiAPIKey)

	return config, nil
}
