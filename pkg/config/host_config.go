// Package config provides configuration loading for the authoring host daemon.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// HostConfigFile represents the structure of the host.yaml file.
type HostConfigFile struct {
	Listen     string `yaml:"listen"`
	StorageURL string `yaml:"storage_url"`
	DedupURL   string `yaml:"dedup_url"`
	TokenTTL   string `yaml:"token_ttl"`
	LogLevel   string `yaml:"log_level"`
}

// HostConfig is the parsed daemon configuration with defaults applied.
type HostConfig struct {
	Listen     string
	StorageURL string
	DedupURL   string
	TokenTTL   time.Duration
	LogLevel   string
}

const (
	defaultListen   = ":7711"
	defaultStorage  = "./assets"
	defaultTokenTTL = 24 * time.Hour
)

// LoadHostConfig loads host daemon configuration from a YAML file.
func LoadHostConfig(filepath string) (HostConfig, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return HostConfig{}, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile HostConfigFile
	if err := yaml.Unmarshal(data, &configFile); err != nil {
		return HostConfig{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config := HostConfig{
		Listen:     configFile.Listen,
		StorageURL: configFile.StorageURL,
		DedupURL:   configFile.DedupURL,
		TokenTTL:   defaultTokenTTL,
		LogLevel:   configFile.LogLevel,
	}

	if config.Listen == "" {
		config.Listen = defaultListen
	}

	if config.StorageURL == "" {
		config.StorageURL = defaultStorage
	}

	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	if configFile.TokenTTL != "" {
		ttl, err := time.ParseDuration(configFile.TokenTTL)
		if err != nil {
			return HostConfig{}, fmt.Errorf("invalid token_ttl %q: %w", configFile.TokenTTL, err)
		}

		config.TokenTTL = ttl
	}

	return config, nil
}
