package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"database"`

	Elasticsearch struct {
		URL      string `yaml:"url"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"elasticsearch"`

	Auth struct {
		TokenExpiry time.Duration `yaml:"token_expiry"`
	} `yaml:"auth"`

	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		TLS  struct {
			Enabled  bool   `yaml:"enabled"`
			CertFile string `yaml:"cert_file"`
			KeyFile  string `yaml:"key_file"`
		} `yaml:"tls"`
	} `yaml:"server"`
}

// Load reads the first config file found across the standard locations.
func Load() (*Config, error) {
	configPaths := []string{
		"./configs/config.yaml",
		"../configs/config.yaml",
		"/etc/patient-monitoring/config.yaml",
	}

	var config Config
	for _, path := range configPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}

		configFile, err := os.ReadFile(absPath)
		if err != nil {
			continue
		}

		if err := yaml.Unmarshal(configFile, &config); err != nil {
			return nil, err
		}

		if config.Auth.TokenExpiry == 0 {
			config.Auth.TokenExpiry = 24 * time.Hour
		}
		return &config, nil
	}

	return nil, fmt.Errorf("no configuration file found")
}
