package gcp

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config points the collector at a standard billing export dataset.
type Config struct {
	ProjectID          string `mapstructure:"project_id"`
	BillingTable       string `mapstructure:"billing_table"`
	ServiceAccountPath string `mapstructure:"service_account_path"`
}

// LoadConfig reads the profile file (YAML) or, when the path is empty, the
// GCP_* environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("gcp")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("unable to read GCP config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to parse GCP config: %w", err)
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("GCP project id is required")
	}
	if cfg.BillingTable == "" {
		return nil, fmt.Errorf("GCP billing export table is required")
	}
	if cfg.ServiceAccountPath == "" {
		return nil, fmt.Errorf("GCP service account key path is required")
	}
	if _, err := os.Stat(cfg.ServiceAccountPath); err != nil {
		return nil, fmt.Errorf("service account key not readable: %w", err)
	}
	return &cfg, nil
}
