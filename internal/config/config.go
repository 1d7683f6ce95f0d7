package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	constants "logamizer/config"
	"logamizer/internal/model"
)

// Config represents the application configuration.
type Config struct {
	// Infrastructure
	RedisAddr   string `mapstructure:"redis_addr"`
	DatabaseURL string `mapstructure:"database_url"`
	BlobDir     string `mapstructure:"blob_dir"` // filesystem blob store root
	Workers     int    `mapstructure:"workers"`

	// OTLP metrics export (optional; disabled when endpoint is empty)
	OTLPEndpoint  string `mapstructure:"otlp_endpoint"`
	OTLPAuthToken string `mapstructure:"otlp_auth_token"`

	// Default site settings, used when a site has no stored overrides
	LogFormat       string   `mapstructure:"log_format"`
	BaselineDays    int      `mapstructure:"anomaly_baseline_days"`
	MinBaselineHrs  int      `mapstructure:"anomaly_min_baseline_hours"`
	ZThreshold      float64  `mapstructure:"anomaly_z_threshold"`
	NewPathMinCount int      `mapstructure:"anomaly_new_path_min_count"`
	FilteredIPs     []string `mapstructure:"filtered_ips"`

	Debug bool `mapstructure:"debug"`
}

// AnomalyParams assembles the configured defaults into detector parameters.
func (cfg *Config) AnomalyParams() model.AnomalyParams {
	return model.AnomalyParams{
		BaselineDays:     cfg.BaselineDays,
		MinBaselineHours: cfg.MinBaselineHrs,
		ZThreshold:       cfg.ZThreshold,
		NewPathMinCount:  cfg.NewPathMinCount,
	}
}

// Validate rejects values the pipeline cannot run with.
func (cfg *Config) Validate() error {
	switch cfg.LogFormat {
	case constants.FORMAT_NGINX_COMBINED, constants.FORMAT_APACHE_COMBINED, constants.FORMAT_AUTO:
	default:
		return fmt.Errorf("unknown log_format %q", cfg.LogFormat)
	}
	if cfg.BaselineDays < 1 {
		return fmt.Errorf("anomaly_baseline_days must be >= 1, got %d", cfg.BaselineDays)
	}
	if cfg.MinBaselineHrs < 1 {
		return fmt.Errorf("anomaly_min_baseline_hours must be >= 1, got %d", cfg.MinBaselineHrs)
	}
	if cfg.ZThreshold < 0 {
		return fmt.Errorf("anomaly_z_threshold must be >= 0, got %g", cfg.ZThreshold)
	}
	if cfg.NewPathMinCount < 1 {
		return fmt.Errorf("anomaly_new_path_min_count must be >= 1, got %d", cfg.NewPathMinCount)
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", cfg.Workers)
	}
	return nil
}

// LoadConfig loads configuration from file and environment.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME" + constants.CONFIG_DIR_NAME)
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("logamizer")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("redis_addr", "localhost:6379")
	viper.SetDefault("workers", constants.DEFAULT_WORKERS)
	viper.SetDefault("log_format", constants.FORMAT_AUTO)
	viper.SetDefault("anomaly_baseline_days", constants.DEFAULT_BASELINE_DAYS)
	viper.SetDefault("anomaly_min_baseline_hours", constants.DEFAULT_MIN_BASELINE_HOURS)
	viper.SetDefault("anomaly_z_threshold", constants.DEFAULT_Z_THRESHOLD)
	viper.SetDefault("anomaly_new_path_min_count", constants.DEFAULT_NEW_PATH_MIN_COUNT)

	// Read config file; absence is fine, defaults and env still apply
	viper.ReadInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SaveConfig saves configuration to file.
func SaveConfig(cfg *Config) error {
	configDir := os.Getenv("HOME") + constants.CONFIG_DIR_NAME
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	var lines []string

	if cfg.RedisAddr != "" {
		lines = append(lines, fmt.Sprintf("redis_addr: %s", cfg.RedisAddr))
	}
	if cfg.DatabaseURL != "" {
		lines = append(lines, fmt.Sprintf("database_url: %s", cfg.DatabaseURL))
	}
	if cfg.BlobDir != "" {
		lines = append(lines, fmt.Sprintf("blob_dir: %s", cfg.BlobDir))
	}
	if cfg.OTLPEndpoint != "" {
		lines = append(lines, fmt.Sprintf("otlp_endpoint: %s", cfg.OTLPEndpoint))
	}
	if cfg.OTLPAuthToken != "" {
		lines = append(lines, fmt.Sprintf("otlp_auth_token: %s", cfg.OTLPAuthToken))
	}

	lines = append(lines, fmt.Sprintf("workers: %d", cfg.Workers))
	lines = append(lines, fmt.Sprintf("log_format: %s", cfg.LogFormat))
	lines = append(lines, fmt.Sprintf("anomaly_baseline_days: %d", cfg.BaselineDays))
	lines = append(lines, fmt.Sprintf("anomaly_min_baseline_hours: %d", cfg.MinBaselineHrs))
	lines = append(lines, fmt.Sprintf("anomaly_z_threshold: %.1f", cfg.ZThreshold))
	lines = append(lines, fmt.Sprintf("anomaly_new_path_min_count: %d", cfg.NewPathMinCount))

	if len(cfg.FilteredIPs) > 0 {
		lines = append(lines, "filtered_ips:")
		for _, ip := range cfg.FilteredIPs {
			lines = append(lines, fmt.Sprintf("  - %s", ip))
		}
	}

	content := strings.Join(lines, "\n") + "\n"

	return os.WriteFile(configDir+"/config.yaml", []byte(content), 0644)
}
