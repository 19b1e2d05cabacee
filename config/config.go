// Package config loads churnguard settings from config.yaml, an optional
// .env file and CHURN_* environment variables, in that order of precedence
// (later wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"churnguard/customer"
	"churnguard/history"
	"churnguard/ml"
)

const DefaultPath = "config.yaml"

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Model     ModelConfig     `yaml:"model"`
	History   HistoryConfig   `yaml:"history"`
	Client    ClientConfig    `yaml:"client"`
	Limits    LimitsConfig    `yaml:"limits"`
	Log       LogConfig       `yaml:"log"`
}

// HTTPConfig is the inference server listener.
type HTTPConfig struct {
	Port           int           `yaml:"port" env:"CHURN_HTTP_PORT"`
	Timeout        time.Duration `yaml:"timeout" env:"CHURN_HTTP_TIMEOUT"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"CHURN_ALLOWED_ORIGINS" envSeparator:","`
}

type DashboardConfig struct {
	Port int `yaml:"port" env:"CHURN_DASHBOARD_PORT"`
}

type ModelConfig struct {
	Type      string `yaml:"type" env:"CHURN_MODEL_TYPE"`
	Path      string `yaml:"path" env:"CHURN_MODEL_PATH"`
	CacheSize int    `yaml:"cache_size" env:"CHURN_MODEL_CACHE_SIZE"`
}

type HistoryConfig struct {
	Backend        string `yaml:"backend" env:"CHURN_HISTORY_BACKEND"`
	Path           string `yaml:"path" env:"CHURN_HISTORY_PATH"`
	BackupDir      string `yaml:"backup_dir" env:"CHURN_BACKUP_DIR"`
	BackupSchedule string `yaml:"backup_schedule" env:"CHURN_BACKUP_SCHEDULE"`
	BackupKeep     int    `yaml:"backup_keep" env:"CHURN_BACKUP_KEEP"`
}

type ClientConfig struct {
	InferenceURL string        `yaml:"inference_url" env:"CHURN_INFERENCE_URL"`
	Timeout      time.Duration `yaml:"timeout" env:"CHURN_CLIENT_TIMEOUT"`
}

type LimitsConfig struct {
	MaxMonthlyCharges float64 `yaml:"max_monthly_charges" env:"CHURN_MAX_MONTHLY_CHARGES"`
	MaxTotalCharges   float64 `yaml:"max_total_charges" env:"CHURN_MAX_TOTAL_CHARGES"`
}

type LogConfig struct {
	Level      string `yaml:"level" env:"CHURN_LOG_LEVEL"`
	File       string `yaml:"file" env:"CHURN_LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"CHURN_LOG_MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"CHURN_LOG_MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"CHURN_LOG_MAX_AGE_DAYS"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	b := customer.DefaultBounds()
	return &Config{
		HTTP: HTTPConfig{
			Port:           8000,
			Timeout:        30 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Dashboard: DashboardConfig{Port: 8501},
		Model: ModelConfig{
			Type:      ml.TypeDecisionTree,
			Path:      "models/churn_model.json",
			CacheSize: 1024,
		},
		History: HistoryConfig{
			Backend:    history.BackendCSV,
			Path:       "data/predictions.csv",
			BackupDir:  "data/backups",
			BackupKeep: 7,
		},
		Client: ClientConfig{
			InferenceURL: "http://127.0.0.1:8000",
			Timeout:      10 * time.Second,
		},
		Limits: LimitsConfig{
			MaxMonthlyCharges: b.MaxMonthlyCharges,
			MaxTotalCharges:   b.MaxTotalCharges,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads path on top of the defaults, then applies .env and the
// environment. An empty path means CONFIG_PATH or config.yaml, either of
// which may be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
		if p := os.Getenv("CONFIG_PATH"); p != "" {
			path, explicit = p, true
		}
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var problems []string
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		problems = append(problems, fmt.Sprintf("http.port %d out of range", c.HTTP.Port))
	}
	if c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535 {
		problems = append(problems, fmt.Sprintf("dashboard.port %d out of range", c.Dashboard.Port))
	}
	if c.HTTP.Timeout <= 0 {
		problems = append(problems, "http.timeout must be positive")
	}
	if c.Model.Path == "" {
		problems = append(problems, "model.path is required")
	}
	if c.Model.Type != ml.TypeDecisionTree {
		problems = append(problems, fmt.Sprintf("unsupported model.type %q", c.Model.Type))
	}
	if c.Model.CacheSize < 0 {
		problems = append(problems, "model.cache_size must not be negative")
	}
	if c.History.Path == "" {
		problems = append(problems, "history.path is required")
	}
	switch c.History.Backend {
	case history.BackendCSV, history.BackendSQLite:
	default:
		problems = append(problems, fmt.Sprintf("unknown history.backend %q", c.History.Backend))
	}
	if c.History.BackupSchedule != "" && c.History.BackupDir == "" {
		problems = append(problems, "history.backup_dir is required when backup_schedule is set")
	}
	if c.Client.InferenceURL == "" {
		problems = append(problems, "client.inference_url is required")
	}
	if c.Client.Timeout <= 0 {
		problems = append(problems, "client.timeout must be positive")
	}
	if c.Limits.MaxMonthlyCharges <= 0 || c.Limits.MaxTotalCharges <= 0 {
		problems = append(problems, "limits must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) Bounds() customer.Bounds {
	return customer.Bounds{
		MaxMonthlyCharges: c.Limits.MaxMonthlyCharges,
		MaxTotalCharges:   c.Limits.MaxTotalCharges,
	}
}

func (c *Config) HistoryOptions() history.Options {
	return history.Options{
		Backend: c.History.Backend,
		Path:    c.History.Path,
		Bounds:  c.Bounds(),
	}
}
