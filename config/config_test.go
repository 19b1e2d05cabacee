package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// inTempDir keeps a stray .env in the package directory out of the test.
func inTempDir(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	inTempDir(t)
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 8000 || cfg.History.Backend != "csv" || cfg.Client.Timeout != 10*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	inTempDir(t)
	path := writeConfig(t, `
http:
  port: 9000
  timeout: 5s
model:
  path: /models/tree.json
history:
  backend: sqlite
  path: /data/history.db
limits:
  max_monthly_charges: 300
log:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9000 || cfg.HTTP.Timeout != 5*time.Second {
		t.Fatalf("unexpected http config %+v", cfg.HTTP)
	}
	if cfg.History.Backend != "sqlite" || cfg.History.Path != "/data/history.db" {
		t.Fatalf("unexpected history config %+v", cfg.History)
	}
	b := cfg.Bounds()
	if b.MaxMonthlyCharges != 300 || b.MaxTotalCharges != 10000 {
		t.Fatalf("unexpected bounds %+v", b)
	}
	if cfg.Log.Level != "debug" || cfg.Log.MaxBackups != 3 {
		t.Fatalf("unexpected log config %+v", cfg.Log)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	inTempDir(t)
	path := writeConfig(t, "http:\n  port: 9000\nhistory:\n  path: a.csv\n")
	t.Setenv("CHURN_HTTP_PORT", "9100")
	t.Setenv("CHURN_HISTORY_PATH", "b.csv")
	t.Setenv("CHURN_CLIENT_TIMEOUT", "250ms")
	t.Setenv("CHURN_ALLOWED_ORIGINS", "http://a,http://b")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9100 || cfg.History.Path != "b.csv" {
		t.Fatalf("env did not override: %+v", cfg)
	}
	if cfg.Client.Timeout != 250*time.Millisecond {
		t.Fatalf("unexpected timeout %v", cfg.Client.Timeout)
	}
	if len(cfg.HTTP.AllowedOrigins) != 2 {
		t.Fatalf("unexpected origins %v", cfg.HTTP.AllowedOrigins)
	}
}

func TestDotEnv(t *testing.T) {
	inTempDir(t)
	if err := os.WriteFile(".env", []byte("CHURN_LOG_LEVEL=warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", "")
	// godotenv sets the variable for the process; t.Setenv restores it.
	t.Setenv("CHURN_LOG_LEVEL", "")
	os.Unsetenv("CHURN_LOG_LEVEL")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("expected level from .env, got %q", cfg.Log.Level)
	}
}

func TestLoadErrors(t *testing.T) {
	inTempDir(t)
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad yaml", "http: [", "parse"},
		{"unknown backend", "history:\n  backend: redis\n", "history.backend"},
		{"empty history path", "history:\n  path: \"\"\n", "history.path"},
		{"negative limit", "limits:\n  max_total_charges: -1\n", "limits"},
		{"unknown model", "model:\n  type: forest\n", "model.type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}
