package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoad_Full(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
redis:
  addr: "redis:6379"
  db: 2
  anomaly_stream: "alerts"
auth:
  jwt_secret: "s3cret"
  token_ttl_hours: 48
ingest:
  device_secret: "d3vice"
forecast:
  alpha: 0.5
  horizon: 6
anomaly:
  window: 30
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 2 || cfg.Redis.AnomalyStream != "alerts" {
		t.Errorf("Redis config = %+v, values do not match file", cfg.Redis)
	}
	if cfg.Auth.JWTSecret != "s3cret" || cfg.Auth.TokenTTLHours != 48 {
		t.Errorf("Auth config = %+v, values do not match file", cfg.Auth)
	}
	if cfg.Forecast.Alpha != 0.5 || cfg.Forecast.Horizon != 6 {
		t.Errorf("Forecast config = %+v, values do not match file", cfg.Forecast)
	}
	if cfg.Anomaly.Window != 30 {
		t.Errorf("Anomaly.Window = %d, want 30", cfg.Anomaly.Window)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: "s3cret"
ingest:
  device_secret: "d3vice"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want default :8080", cfg.Server.Addr)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr = %q, want default localhost:6379", cfg.Redis.Addr)
	}
	if cfg.Redis.AnomalyStream != "anomaly_events" {
		t.Errorf("Redis.AnomalyStream = %q, want default anomaly_events", cfg.Redis.AnomalyStream)
	}
	if cfg.Auth.TokenTTLHours != 168 {
		t.Errorf("Auth.TokenTTLHours = %d, want default 168", cfg.Auth.TokenTTLHours)
	}
	if cfg.Forecast.Alpha != DefaultAlpha {
		t.Errorf("Forecast.Alpha = %v, want default %v", cfg.Forecast.Alpha, DefaultAlpha)
	}
	if cfg.Forecast.Horizon != DefaultHorizon {
		t.Errorf("Forecast.Horizon = %d, want default %d", cfg.Forecast.Horizon, DefaultHorizon)
	}
	if cfg.Anomaly.Window != DefaultWindow {
		t.Errorf("Anomaly.Window = %d, want default %d", cfg.Anomaly.Window, DefaultWindow)
	}
}

func TestLoad_EnvOverridesSecrets(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: "from-file"
ingest:
  device_secret: "from-file"
`)

	t.Setenv("JWT_SECRET", "from-env-jwt")
	t.Setenv("DEVICE_SECRET", "from-env-device")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "from-env-jwt" {
		t.Errorf("Auth.JWTSecret = %q, want env override", cfg.Auth.JWTSecret)
	}
	if cfg.Ingest.DeviceSecret != "from-env-device" {
		t.Errorf("Ingest.DeviceSecret = %q, want env override", cfg.Ingest.DeviceSecret)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing jwt secret",
			content: `
ingest:
  device_secret: "d3vice"
`,
			wantErr: "jwt_secret",
		},
		{
			name: "missing device secret",
			content: `
auth:
  jwt_secret: "s3cret"
`,
			wantErr: "device_secret",
		},
		{
			name: "alpha above one",
			content: `
auth:
  jwt_secret: "s3cret"
ingest:
  device_secret: "d3vice"
forecast:
  alpha: 1.5
`,
			wantErr: "forecast.alpha",
		},
		{
			name: "negative horizon",
			content: `
auth:
  jwt_secret: "s3cret"
ingest:
  device_secret: "d3vice"
forecast:
  horizon: -3
`,
			wantErr: "forecast.horizon",
		},
		{
			name: "window too small",
			content: `
auth:
  jwt_secret: "s3cret"
ingest:
  device_secret: "d3vice"
anomaly:
  window: 1
`,
			wantErr: "anomaly.window",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			t.Setenv("DEVICE_SECRET", "")

			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() error = nil, want validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() error = nil for a missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "auth: [not: a: map")); err == nil {
		t.Error("Load() error = nil for malformed YAML")
	}
}

func TestGetDatabaseDSN(t *testing.T) {
	for _, v := range []string{"DB_USER", "DB_PASSWORD", "DB_HOST", "DB_PORT", "DB_NAME", "DATABASE_DSN"} {
		t.Setenv(v, "")
	}

	t.Run("default", func(t *testing.T) {
		want := "hydrogauge:hydrogauge123@tcp(localhost:3306)/hydrogauge?parseTime=true"
		if got := GetDatabaseDSN(); got != want {
			t.Errorf("GetDatabaseDSN() = %q, want %q", got, want)
		}
	})

	t.Run("explicit dsn", func(t *testing.T) {
		t.Setenv("DATABASE_DSN", "user:pw@tcp(db:3306)/gauge?parseTime=true")
		if got := GetDatabaseDSN(); got != "user:pw@tcp(db:3306)/gauge?parseTime=true" {
			t.Errorf("GetDatabaseDSN() = %q, want DATABASE_DSN value", got)
		}
	})

	t.Run("individual parts win", func(t *testing.T) {
		t.Setenv("DATABASE_DSN", "ignored")
		t.Setenv("DB_USER", "u")
		t.Setenv("DB_PASSWORD", "p")
		t.Setenv("DB_HOST", "h")
		t.Setenv("DB_PORT", "3307")
		t.Setenv("DB_NAME", "d")
		want := "u:p@tcp(h:3307)/d?parseTime=true"
		if got := GetDatabaseDSN(); got != want {
			t.Errorf("GetDatabaseDSN() = %q, want %q", got, want)
		}
	})
}
