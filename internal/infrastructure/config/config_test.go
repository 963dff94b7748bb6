package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes a config file to a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const validConfig = `
api:
  host: "127.0.0.1"
  port: 9090
  secret: "test-secret-at-least-16-chars"
sessions:
  auth_dir: "/tmp/wa-auth"
  idle: 30s
  ready_timeout: 20s
media:
  dir: "/tmp/wa-media"
  max_upload_bytes: 1048576
`

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.Sessions.Idle != 30*time.Second {
		t.Errorf("Sessions.Idle = %v, want 30s", cfg.Sessions.Idle)
	}
	if cfg.Sessions.ReadyTimeout != 20*time.Second {
		t.Errorf("Sessions.ReadyTimeout = %v, want 20s", cfg.Sessions.ReadyTimeout)
	}
	if cfg.Media.MaxUploadBytes != 1048576 {
		t.Errorf("Media.MaxUploadBytes = %d, want 1048576", cfg.Media.MaxUploadBytes)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, `
api:
  secret: "test-secret-at-least-16-chars"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.API.Port != 8080 {
		t.Errorf("default API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Sessions.Idle != 5*time.Minute {
		t.Errorf("default Sessions.Idle = %v, want 5m", cfg.Sessions.Idle)
	}
	if cfg.Sessions.ReadyTimeout != 45*time.Second {
		t.Errorf("default Sessions.ReadyTimeout = %v, want 45s", cfg.Sessions.ReadyTimeout)
	}
	if cfg.Media.MaxUploadBytes != 16<<20 {
		t.Errorf("default Media.MaxUploadBytes = %d, want %d", cfg.Media.MaxUploadBytes, 16<<20)
	}
	if cfg.Bridge.Binary != "node" {
		t.Errorf("default Bridge.Binary = %q, want %q", cfg.Bridge.Binary, "node")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Load() with missing file: expected error, got nil")
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	path := writeConfig(t, `
api:
  port: 8080
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() without api.secret: expected error, got nil")
	}
	if !strings.Contains(err.Error(), "api.secret is required") {
		t.Errorf("error = %q, want mention of api.secret", err)
	}
}

func TestLoad_ShortSecret(t *testing.T) {
	path := writeConfig(t, `
api:
  secret: "short"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() with short secret: expected error, got nil")
	}
	if !strings.Contains(err.Error(), "at least 16 characters") {
		t.Errorf("error = %q, want mention of secret length", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, validConfig)

	t.Setenv("WAGATEWAY_API_SECRET", "env-secret-at-least-16-chars")
	t.Setenv("WAGATEWAY_SESSIONS_IDLE_MS", "0")
	t.Setenv("WAGATEWAY_SESSIONS_AUTH_DIR", "/tmp/env-auth")
	t.Setenv("WAGATEWAY_MEDIA_MAX_UPLOAD_BYTES", "2048")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.API.Secret != "env-secret-at-least-16-chars" {
		t.Errorf("API.Secret = %q, want env override", cfg.API.Secret)
	}
	if cfg.Sessions.Idle != 0 {
		t.Errorf("Sessions.Idle = %v, want 0 (IDLE_MS=0)", cfg.Sessions.Idle)
	}
	if cfg.Sessions.AuthDir != "/tmp/env-auth" {
		t.Errorf("Sessions.AuthDir = %q, want env override", cfg.Sessions.AuthDir)
	}
	if cfg.Media.MaxUploadBytes != 2048 {
		t.Errorf("Media.MaxUploadBytes = %d, want 2048", cfg.Media.MaxUploadBytes)
	}
}

func TestValidate_MQTTEnabled(t *testing.T) {
	cfg := defaultConfig()
	cfg.API.Secret = "test-secret-at-least-16-chars"
	cfg.MQTT.Enabled = true
	cfg.MQTT.Broker.Host = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() with enabled MQTT and no host: expected error")
	}
	if !strings.Contains(err.Error(), "mqtt.broker.host") {
		t.Errorf("error = %q, want mention of mqtt.broker.host", err)
	}
}

func TestValidate_InfluxEnabled(t *testing.T) {
	cfg := defaultConfig()
	cfg.API.Secret = "test-secret-at-least-16-chars"
	cfg.Influx.Enabled = true

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() with enabled Influx and no URL: expected error")
	}
	if !strings.Contains(err.Error(), "influx.url") {
		t.Errorf("error = %q, want mention of influx.url", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
api:
  secret: "test-secret-at-least-16-chars"
sessions:
  idle: "five minutes"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() with invalid duration: expected error, got nil")
	}
	if !strings.Contains(err.Error(), "sessions.idle") {
		t.Errorf("error = %q, want mention of sessions.idle", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "api: [not a map")

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() with invalid YAML: expected error, got nil")
	}
}

func TestTimeoutHelpers(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetWriteTimeout(); got != 60*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 60s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 60*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 60s", got)
	}
}
