package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGetConfigPath(t *testing.T) {
	t.Setenv("WAGATEWAY_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("WAGATEWAY_CONFIG", "/etc/wagateway/config.yaml")
	if got := getConfigPath(); got != "/etc/wagateway/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env override", got)
	}
}

func TestRunMissingConfig(t *testing.T) {
	t.Setenv("WAGATEWAY_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	err := run(context.Background())
	if err == nil {
		t.Fatal("run() error = nil, want config load failure")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want config load failure", err)
	}
}

func TestRunStartsAndStops(t *testing.T) {
	dir := t.TempDir()

	configYAML := `
api:
  host: 127.0.0.1
  port: 0
  secret: test-secret-key-0123456789abcdef
sessions:
  auth_dir: ` + filepath.Join(dir, "auth") + `
media:
  dir: ` + filepath.Join(dir, "media") + `
database:
  path: ` + filepath.Join(dir, "gateway.db") + `
logging:
  level: error
  format: text
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("WAGATEWAY_CONFIG", path)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	// Give initialisation a moment, then signal shutdown.
	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v, want clean shutdown", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}
}
