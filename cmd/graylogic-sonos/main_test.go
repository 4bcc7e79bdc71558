package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("GRAYLOGIC_CONFIG", path)
}

// freePort returns a TCP port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_MissingDatabasePath(t *testing.T) {
	writeConfig(t, `
database:
  path: ""
mqtt:
  enabled: false
logging:
  level: error
  format: text
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

func TestRun_BrokerUnavailable(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, fmt.Sprintf(`
sonos:
  discovery_timeout: 0
  media_dir: %q
  events:
    port: %d
database:
  path: %q
mqtt:
  enabled: true
  broker:
    host: "127.0.0.1"
    port: 19999
    client_id: "test-client"
api:
  enabled: false
logging:
  level: error
  format: text
`, filepath.Join(dir, "media"), freePort(t), filepath.Join(dir, "test.db")))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail when the broker is unreachable")
	}
}

// TestRun_StartupAndShutdown runs without MQTT or saved speakers and
// shuts down when the context ends.
func TestRun_StartupAndShutdown(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, fmt.Sprintf(`
sonos:
  discovery_timeout: 0
  media_dir: %q
  events:
    port: %d
database:
  path: %q
mqtt:
  enabled: false
api:
  host: "127.0.0.1"
  port: %d
logging:
  level: error
  format: text
`, filepath.Join(dir, "media"), freePort(t), filepath.Join(dir, "test.db"), freePort(t)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "test.db")); err != nil {
		t.Errorf("database not created: %v", err)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("GRAYLOGIC_CONFIG", "/custom/path/config.yaml")
	if got := getConfigPath(); got != "/custom/path/config.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}
}
