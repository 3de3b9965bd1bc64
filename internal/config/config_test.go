package config

import (
	"os"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Remove(tmpfile.Name()) })

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9091
  host: "127.0.0.1"

sync:
  detectionMaxRetries: 3
  detectionRetryDelay: 250ms
  autoSync: true

auth:
  jwtSecret: "secret"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9091 {
		t.Errorf("Expected port 9091, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected host 127.0.0.1, got %s", cfg.Server.Host)
	}
	if cfg.Sync.DetectionMaxRetries != 3 {
		t.Errorf("Expected 3 detection retries, got %d", cfg.Sync.DetectionMaxRetries)
	}
	if cfg.Sync.DetectionRetryDelay != 250*time.Millisecond {
		t.Errorf("Expected 250ms retry delay, got %v", cfg.Sync.DetectionRetryDelay)
	}
	if !cfg.Sync.AutoSync {
		t.Error("Expected auto sync to be enabled")
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwtSecret: "secret"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Sync.DetectionMaxRetries != 10 {
		t.Errorf("Expected default of 10 detection retries, got %d", cfg.Sync.DetectionMaxRetries)
	}
	if cfg.Sync.DetectionRetryDelay != time.Second {
		t.Errorf("Expected default retry delay of 1s, got %v", cfg.Sync.DetectionRetryDelay)
	}
	if cfg.Sync.SearchLanguage != "ja" {
		t.Errorf("Expected default search language ja, got %s", cfg.Sync.SearchLanguage)
	}
	if cfg.Storage.BucketName != "subtitles" {
		t.Errorf("Expected default bucket subtitles, got %s", cfg.Storage.BucketName)
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
`)

	if _, err := Load(path); err == nil {
		t.Error("Expected error when auth.jwtSecret is missing")
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error when loading nonexistent file")
	}
}
