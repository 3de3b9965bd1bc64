package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "JSON format to stdout",
			config: Config{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
			wantErr: false,
		},
		{
			name: "Console format to stderr",
			config: Config{
				Level:  "debug",
				Format: "console",
				Output: "stderr",
			},
			wantErr: false,
		},
		{
			name: "Invalid log level defaults to info",
			config: Config{
				Level:  "invalid",
				Format: "json",
				Output: "stdout",
			},
			wantErr: false,
		},
		{
			name: "Unwritable file path",
			config: Config{
				Level:  "info",
				Format: "json",
				Output: "/nonexistent-dir/subsync.log",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewLogger() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && logger == nil {
				t.Error("Expected non-nil logger")
			}
		})
	}
}

func TestLogSyncEventFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf).WithSession("session-1").WithDomain("hianime.to")

	logger.LogSyncEvent("auto-sync", "resolved", map[string]interface{}{
		"tracks": 2,
	})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to decode log entry: %v", err)
	}

	if entry["session_id"] != "session-1" {
		t.Errorf("Expected session_id session-1, got %v", entry["session_id"])
	}
	if entry["domain"] != "hianime.to" {
		t.Errorf("Expected domain hianime.to, got %v", entry["domain"])
	}
	if entry["event"] != "auto-sync" || entry["state"] != "resolved" {
		t.Errorf("Unexpected event fields: %v", entry)
	}
	if entry["tracks"] != float64(2) {
		t.Errorf("Expected tracks 2, got %v", entry["tracks"])
	}
}

func TestLogRetrievalProgress(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf)

	logger.LogRetrievalProgress("Show - English.vtt", 2, 3, 66)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to decode log entry: %v", err)
	}
	if entry["percent"] != float64(66) {
		t.Errorf("Expected percent 66, got %v", entry["percent"])
	}
}

func TestLoggerWithFields(t *testing.T) {
	logger := Nop()

	if logger.WithField("key", "value") == nil {
		t.Error("Expected non-nil logger from WithField")
	}
	if logger.WithFields(map[string]interface{}{"key1": "value1", "key2": 123}) == nil {
		t.Error("Expected non-nil logger from WithFields")
	}
	if logger.WithRequestID("req-123") == nil {
		t.Error("Expected non-nil logger from WithRequestID")
	}
	if logger.WithTrack("Show - English", "en") == nil {
		t.Error("Expected non-nil logger from WithTrack")
	}
	if logger.WithError(errors.New("boom")) == nil {
		t.Error("Expected non-nil logger from WithError")
	}
}

func TestLogOperations(t *testing.T) {
	logger := Nop()

	logger.LogHTTPRequest("POST", "/api/v1/sessions", "192.168.1.1", 201, 10*time.Millisecond)
	logger.LogDetectionAttempt("miruro.tv", 3, false)
	logger.LogStorageOperation("upload", "subtitles", "session/0.srt", 2048, time.Second, nil)
	logger.LogDatabaseOperation("SELECT", 50*time.Millisecond, errors.New("timeout"))
	// Should not panic
}

func TestNewDefaultLogger(t *testing.T) {
	logger, err := NewDefaultLogger()
	if err != nil {
		t.Errorf("NewDefaultLogger() error = %v", err)
	}
	if logger == nil {
		t.Error("Expected non-nil logger from NewDefaultLogger")
	}
}

func BenchmarkLogWithFields(b *testing.B) {
	logger := Nop()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.WithFields(map[string]interface{}{
			"key1": "value1",
			"key2": 123,
		}).Info("benchmark message")
	}
}
