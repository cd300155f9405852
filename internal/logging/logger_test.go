package logging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger(Options{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := NewLogger(Options{Level: "debug", File: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Debug("written to file", zap.String("component", "test"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") || !strings.Contains(string(data), `"timestamp"`) {
		t.Fatalf("unexpected log file contents: %s", data)
	}
}

func TestWithOperation(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	WithOperation(zap.New(core), "usecase.validate_image", "req-1").Info("done")
	WithOperation(zap.New(core), "usecase.metrics", "").Info("done")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	first := entries[0].ContextMap()
	if first["operation"] != "usecase.validate_image" || first["request_id"] != "req-1" {
		t.Fatalf("unexpected fields: %v", first)
	}
	if _, ok := entries[1].ContextMap()["request_id"]; ok {
		t.Fatal("request_id should be omitted when empty")
	}
}

func TestOperationError(t *testing.T) {
	base := errors.New("boom")
	err := NewOperationError("repository.save_log", "req-9", base)
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped error to match base")
	}
	if err.Error() != "repository.save_log (request_id=req-9): boom" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	if NewOperationError("noop", "", nil) != nil {
		t.Fatal("nil error should stay nil")
	}
}
