package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hl8/hl8-go-pkg/isolation"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"empty", Config{}, false},
		{"debug json", Config{Level: "debug", Format: "json"}, false},
		{"warn console", Config{Level: "warn", Format: "console"}, false},
		{"bad level", Config{Level: "verbose"}, true},
		{"bad format", Config{Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateConfig(%+v) err = %v, wantErr = %v", tt.cfg, err, tt.wantErr)
			}
		})
	}
}

func TestNewLoggerStdout(t *testing.T) {
	log := NewLogger(Config{Level: "debug", Format: "console"})
	if log == nil || log.Logger == nil {
		t.Fatal("NewLogger returned nil")
	}
	log.Debug("stdout smoke test")
}

func TestNewLoggerInvalidLevelFallsBack(t *testing.T) {
	log := NewLogger(Config{Level: "not-a-level"})
	if log == nil {
		t.Fatal("NewLogger returned nil")
	}
	// info 级别可用说明回落成功
	log.Info("fallback smoke test")
}

func TestNewLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	log := NewLogger(Config{Level: "info", Format: "json", Output: path})
	log.Info("write to file")
	if err := log.Sync(); err != nil {
		t.Logf("sync: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("log file is empty")
	}
}

func TestWithIsolationAddsFields(t *testing.T) {
	core, recorded := observer.New(zap.DebugLevel)
	log := &Logger{Logger: zap.New(core)}

	ic, err := isolation.Organization("tenant-1", "org-1")
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	ctx := isolation.WithContext(context.Background(), ic)

	log.WithIsolation(ctx).Info("scoped entry")

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("recorded %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["tenant_id"] != "tenant-1" {
		t.Errorf("tenant_id = %v, want tenant-1", fields["tenant_id"])
	}
	if fields["organization_id"] != "org-1" {
		t.Errorf("organization_id = %v, want org-1", fields["organization_id"])
	}
	if _, ok := fields["department_id"]; ok {
		t.Error("department_id should be absent for organization-level context")
	}
}

func TestWithIsolationNoContext(t *testing.T) {
	core, recorded := observer.New(zap.DebugLevel)
	log := &Logger{Logger: zap.New(core)}

	log.WithIsolation(context.Background()).Info("plain entry")

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("recorded %d entries, want 1", len(entries))
	}
	if len(entries[0].Context) != 0 {
		t.Errorf("expected no context fields, got %v", entries[0].ContextMap())
	}
}
