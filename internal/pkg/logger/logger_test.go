package logger

import (
	"sync"
	"testing"

	"go.uber.org/zap/zapcore"
)

func resetLogger() {
	global = nil
	once = sync.Once{}
}

func TestInit(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		wantLevel zapcore.Level
		wantErr   bool
	}{
		{"json info", "info", "json", zapcore.InfoLevel, false},
		{"console debug", "debug", "console", zapcore.DebugLevel, false},
		{"auto warn", "warn", "auto", zapcore.WarnLevel, false},
		{"invalid level", "loud", "json", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetLogger()
			err := Init(tt.level, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Init(%q, %q) error = %v, wantErr %v", tt.level, tt.format, err, tt.wantErr)
			}
			if !tt.wantErr && GetLevel() != tt.wantLevel {
				t.Errorf("GetLevel() = %v, want %v", GetLevel(), tt.wantLevel)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	resetLogger()
	if err := Init("info", "json"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel(debug) error = %v", err)
	}
	if GetLevel() != zapcore.DebugLevel {
		t.Errorf("GetLevel() = %v, want debug", GetLevel())
	}
	if err := SetLevel("bogus"); err == nil {
		t.Error("SetLevel(bogus) should fail")
	}
	if HTTPHandler().Level() != zapcore.DebugLevel {
		t.Errorf("HTTPHandler().Level() = %v, want debug", HTTPHandler().Level())
	}
}

func TestL_NopBeforeInit(t *testing.T) {
	resetLogger()

	// Must not panic.
	Info("before init")
	With().Debug("child before init")
	if err := Sync(); err != nil {
		t.Errorf("Sync() before init error = %v", err)
	}
}

func TestResolveFormat(t *testing.T) {
	if got := resolveFormat("json"); got != "json" {
		t.Errorf("resolveFormat(json) = %q", got)
	}
	if got := resolveFormat("auto"); got != "json" && got != "console" {
		t.Errorf("resolveFormat(auto) = %q", got)
	}
}
