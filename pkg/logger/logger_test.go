package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantDebug bool
	}{
		{name: "debug level passes debug", level: "debug", wantDebug: true},
		{name: "info level drops debug", level: "info", wantDebug: false},
		{name: "unknown level defaults to info", level: "bogus", wantDebug: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "grimoire.log")
			log, err := New(Config{Level: tt.level, Output: path, Component: "test"})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			log.Debug("debug message")
			log.Info("info message")

			data, err := readFile(path)
			if err != nil {
				t.Fatalf("reading log output: %v", err)
			}

			if got := strings.Contains(data, "debug message"); got != tt.wantDebug {
				t.Errorf("debug message present = %v, want %v", got, tt.wantDebug)
			}
			if !strings.Contains(data, "info message") {
				t.Error("info message missing from output")
			}
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grimoire.log")
	log, err := New(Config{Format: "json", Output: path, Component: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	log.Info("hello")

	data, err := readFile(path)
	if err != nil {
		t.Fatalf("reading log output: %v", err)
	}
	if !strings.Contains(data, `"component":"test"`) {
		t.Errorf("JSON output missing component attribute: %s", data)
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "root")

	sub := log.WithComponent("errhandler")
	sub.Info("scoped message")

	if sub.Component() != "errhandler" {
		t.Errorf("Component() = %q, want %q", sub.Component(), "errhandler")
	}
	if !strings.Contains(buf.String(), "component=errhandler") {
		t.Errorf("output missing overridden component: %s", buf.String())
	}
}

func TestErrorEvent(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "test")

	log.ErrorEvent("operation failed", errors.New("boom"), "op", "render")

	out := buf.String()
	if !strings.Contains(out, "boom") {
		t.Errorf("output missing error text: %s", out)
	}
	if !strings.Contains(out, "op=render") {
		t.Errorf("output missing extra attribute: %s", out)
	}
}

func TestGlobal_UninitializedFallback(t *testing.T) {
	// Must not panic even before Initialize is called.
	Global().Info("fallback logger works")
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
