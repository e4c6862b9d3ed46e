package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "councild.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
listen:
  address: 127.0.0.1
  port: 8080
gemini:
  api_key: k
  model: gemini-2.0-flash
snapshot:
  debounce_seconds: 2
log_level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen.Address != "127.0.0.1" || cfg.Listen.Port != 8080 {
		t.Errorf("listen = %+v", cfg.Listen)
	}
	if cfg.Gemini.Model != "gemini-2.0-flash" {
		t.Errorf("model = %q", cfg.Gemini.Model)
	}
	if cfg.Snapshot.DebounceSeconds != 2 {
		t.Errorf("debounce = %d", cfg.Snapshot.DebounceSeconds)
	}
	// Untouched fields keep defaults.
	if cfg.DataDir != "data" {
		t.Errorf("data_dir = %q, want default", cfg.DataDir)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("COUNCILD_TEST_KEY", "secret-from-env")
	path := writeConfig(t, "gemini:\n  api_key: ${COUNCILD_TEST_KEY}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gemini.APIKey != "secret-from-env" {
		t.Errorf("api_key = %q", cfg.Gemini.APIKey)
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	if _, err := FindConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing explicit config accepted")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Listen.Port != 3001 {
		t.Errorf("port = %d", cfg.Listen.Port)
	}
	if cfg.Gemini.Model != "gemini-2.5-pro" {
		t.Errorf("model = %q", cfg.Gemini.Model)
	}
	if cfg.Snapshot.DebounceSeconds != 5 {
		t.Errorf("debounce = %d", cfg.Snapshot.DebounceSeconds)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults with mock", func(c *Config) { c.Gemini.Mock = true }, false},
		{"defaults with key", func(c *Config) { c.Gemini.APIKey = "k" }, false},
		{"missing key without mock", func(c *Config) {}, true},
		{"bad port", func(c *Config) { c.Gemini.Mock = true; c.Listen.Port = 0 }, true},
		{"negative debounce", func(c *Config) { c.Gemini.Mock = true; c.Snapshot.DebounceSeconds = -1 }, true},
		{"bad log level", func(c *Config) { c.Gemini.Mock = true; c.LogLevel = "loud" }, true},
		{"trace log level", func(c *Config) { c.Gemini.Mock = true; c.LogLevel = "trace" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"TRACE", LevelTrace},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if err != nil {
			t.Errorf("ParseLogLevel(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseLogLevel("loud"); err == nil {
		t.Error("unknown level accepted")
	}
}

func TestReplaceLogLevelNames(t *testing.T) {
	attr := slog.Any(slog.LevelKey, LevelTrace)
	got := ReplaceLogLevelNames(nil, attr)
	if got.Value.String() != "TRACE" {
		t.Errorf("trace renders as %q", got.Value.String())
	}

	info := slog.Any(slog.LevelKey, slog.LevelInfo)
	if got := ReplaceLogLevelNames(nil, info); got.Value.String() != "INFO" {
		t.Errorf("info renders as %q", got.Value.String())
	}
}
