package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestResolveEnvVars(t *testing.T) {
	os.Setenv("FABLE_TEST_KEY", "sk-12345")
	os.Setenv("FABLE_TEST_OTHER", "xyz")
	defer os.Unsetenv("FABLE_TEST_KEY")
	defer os.Unsetenv("FABLE_TEST_OTHER")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"no vars", "plain-value", "plain-value"},
		{"single var", "${FABLE_TEST_KEY}", "sk-12345"},
		{"embedded var", "Bearer ${FABLE_TEST_KEY}", "Bearer sk-12345"},
		{"multiple vars", "${FABLE_TEST_KEY}:${FABLE_TEST_OTHER}", "sk-12345:xyz"},
		{"unset var resolves empty", "${FABLE_TEST_UNSET_VAR}", ""},
		{"bare dollar untouched", "$FABLE_TEST_KEY", "$FABLE_TEST_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveEnvVars(tt.input); got != tt.want {
				t.Errorf("ResolveEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != "8080" {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Generation.RetryAttempts != 3 {
		t.Fatalf("unexpected retry attempts: %d", cfg.Generation.RetryAttempts)
	}
	if cfg.Generation.RetryDelay != 2*time.Second || cfg.Generation.BatchPause != 500*time.Millisecond {
		t.Fatalf("unexpected batch tunables: %+v", cfg.Generation)
	}
	if cfg.Audio.RequestTimeout != 12*time.Minute {
		t.Fatalf("unexpected narration timeout: %s", cfg.Audio.RequestTimeout)
	}
	if !strings.Contains(cfg.Generation.APIKey, "${") {
		t.Fatal("default api key should reference an environment variable")
	}
	if cfg.Redis.Enabled {
		t.Fatal("redis must be opt-in")
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	content := string(data)

	if !strings.HasPrefix(content, "# Fable configuration") {
		t.Fatal("expected commented header")
	}
	for _, want := range []string{"server:", "generation:", "audio:", "redis:", "${FABLE_API_KEY}"} {
		if !strings.Contains(content, want) {
			t.Fatalf("written config missing %q:\n%s", want, content)
		}
	}
}
