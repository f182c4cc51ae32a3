package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hochfrequenz/claude-session-monitor/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	if !cfg.Detection.Enabled {
		t.Error("detection should be enabled by default")
	}
	if cfg.Detection.NoOutputThresholdSeconds != 120 {
		t.Errorf("NoOutputThresholdSeconds = %d, want 120", cfg.Detection.NoOutputThresholdSeconds)
	}
	if cfg.Detection.RepeatedFailureCount != 3 {
		t.Errorf("RepeatedFailureCount = %d, want 3", cfg.Detection.RepeatedFailureCount)
	}
	if cfg.Web.Port != 8085 {
		t.Errorf("Web.Port = %d, want 8085", cfg.Web.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
[monitor]
stream_url = "ws://monitor.internal:9000/api/stream"

[detection]
sensitivity_level = "high"
no_output_threshold_seconds = 90

[web]
port = 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Monitor.StreamURL != "ws://monitor.internal:9000/api/stream" {
		t.Errorf("StreamURL = %q", cfg.Monitor.StreamURL)
	}
	if cfg.Detection.SensitivityLevel != domain.SensitivityHigh {
		t.Errorf("SensitivityLevel = %q, want high", cfg.Detection.SensitivityLevel)
	}
	if cfg.Detection.NoOutputThresholdSeconds != 90 {
		t.Errorf("NoOutputThresholdSeconds = %d, want 90", cfg.Detection.NoOutputThresholdSeconds)
	}
	// Unspecified fields keep defaults.
	if cfg.Detection.RepeatedFailureCount != 3 {
		t.Errorf("RepeatedFailureCount = %d, want default 3", cfg.Detection.RepeatedFailureCount)
	}
	if cfg.Web.Port != 9000 {
		t.Errorf("Web.Port = %d, want 9000", cfg.Web.Port)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Web.Port != 8085 {
		t.Errorf("Web.Port = %d, want default", cfg.Web.Port)
	}
}

func TestLoad_RejectsInvalidDetection(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
[detection]
repeated_failure_count = -2
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("expected validation error for negative failure count")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")

	cfg := Default()
	cfg.Detection.WaitingInputThresholdSeconds = 45
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Detection.WaitingInputThresholdSeconds != 45 {
		t.Errorf("WaitingInputThresholdSeconds = %d, want 45", loaded.Detection.WaitingInputThresholdSeconds)
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := Default().Save(path); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	cfg := Default()
	cfg.Detection.NoOutputThresholdSeconds = 300
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-reloaded:
		if got.Detection.NoOutputThresholdSeconds != 300 {
			t.Errorf("reloaded NoOutputThresholdSeconds = %d, want 300", got.Detection.NoOutputThresholdSeconds)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never fired")
	}
}

func TestWatcher_KeepsPriorOnInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := Default().Save(path); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("[detection]\nrepeated_failure_count = -5\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		t.Errorf("invalid config was applied: %+v", cfg.Detection)
	case <-time.After(1500 * time.Millisecond):
		// Rejected as expected.
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/data/history.db", filepath.Join(home, "data", "history.db")},
		{"/absolute/path.db", "/absolute/path.db"},
		{"relative.db", "relative.db"},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.input); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
