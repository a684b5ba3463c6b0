package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidateListen(t *testing.T) {
	tests := []struct {
		listen  string
		wantErr bool
	}{
		{":8000", false},
		{"0.0.0.0:8080", false},
		{"localhost:1", false},
		{"", true},
		{"8000", true},
		{"host:", true},
		{":abc", true},
		{":0", true},
		{":65536", true},
	}

	for _, tt := range tests {
		t.Run(tt.listen, func(t *testing.T) {
			err := validateListen(tt.listen)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateListen(%q) error = %v, wantErr %v", tt.listen, err, tt.wantErr)
			}
		})
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shellsorter.yaml")
	yaml := `api:
  listen: ":9000"
webui:
  listen: ""
cameras:
  controller_hostname: sorter.local
  default_hostname: cam7.local
  warmup: 500ms
  max_read_failures: 3
user_config: /tmp/cams.json
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	if err := loadYAML(cfg, path); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Listen != ":9000" {
		t.Errorf("Listen = %q", cfg.Server.Listen)
	}
	if cfg.Server.WebUIListen != "" {
		t.Errorf("WebUIListen = %q, want disabled", cfg.Server.WebUIListen)
	}
	if cfg.Camera.ControllerHostname != "sorter.local" || cfg.Camera.DefaultHostname != "cam7.local" {
		t.Errorf("hostnames = %q, %q", cfg.Camera.ControllerHostname, cfg.Camera.DefaultHostname)
	}
	if cfg.Camera.Warmup != 500*time.Millisecond {
		t.Errorf("Warmup = %v", cfg.Camera.Warmup)
	}
	if cfg.Camera.MaxReadFailures != 3 {
		t.Errorf("MaxReadFailures = %d", cfg.Camera.MaxReadFailures)
	}
	if cfg.UserConfig.Path != "/tmp/cams.json" {
		t.Errorf("UserConfig.Path = %q", cfg.UserConfig.Path)
	}
	if cfg.Camera.StreamPath != "/camera" {
		t.Errorf("StreamPath = %q, want default kept", cfg.Camera.StreamPath)
	}
}

func TestLoadYAMLErrors(t *testing.T) {
	dir := t.TempDir()

	if err := loadYAML(Default(), filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("cameras:\n  warmup: soon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := loadYAML(Default(), bad); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("SHELLSORTER_CONFIG_FILE", filepath.Join(t.TempDir(), "none.yaml"))
	t.Setenv("SHELLSORTER_API_LISTEN", "not-an-address")
	t.Setenv("SHELLSORTER_WEBUI_LISTEN", ":7070")
	t.Setenv("SHELLSORTER_CONFIG_PATH", "/data/cams.json")

	cfg := Load()
	if cfg.Server.Listen != ":8000" {
		t.Errorf("Listen = %q, want fallback :8000", cfg.Server.Listen)
	}
	if cfg.Server.WebUIListen != ":7070" {
		t.Errorf("WebUIListen = %q", cfg.Server.WebUIListen)
	}
	if cfg.UserConfig.Path != "/data/cams.json" {
		t.Errorf("UserConfig.Path = %q", cfg.UserConfig.Path)
	}
}

func TestSetupLogger(t *testing.T) {
	for _, format := range []string{"text", "json"} {
		cfg := Default()
		cfg.Logger.Format = format
		cfg.Logger.Level = "debug"
		if cfg.SetupLogger() == nil {
			t.Errorf("SetupLogger(%s) returned nil", format)
		}
	}
}
