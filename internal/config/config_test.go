package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := defaults()
	cfg.Printer.Name = "office"
	cfg.Auth.AccessToken = "letmeprint"
	cfg.Auth.JWTSecret = strings.Repeat("k", 32)
	return cfg
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 || cfg.Jobs.Retention != time.Hour || !cfg.Jobs.DefaultTonerSave {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.MaxUploadBytes() != 20<<20 {
		t.Errorf("expected a 20 MB cap, got %d", cfg.MaxUploadBytes())
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "printdesk.yaml")
	content := `
server:
  port: 9090
printer:
  host: cups.internal
  name: office
  max_copies: 5
jobs:
  retention: 30m
  default_toner_save: false
notifications:
  log_path: /var/log/cups/notifications.log
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9090 || cfg.Printer.Host != "cups.internal" || cfg.Printer.MaxCopies != 5 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Jobs.Retention != 30*time.Minute || cfg.Jobs.DefaultTonerSave {
		t.Errorf("unexpected jobs config %+v", cfg.Jobs)
	}
	if cfg.Printer.Port != 631 || cfg.Jobs.SweepInterval != time.Hour {
		t.Error("unset fields should keep their defaults")
	}
	if cfg.Notifications.LogPath != "/var/log/cups/notifications.log" {
		t.Errorf("unexpected log path %q", cfg.Notifications.LogPath)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("server: [port"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PRINTDESK_PORT", "7000")
	t.Setenv("PRINTDESK_PRINTER", "lab")
	t.Setenv("PRINTDESK_RETENTION", "15m")
	t.Setenv("PRINTDESK_DEFAULT_TONER_SAVE", "false")
	t.Setenv("PRINTDESK_MAX_UPLOAD_MB", "50")
	t.Setenv("PRINTDESK_CUPS_PORT", "not-a-number")

	cfg := LoadFromEnv()
	if cfg.Server.Port != 7000 || cfg.Printer.Name != "lab" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Jobs.Retention != 15*time.Minute || cfg.Jobs.DefaultTonerSave || cfg.Jobs.MaxUploadMB != 50 {
		t.Errorf("unexpected jobs config %+v", cfg.Jobs)
	}
	if cfg.Printer.Port != 631 {
		t.Errorf("malformed values should be ignored, got port %d", cfg.Printer.Port)
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"database", func(c *Config) { c.Database.Path = "" }},
		{"printer", func(c *Config) { c.Printer.Name = "" }},
		{"copies", func(c *Config) { c.Printer.MaxCopies = 0 }},
		{"retention", func(c *Config) { c.Jobs.Retention = 0 }},
		{"upload", func(c *Config) { c.Jobs.MaxUploadMB = 0 }},
		{"history", func(c *Config) { c.History.RetentionDays = 0 }},
		{"token", func(c *Config) { c.Auth.AccessToken = "" }},
		{"jwt secret", func(c *Config) { c.Auth.JWTSecret = "short" }},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
