package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	if config.Server.Port != 8571 {
		t.Errorf("default port = %d, want 8571", config.Server.Port)
	}
	if config.Auth.LoginPollAttempts != 30 {
		t.Errorf("default login poll attempts = %d, want 30", config.Auth.LoginPollAttempts)
	}
	if config.Auth.LoginPollInterval != 10*time.Second {
		t.Errorf("default login poll interval = %v, want 10s", config.Auth.LoginPollInterval)
	}
	if config.Refresh.Schedule == "" {
		t.Error("default refresh schedule is empty")
	}

	if err := config.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestLoadFromFilesOverride(t *testing.T) {
	dir := t.TempDir()

	base := filepath.Join(dir, "base.toml")
	if err := os.WriteFile(base, []byte("[server]\nport = 9000\nhost = \"0.0.0.0\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	override := filepath.Join(dir, "override.toml")
	if err := os.WriteFile(override, []byte("[server]\nport = 9001\nhost = \"0.0.0.0\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadFromFiles(base, override)
	if err != nil {
		t.Fatalf("LoadFromFiles() error: %v", err)
	}

	if config.Server.Port != 9001 {
		t.Errorf("port = %d, want 9001 (later file wins)", config.Server.Port)
	}
	if config.Server.Host != "0.0.0.0" {
		t.Errorf("host = %s, want 0.0.0.0", config.Server.Host)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ADWATCH_SERVER_PORT", "7777")
	t.Setenv("ADWATCH_COOKIE_DOMAIN", "api.other.example")

	config, err := LoadFromFiles()
	if err != nil {
		t.Fatalf("LoadFromFiles() error: %v", err)
	}

	if config.Server.Port != 7777 {
		t.Errorf("port = %d, want 7777 from env", config.Server.Port)
	}
	if config.Platform.CookieDomain != "api.other.example" {
		t.Errorf("cookie domain = %s, want env override", config.Platform.CookieDomain)
	}
}

func TestValidateRejectsBadSchedule(t *testing.T) {
	config := NewDefaultConfig()
	config.Refresh.Schedule = "not a cron expression"

	if err := config.Validate(); err == nil {
		t.Error("Validate() accepted an invalid cron schedule")
	}
}

func TestValidateRejectsZeroPollAttempts(t *testing.T) {
	config := NewDefaultConfig()
	config.Auth.LoginPollAttempts = 0

	if err := config.Validate(); err == nil {
		t.Error("Validate() accepted zero login poll attempts")
	}
}
