package internal

import (
	"strings"
	"testing"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestAudioConfig_FillsPlatformDefaults(t *testing.T) {
	cfg := AudioConfig{RecordingsDir: "./rec"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("audio config should pass: %v", err)
	}
	if cfg.Format == "" {
		t.Error("format should be defaulted")
	}
	if cfg.Device == "" {
		t.Error("device should be defaulted")
	}
}

func TestAudioConfig_KeepsExplicitValues(t *testing.T) {
	cfg := AudioConfig{RecordingsDir: "./rec", Format: "pulse", Device: "mic2"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("audio config should pass: %v", err)
	}
	if cfg.Format != "pulse" || cfg.Device != "mic2" {
		t.Errorf("explicit values overwritten: %+v", cfg)
	}
}

func TestAudioConfig_MissingRecordingsDir(t *testing.T) {
	cfg := AudioConfig{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing recordings_dir should fail")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfigValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}
