package internal

import (
	"strings"
	"testing"
	"time"
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

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Auth = AuthConfig{Mode: AuthModeDisabled}
	cfg.AI.APIKey = "test-key"
	return cfg
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("default config with api key should pass: %v", err)
	}
}

func TestAIConfig_MissingKey(t *testing.T) {
	cfg := validConfig()
	cfg.AI.APIKey = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "HIBI_AI_API_KEY") {
		t.Fatalf("err = %v, want api key error", err)
	}
}

func TestAIConfig_MaxDelayBelowBase(t *testing.T) {
	cfg := validConfig()
	cfg.AI.MaxDelay = time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatal("max_delay below base_delay should fail")
	}
}

func TestApplicationConfig_Timezone(t *testing.T) {
	cfg := validConfig()
	cfg.App.Timezone = "Asia/Tokyo"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Asia/Tokyo should pass: %v", err)
	}
	if got := cfg.App.Location().String(); got != "Asia/Tokyo" {
		t.Errorf("location = %q", got)
	}

	cfg.App.Timezone = "Mars/Olympus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown timezone should fail")
	}
}

func TestNotesConfig_RejectsEscapingDirs(t *testing.T) {
	for _, dir := range []string{"../memos", "/abs", ""} {
		cfg := validConfig()
		cfg.Notes.TopicDir = dir
		if err := cfg.Validate(); err == nil {
			t.Errorf("topic_dir %q should fail", dir)
		}
	}
}

func TestRollupConfig_Schedule(t *testing.T) {
	cfg := validConfig()
	cfg.Rollup.At = "25:00"
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid schedule should fail")
	}

	cfg.Rollup.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Fatalf("schedule is ignored when disabled: %v", err)
	}
}

func TestSelectionConfig_ZeroTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Selection.IdleTimeout = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero idle_timeout should fail")
	}
}
