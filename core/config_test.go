package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configEnvVars = []string{
	"CONFIG_FILE", "PORT", "SESSION_KEY", "SESSION_STORE", "SESSION_LIFETIME", "AUTH_BASE_URL", "API_URL",
	"AUTH_TIMEOUT", "LOGOUT_NOTIFY", "LOGIN_PATH", "LANDING_PATH", "HOME_PATH", "ALLOWED_ORIGINS", "COOKIE_SECURE",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, name := range configEnvVars {
		t.Setenv(name, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SessionLifetime != 2*time.Hour || cfg.LoginPath != "/login" || cfg.LandingPath != "/dashboard" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.SessionStore != SessionStoreCookie || cfg.LogoutNotify != LogoutNotifyAsync || cfg.NeedsRedis() {
		t.Fatalf("unexpected backends %+v", cfg)
	}
}

func TestLoadPrecedence(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := strings.Join([]string{
		`port: "9000"`,
		`session_lifetime: 90m`,
		`auth_base_url: http://auth.internal:8080`,
		`logout_notify: queue`,
		`allowed_origins: ["https://admin.example"]`,
	}, "\n")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("PORT", "9100")
	t.Setenv("SESSION_LIFETIME", "1800")
	t.Setenv("COOKIE_SECURE", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9100" {
		t.Fatalf("env should override yaml port, got %s", cfg.Port)
	}
	if cfg.SessionLifetime != 30*time.Minute {
		t.Fatalf("plain seconds lifetime not parsed: %v", cfg.SessionLifetime)
	}
	if cfg.AuthBaseURL != "http://auth.internal:8080" || cfg.LogoutNotify != LogoutNotifyQueue || !cfg.NeedsRedis() {
		t.Fatalf("yaml values lost: %+v", cfg)
	}
	if !cfg.CookieSecure || len(cfg.AllowedOrigins) != 1 {
		t.Fatalf("unexpected cookie/origin settings %+v", cfg)
	}
}

func TestLoadFromConfigFileEnv(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("home_path: /inicio\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HomePath != "/inicio" {
		t.Fatalf("CONFIG_FILE not honoured: %s", cfg.HomePath)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SESSION_STORE", "sqlite")
	t.Setenv("AUTH_BASE_URL", "not a url")
	t.Setenv("LOGIN_PATH", "login")

	_, err := Load("")
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"sqlite", "auth base url", "absolute"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %q", err, want)
		}
	}
}

func TestValidateLifetime(t *testing.T) {
	cfg := testConfig()
	cfg.SessionLifetime = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("zero lifetime accepted")
	}
}

func TestParseCSV(t *testing.T) {
	got := parseCSV(" a, ,b ,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected %v", got)
	}
}

func TestValidateRejectsCollidingPaths(t *testing.T) {
	cases := map[string]func(*Config){
		"home at root":        func(c *Config) { c.HomePath = "/" },
		"landing equals home": func(c *Config) { c.LandingPath = c.HomePath },
		"login equals home":   func(c *Config) { c.LoginPath = c.HomePath },
		"landing on register": func(c *Config) { c.LandingPath = "/register" },
	}
	for name, mutate := range cases {
		cfg := testConfig()
		mutate(&cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "collides") {
			t.Fatalf("%s: expected collision error, got %v", name, err)
		}
	}
	if err := testConfig().Validate(); err != nil {
		t.Fatalf("default paths rejected: %v", err)
	}
}
