package core

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Session slot backends.
const (
	SessionStoreCookie = "cookie"
	SessionStoreRedis  = "redis"
)

// Logout notification modes.
const (
	LogoutNotifyAsync = "async"
	LogoutNotifyQueue = "queue"
	LogoutNotifyOff   = "off"
)

// DefaultSessionLifetime is how long a login stays valid locally.
const DefaultSessionLifetime = 2 * time.Hour

// Config holds runtime settings for the admin shell, the logout worker and the stub backend.
type Config struct {
	Port              string        `yaml:"port"`                // HTTP listen port for the admin shell
	SessionKey        string        `yaml:"session_key"`         // Cookie signing key
	SessionCookieName string        `yaml:"session_cookie_name"` // Name of the browser-session cookie
	CookieSecure      bool          `yaml:"cookie_secure"`       // Whether to set Secure flag on session cookie
	CookieSameSite    string        `yaml:"cookie_samesite"`     // SameSite policy: Strict/Lax/None
	SessionStore      string        `yaml:"session_store"`       // cookie | redis
	SessionLifetime   time.Duration `yaml:"session_lifetime"`    // expiresAt = login time + lifetime
	LogDir            string        `yaml:"log_dir"`             // Directory to write application logs
	LogLevel          string        `yaml:"log_level"`           // zap level name
	LogEncoding       string        `yaml:"log_encoding"`        // json | console
	AuthBaseURL       string        `yaml:"auth_base_url"`       // Remote authentication endpoint base
	AuthTimeout       time.Duration `yaml:"auth_timeout"`        // Per-call timeout for the remote endpoint
	RedisURL          string        `yaml:"redis_url"`           // Redis URL (redis://host:port/db)
	LogoutNotify      string        `yaml:"logout_notify"`       // async | queue | off
	WorkerConcurrency int           `yaml:"worker_concurrency"`  // logout worker goroutines
	WorkerMaxAttempts int           `yaml:"worker_max_attempts"` // remote logout attempts per job
	LoginPath         string        `yaml:"login_path"`          // where protected routes redirect
	LandingPath       string        `yaml:"landing_path"`        // where public-only routes redirect
	HomePath          string        `yaml:"home_path"`           // public landing page
	AllowedOrigins    []string      `yaml:"allowed_origins"`     // allowed origins for the JSON API

	StubPort         string        `yaml:"stub_port"`          // listen port for cmd/authstub
	StubSecret       string        `yaml:"stub_secret"`        // HS256 key for stub tokens
	StubTokenTTL     time.Duration `yaml:"stub_token_ttl"`     // lifetime of stub tokens
	StubUsername     string        `yaml:"stub_username"`      // bootstrap user
	StubPasswordPath string        `yaml:"stub_password_path"` // where to write the generated password (empty -> log)
}

func defaultConfig() Config {
	return Config{
		Port:              "4200",
		SessionKey:        "change-this-session-key",
		SessionCookieName: "gp_session",
		CookieSameSite:    "Lax",
		SessionStore:      SessionStoreCookie,
		SessionLifetime:   DefaultSessionLifetime,
		LogDir:            "./logs",
		LogLevel:          "info",
		LogEncoding:       "json",
		AuthBaseURL:       "http://localhost:8080",
		AuthTimeout:       10 * time.Second,
		RedisURL:          "redis://localhost:6379/0",
		LogoutNotify:      LogoutNotifyAsync,
		WorkerConcurrency: 2,
		WorkerMaxAttempts: 3,
		LoginPath:         "/login",
		LandingPath:       "/dashboard",
		HomePath:          "/home",
		StubPort:          "8080",
		StubSecret:        "change-this-stub-secret",
		StubTokenTTL:      2 * time.Hour,
		StubUsername:      "admin",
	}
}

// Load builds Config from defaults, then the optional YAML file at path, then environment
// variables (a .env file in the working directory is read first when present).
func Load(path string) (Config, error) {
	_ = godotenv.Load(".env")

	cfg := defaultConfig()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Port = firstNonEmpty(os.Getenv("PORT"), cfg.Port)
	cfg.SessionKey = firstNonEmpty(os.Getenv("SESSION_KEY"), cfg.SessionKey)
	cfg.SessionCookieName = firstNonEmpty(os.Getenv("SESSION_COOKIE_NAME"), cfg.SessionCookieName)
	cfg.CookieSecure = boolFromEnv("COOKIE_SECURE", cfg.CookieSecure)
	cfg.CookieSameSite = firstNonEmpty(os.Getenv("COOKIE_SAMESITE"), cfg.CookieSameSite)
	cfg.SessionStore = strings.ToLower(firstNonEmpty(os.Getenv("SESSION_STORE"), cfg.SessionStore))
	cfg.SessionLifetime = durationFromEnv("SESSION_LIFETIME", cfg.SessionLifetime)
	cfg.LogDir = firstNonEmpty(os.Getenv("LOG_DIR"), cfg.LogDir)
	cfg.LogLevel = firstNonEmpty(os.Getenv("LOG_LEVEL"), cfg.LogLevel)
	cfg.LogEncoding = firstNonEmpty(os.Getenv("LOG_ENCODING"), cfg.LogEncoding)
	cfg.AuthBaseURL = firstNonEmpty(os.Getenv("AUTH_BASE_URL"), os.Getenv("API_URL"), cfg.AuthBaseURL)
	cfg.AuthTimeout = durationFromEnv("AUTH_TIMEOUT", cfg.AuthTimeout)
	cfg.RedisURL = firstNonEmpty(os.Getenv("REDIS_URL"), cfg.RedisURL)
	cfg.LogoutNotify = strings.ToLower(firstNonEmpty(os.Getenv("LOGOUT_NOTIFY"), cfg.LogoutNotify))
	cfg.WorkerConcurrency = intFromEnv("WORKER_CONCURRENCY", cfg.WorkerConcurrency)
	cfg.WorkerMaxAttempts = intFromEnv("WORKER_MAX_ATTEMPTS", cfg.WorkerMaxAttempts)
	cfg.LoginPath = firstNonEmpty(os.Getenv("LOGIN_PATH"), cfg.LoginPath)
	cfg.LandingPath = firstNonEmpty(os.Getenv("LANDING_PATH"), cfg.LandingPath)
	cfg.HomePath = firstNonEmpty(os.Getenv("HOME_PATH"), cfg.HomePath)
	if origins := parseCSV(os.Getenv("ALLOWED_ORIGINS")); len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}

	cfg.StubPort = firstNonEmpty(os.Getenv("STUB_PORT"), cfg.StubPort)
	cfg.StubSecret = firstNonEmpty(os.Getenv("STUB_SECRET"), cfg.StubSecret)
	cfg.StubTokenTTL = durationFromEnv("STUB_TOKEN_TTL", cfg.StubTokenTTL)
	cfg.StubUsername = firstNonEmpty(os.Getenv("STUB_USERNAME"), cfg.StubUsername)
	cfg.StubPasswordPath = firstNonEmpty(os.Getenv("STUB_PASSWORD_PATH"), cfg.StubPasswordPath)
}

// Validate rejects settings the session lifecycle cannot work with.
func (c Config) Validate() error {
	var errs []error
	if c.SessionLifetime <= 0 {
		errs = append(errs, errors.New("session lifetime must be positive"))
	}
	switch c.SessionStore {
	case SessionStoreCookie, SessionStoreRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown session store %q", c.SessionStore))
	}
	switch c.LogoutNotify {
	case LogoutNotifyAsync, LogoutNotifyQueue, LogoutNotifyOff:
	default:
		errs = append(errs, fmt.Errorf("unknown logout notify mode %q", c.LogoutNotify))
	}
	if u, err := url.Parse(c.AuthBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid auth base url %q", c.AuthBaseURL))
	}
	if strings.TrimSpace(c.SessionKey) == "" {
		errs = append(errs, errors.New("session key is empty"))
	}
	if !strings.HasPrefix(c.LoginPath, "/") || !strings.HasPrefix(c.LandingPath, "/") || !strings.HasPrefix(c.HomePath, "/") {
		errs = append(errs, errors.New("login, landing and home paths must be absolute"))
	}
	seen := map[string]string{"/": "root", "/register": "register", "/logout": "logout", "/healthz": "healthz"}
	for _, p := range []struct{ name, path string }{
		{"login", c.LoginPath},
		{"landing", c.LandingPath},
		{"home", c.HomePath},
	} {
		if other, dup := seen[p.path]; dup {
			errs = append(errs, fmt.Errorf("%s path %q collides with %s route", p.name, p.path, other))
			continue
		}
		seen[p.path] = p.name
	}
	return errors.Join(errs...)
}

// NeedsRedis reports whether any configured component talks to Redis.
func (c Config) NeedsRedis() bool {
	return c.SessionStore == SessionStoreRedis || c.LogoutNotify == LogoutNotifyQueue
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// boolFromEnv reads a boolean from env var name, falling back to defaultVal when empty or invalid.
func boolFromEnv(name string, defaultVal bool) bool {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

// intFromEnv reads an int from env var name, falling back to defaultVal when empty or invalid.
func intFromEnv(name string, defaultVal int) int {
	if v := os.Getenv(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

// durationFromEnv accepts Go durations ("90m") or plain seconds ("5400").
func durationFromEnv(name string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

// parseCSV splits comma-separated list and trims spaces; empty entries are skipped.
func parseCSV(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
