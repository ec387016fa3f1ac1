package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds client settings for the Haiku+ service.
type Config struct {
	ServerURL string
	UserAgent string

	// ServerClientID is the OAuth client the one-shot code is minted for; the
	// server exchanges it. OAuthClientID/OAuthClientSecret identify this client.
	ServerClientID    string
	OAuthClientID     string
	OAuthClientSecret string
	Issuer            string
	Scopes            []string
	VisibleActions    []string

	PrefsBackend string
	PrefsPath    string

	LogLevel          slog.Level
	RequestTimeout    time.Duration
	MaxRetries        int
	BackoffMultiplier float64
	Workers           int
	PollEvery         time.Duration
}

const (
	defaultConfigPath        = "~/.config/haikuplus/config.toml"
	defaultServerURL         = "http://127.0.0.1:4567"
	defaultUserAgent         = "Haiku+Client-Go"
	defaultIssuer            = "https://accounts.google.com"
	defaultPrefsBackend      = "file"
	defaultRequestTimeout    = 10 * time.Second
	defaultMaxRetries        = 3
	defaultBackoffMultiplier = 2.0
	defaultWorkers           = 4
	defaultPollEvery         = 10 * time.Second
)

var (
	defaultScopes         = []string{"openid", "email", "profile"}
	defaultVisibleActions = []string{
		"http://schemas.google.com/AddActivity",
		"http://schemas.google.com/ReviewActivity",
	}
)

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		ServerURL:         defaultServerURL,
		UserAgent:         defaultUserAgent,
		Issuer:            defaultIssuer,
		Scopes:            append([]string(nil), defaultScopes...),
		VisibleActions:    append([]string(nil), defaultVisibleActions...),
		PrefsBackend:      defaultPrefsBackend,
		LogLevel:          slog.LevelInfo,
		RequestTimeout:    defaultRequestTimeout,
		MaxRetries:        defaultMaxRetries,
		BackoffMultiplier: defaultBackoffMultiplier,
		Workers:           defaultWorkers,
		PollEvery:         defaultPollEvery,
	}
}

// Load reads the config file, falling back to defaults when it is missing,
// then applies HAIKU_SERVER_URL and HAIKU_LOG_LEVEL overrides.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	switch {
	case err == nil:
		defer file.Close()
		if err := cfg.read(file); err != nil {
			return Config{}, err
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("open config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) read(r io.Reader) error {
	bytes, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		ServerURL         string   `toml:"server_url"`
		UserAgent         string   `toml:"user_agent"`
		ServerClientID    string   `toml:"server_client_id"`
		OAuthClientID     string   `toml:"oauth_client_id"`
		OAuthClientSecret string   `toml:"oauth_client_secret"`
		Issuer            string   `toml:"issuer"`
		Scopes            []string `toml:"scopes"`
		VisibleActions    []string `toml:"visible_actions"`
		PrefsBackend      string   `toml:"prefs_backend"`
		PrefsPath         string   `toml:"prefs_path"`
		LogLevel          string   `toml:"log_level"`
		RequestTimeout    string   `toml:"request_timeout"`
		MaxRetries        *int     `toml:"max_retries"`
		BackoffMultiplier float64  `toml:"backoff_multiplier"`
		Workers           int      `toml:"workers"`
		PollSeconds       int      `toml:"poll_seconds"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	setString(&c.ServerURL, raw.ServerURL)
	setString(&c.UserAgent, raw.UserAgent)
	setString(&c.ServerClientID, raw.ServerClientID)
	setString(&c.OAuthClientID, raw.OAuthClientID)
	setString(&c.OAuthClientSecret, raw.OAuthClientSecret)
	setString(&c.Issuer, raw.Issuer)
	setString(&c.PrefsBackend, raw.PrefsBackend)
	if p := strings.TrimSpace(raw.PrefsPath); p != "" {
		c.PrefsPath = mustExpand(p)
	}
	if scopes := trimAll(raw.Scopes); len(scopes) > 0 {
		c.Scopes = scopes
	}
	if actions := trimAll(raw.VisibleActions); len(actions) > 0 {
		c.VisibleActions = actions
	}

	if lvl := strings.TrimSpace(raw.LogLevel); lvl != "" {
		level, err := parseLevel(lvl)
		if err != nil {
			return err
		}
		c.LogLevel = level
	}
	if timeout := strings.TrimSpace(raw.RequestTimeout); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil || d <= 0 {
			return fmt.Errorf("parse config: invalid request_timeout %q", raw.RequestTimeout)
		}
		c.RequestTimeout = d
	}
	if raw.MaxRetries != nil {
		if *raw.MaxRetries < 0 {
			return fmt.Errorf("parse config: max_retries must be >= 0")
		}
		c.MaxRetries = *raw.MaxRetries
	}
	if raw.BackoffMultiplier > 0 {
		c.BackoffMultiplier = raw.BackoffMultiplier
	}
	if raw.Workers > 0 {
		c.Workers = raw.Workers
	}
	if raw.PollSeconds > 0 {
		c.PollEvery = time.Duration(raw.PollSeconds) * time.Second
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv("HAIKU_SERVER_URL")); v != "" {
		c.ServerURL = v
	}
	if v := strings.TrimSpace(os.Getenv("HAIKU_LOG_LEVEL")); v != "" {
		level, err := parseLevel(v)
		if err != nil {
			return err
		}
		c.LogLevel = level
	}
	return nil
}

func parseLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(value)))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", value)
	}
	return level, nil
}

func setString(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = v
	}
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
