package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/Morditux/luxsession"
	"gopkg.in/yaml.v3"
)

// config is the daemon configuration. Durations use Go syntax, e.g. "15m".
type config struct {
	Addr            string   `yaml:"addr"`
	Backend         string   `yaml:"backend"`
	Dir             string   `yaml:"dir"`
	DSN             string   `yaml:"dsn"`
	Servers         []string `yaml:"servers"`
	RedisAddr       string   `yaml:"redis_addr"`
	MaxSessionBytes int      `yaml:"max_session_bytes"`

	Session sessionConfig `yaml:"session"`
	Log     logConfig     `yaml:"log"`
}

type sessionConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	Expiration   time.Duration `yaml:"expiration"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	GCTimer      time.Duration `yaml:"gc_timer"`
	CookieName   string        `yaml:"cookie_name"`
	SecureCookie string        `yaml:"secure_cookie"` // request, always or never
}

type logConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaultConfig() config {
	return config{
		Addr:    ":8080",
		Backend: "memory",
		Session: sessionConfig{
			Timeout:     luxsession.DefaultTimeout,
			Expiration:  luxsession.DefaultExpiration,
			IdleTimeout: luxsession.DefaultIdleTimeout,
			GCTimer:     luxsession.DefaultGCTimer,
			CookieName:  luxsession.DefaultCookieName,
		},
		Log: logConfig{Level: "info", Format: "text"},
	}
}

// loadConfig reads path over the defaults. An empty path yields the defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("config file %s not found", path)
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c sessionConfig) securePolicy() (luxsession.SecurePolicy, error) {
	switch c.SecureCookie {
	case "", "request":
		return luxsession.SecureSameAsRequest, nil
	case "always":
		return luxsession.SecureAlways, nil
	case "never":
		return luxsession.SecureNever, nil
	default:
		return 0, fmt.Errorf("invalid secure_cookie %q", c.SecureCookie)
	}
}
