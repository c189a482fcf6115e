package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"
)

const (
	DefaultEndpoint   = "http://localhost:4040/api/v1/calls"
	DefaultListenAddr = ":8081"
	DefaultPath       = "config.json"
)

// Config holds the settings for the form server and the CLI client.
type Config struct {
	Endpoint        string `json:"endpoint"`
	ListenAddr      string `json:"listenAddr"`
	SessionSecret   string `json:"sessionSecret"`
	RequestTimeout  string `json:"requestTimeout"`
	RedisAddr       string `json:"redisAddr"`
	RedisPassword   string `json:"redisPassword"`
	NotificationTTL string `json:"notificationTTL"`
	FormIdleTimeout string `json:"formIdleTimeout"`
	LogFile         string `json:"logFile"`
	TLSCert         string `json:"tlsCert"`
	TLSKey          string `json:"tlsKey"`
}

func Default() Config {
	return Config{
		Endpoint:        DefaultEndpoint,
		ListenAddr:      DefaultListenAddr,
		NotificationTTL: "24h",
		FormIdleTimeout: "30m",
	}
}

// Load reads path over the defaults, then applies CALLFORM_* environment
// overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("open config: %w", err)
		default:
			defer f.Close()
			if err := json.NewDecoder(f).Decode(&cfg); err != nil {
				return cfg, fmt.Errorf("decode config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Endpoint = getEnv("CALLFORM_ENDPOINT", c.Endpoint)
	c.ListenAddr = getEnv("CALLFORM_LISTEN_ADDR", c.ListenAddr)
	c.SessionSecret = getEnv("CALLFORM_SESSION_SECRET", c.SessionSecret)
	c.RequestTimeout = getEnv("CALLFORM_REQUEST_TIMEOUT", c.RequestTimeout)
	c.RedisAddr = getEnv("CALLFORM_REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("CALLFORM_REDIS_PASSWORD", c.RedisPassword)
	c.NotificationTTL = getEnv("CALLFORM_NOTIFICATION_TTL", c.NotificationTTL)
	c.FormIdleTimeout = getEnv("CALLFORM_FORM_IDLE_TIMEOUT", c.FormIdleTimeout)
	c.LogFile = getEnv("CALLFORM_LOG_FILE", c.LogFile)
	c.TLSCert = getEnv("CALLFORM_TLS_CERT", c.TLSCert)
	c.TLSKey = getEnv("CALLFORM_TLS_KEY", c.TLSKey)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// Validate checks the endpoint and every duration field.
func (c Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: endpoint must be an absolute http(s) URL, got %q", c.Endpoint)
	}
	for name, v := range map[string]string{
		"requestTimeout":  c.RequestTimeout,
		"notificationTTL": c.NotificationTTL,
		"formIdleTimeout": c.FormIdleTimeout,
	} {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("config: tlsCert and tlsKey must be set together")
	}
	return nil
}

func parseDuration(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", v)
	}
	return d, nil
}

// Timeout returns the per-request timeout; zero means none.
func (c Config) Timeout() time.Duration {
	d, _ := parseDuration(c.RequestTimeout)
	return d
}

func (c Config) TTL() time.Duration {
	d, _ := parseDuration(c.NotificationTTL)
	return d
}

func (c Config) IdleTimeout() time.Duration {
	d, _ := parseDuration(c.FormIdleTimeout)
	return d
}
