package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"

	// Development defaults. They are insecure and a warning is logged when
	// they are in effect in prod.
	defaultDatabaseURL = "journal.db"
	defaultUsername    = "admin"
	defaultPassword    = "secret"
	defaultSecret      = "itsaseekrit"
)

type Config struct {
	Env           string
	DatabaseURL   string
	Addr          string
	Username      string
	PasswordHash  string
	Secret        string
	SessionTTL    time.Duration
	SecureCookies bool
	Testing       bool
	LogLevel      string

	// Names of settings still on their development default.
	Defaulted []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", EnvLocal)
	v.SetDefault("database_url", defaultDatabaseURL)
	v.SetDefault("addr", ":8080")
	v.SetDefault("auth_username", defaultUsername)
	v.SetDefault("journal_auth_secret", defaultSecret)
	v.SetDefault("session_ttl", "24h")
	v.SetDefault("secure_cookies", false)
	v.SetDefault("testing", false)
}

// loadConfig reads settings from v (environment, flags, defaults). It hashes
// AUTH_PASSWORD once when it is given in plaintext.
func loadConfig(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Env:           v.GetString("app_env"),
		DatabaseURL:   v.GetString("database_url"),
		Addr:          v.GetString("addr"),
		Username:      v.GetString("auth_username"),
		Secret:        v.GetString("journal_auth_secret"),
		SecureCookies: v.GetBool("secure_cookies"),
		Testing:       v.GetBool("testing"),
		LogLevel:      v.GetString("log_level"),
	}

	switch cfg.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return nil, validationError("unknown APP_ENV %q", cfg.Env)
	}

	if port := v.GetString("port"); port != "" {
		cfg.Addr = ":" + port
	}

	ttl, err := time.ParseDuration(v.GetString("session_ttl"))
	if err != nil || ttl <= 0 {
		return nil, validationError("invalid SESSION_TTL %q", v.GetString("session_ttl"))
	}
	cfg.SessionTTL = ttl

	if cfg.Username == "" {
		return nil, validationError("AUTH_USERNAME must not be empty")
	}
	if cfg.Secret == "" {
		return nil, validationError("JOURNAL_AUTH_SECRET must not be empty")
	}
	if cfg.Secret == defaultSecret {
		cfg.Defaulted = append(cfg.Defaulted, "JOURNAL_AUTH_SECRET")
	}

	password := v.GetString("auth_password")
	switch {
	case password == "":
		password = defaultPassword
		cfg.Defaulted = append(cfg.Defaulted, "AUTH_PASSWORD")
		fallthrough
	case !isPasswordHash(password):
		hash, err := encodePassword(password)
		if err != nil {
			return nil, fmt.Errorf("hashing AUTH_PASSWORD: %w", err)
		}
		cfg.PasswordHash = hash
	default:
		cfg.PasswordHash = password
	}

	if cfg.Testing {
		cfg.DatabaseURL = memoryDatabase
	}

	return cfg, nil
}

func (c *Config) Principal() Principal {
	return Principal{Username: c.Username, PasswordHash: c.PasswordHash}
}
