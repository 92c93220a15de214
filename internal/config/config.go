package config

import (
	"fmt"
	"time"
)

// Config represents the server configuration
type Config struct {
	Server      ServerConfig   `yaml:"server"`
	Database    DatabaseConfig `yaml:"database"`
	Auth        AuthConfig     `yaml:"auth"`
	Environment string         `yaml:"environment"` // local, dev, prod
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"` // 0 disables the metrics listener
	ClientURL   string `yaml:"client_url"`   // web client base URL for post-login redirects
	NodeID      int64  `yaml:"node_id"`      // ID-generator node, unique per replica (0-1023)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific configuration
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"` // disable, require, verify-ca, verify-full
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Google    GoogleConfig   `yaml:"google"`
	Session   SessionConfig  `yaml:"session"`
	AuthCodes AuthCodeConfig `yaml:"auth_codes"`
}

// GoogleConfig holds the Google OAuth client configuration
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	CallbackURL  string `yaml:"callback_url"` // must match the URI registered with Google
}

// SessionConfig holds server session configuration
type SessionConfig struct {
	Secret     string   `yaml:"secret"`      // HMAC secret for cookie signing
	CookieName string   `yaml:"cookie_name"` // defaults to connect.sid
	Lifetime   Duration `yaml:"lifetime"`    // defaults to 24h
	Secure     bool     `yaml:"secure"`      // Secure flag on the session cookie
}

// AuthCodeConfig holds one-time auth code configuration
type AuthCodeConfig struct {
	Backend        string      `yaml:"backend"` // memory or redis
	TTL            Duration    `yaml:"ttl"`     // defaults to 5m
	NativeRedirect string      `yaml:"native_redirect"`
	Redis          RedisConfig `yaml:"redis"`
}

// RedisConfig holds the connection info for the shared code store
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Duration is a time.Duration that unmarshals from YAML strings like
// "24h" or "5m". Bare integers are still accepted as nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := unmarshal(&n); err != nil {
		return err
	}
	*d = Duration(n)
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (p *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}
