package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// expandEnvVars expands environment variables in the format ${VAR} or $VAR
func expandEnvVars(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}

// DefaultConfigPaths defines the default locations to search for configuration files
var DefaultConfigPaths = []string{
	"./config.yaml",
	"./config.yml",
	"./configs/config.yaml",
	"./configs/config.yml",
	"./configs/development.yaml",
	"/etc/makeready/config.yaml",
	"/etc/makeready/config.yml",
}

// Load loads the configuration from the specified file or default locations.
// A .env file in the working directory is loaded first so that ${VAR}
// references in the YAML resolve the same way the old dotenv setup did.
func Load(configPath string) (*Config, error) {
	// Best effort; a missing .env is not an error
	_ = godotenv.Load()

	// Set default values
	config := &Config{
		Server: ServerConfig{
			Host:      "localhost",
			Port:      3001,
			ClientURL: "http://localhost:5173",
			NodeID:    1,
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "makeready",
				User:     "postgres",
				SSLMode:  "disable",
			},
		},
		Auth: AuthConfig{
			Session: SessionConfig{
				CookieName: "connect.sid",
				Lifetime:   Duration(24 * time.Hour),
			},
			AuthCodes: AuthCodeConfig{
				Backend:        "memory",
				TTL:            Duration(5 * time.Minute),
				NativeRedirect: "makeready://auth/callback",
			},
		},
		Environment: "local",
	}

	// If no config path is provided, search in default locations
	if configPath == "" {
		configPath = findConfigFile()
	}

	// Load configuration from file if it exists
	if configPath != "" && fileExists(configPath) {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in the config
		data = expandEnvVars(data)

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Environment variables for the secrets take precedence over the file
	if secret := os.Getenv("SESSION_SECRET"); secret != "" {
		config.Auth.Session.Secret = secret
	}
	if id := os.Getenv("GOOGLE_CLIENT_ID"); id != "" {
		config.Auth.Google.ClientID = id
	}
	if secret := os.Getenv("GOOGLE_CLIENT_SECRET"); secret != "" {
		config.Auth.Google.ClientSecret = secret
	}
	if cb := os.Getenv("GOOGLE_CALLBACK_URL"); cb != "" {
		config.Auth.Google.CallbackURL = cb
	}
	if client := os.Getenv("CLIENT_URL"); client != "" {
		config.Server.ClientURL = client
	}

	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// findConfigFile searches for a configuration file in default locations
func findConfigFile() string {
	for _, path := range DefaultConfigPaths {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// fileExists checks if a file exists and is not a directory. Any stat
// error (not just not-exist) counts as absent.
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// validate performs basic validation on the configuration
func validate(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if config.Server.NodeID < 0 || config.Server.NodeID > 1023 {
		return fmt.Errorf("server.node_id must be between 0 and 1023")
	}

	if config.Database.Postgres.Host == "" {
		return fmt.Errorf("postgres host is required")
	}
	if config.Database.Postgres.Database == "" {
		return fmt.Errorf("postgres database name is required")
	}
	if config.Database.Postgres.User == "" {
		return fmt.Errorf("postgres user is required")
	}

	switch config.Auth.AuthCodes.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("auth_codes.backend must be memory or redis, got %q", config.Auth.AuthCodes.Backend)
	}
	if config.Auth.AuthCodes.Backend == "redis" && config.Auth.AuthCodes.Redis.Addr == "" {
		return fmt.Errorf("auth_codes.redis.addr is required for the redis backend")
	}

	return nil
}
