package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath    = "CONFIG_PATH"
	EnvDBConnection  = "DB_CONNECTION"
	EnvSessionSecret = "SESSION_SECRET"
	EnvSessionTTL    = "SESSION_TTL"
	EnvAppEnv        = "APP_ENV"
	EnvListenAddr    = "LISTEN_ADDR"
)

// EnvironmentProduction marks deployments that must issue Secure cookies.
const EnvironmentProduction = "production"

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
	ListenAddr string // Overrides ServerConfig.Addr when set.
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// SessionConfig holds cookie signing and lifetime settings.
type SessionConfig struct {
	Secret      string        `yaml:"secret"`
	TTL         time.Duration `yaml:"ttl"`
	Environment string        `yaml:"environment"`
}

// Production reports whether cookies must carry the Secure attribute.
func (c SessionConfig) Production() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), EnvironmentProduction)
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	Debug          bool     `yaml:"debug"`
	AllowedOrigins []string `yaml:"allowed-origins"`
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrMissingDatabaseDSN
		}
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultSessionTTL bounds non-remembered sessions.
const defaultSessionTTL = 24 * time.Hour

// LoadSessionConfig loads session settings from the YAML config file.
func LoadSessionConfig(configPath string) (SessionConfig, error) {
	// fileConfig maps the YAML fields needed for session settings.
	type fileConfig struct {
		Session SessionConfig `yaml:"session"`
	}

	result := SessionConfig{TTL: defaultSessionTTL}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return result, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
		result = cfg.Session
	}

	if secret := strings.TrimSpace(os.Getenv(EnvSessionSecret)); secret != "" {
		result.Secret = secret
	}
	if ttlRaw := strings.TrimSpace(os.Getenv(EnvSessionTTL)); ttlRaw != "" {
		if ttl, errParse := time.ParseDuration(ttlRaw); errParse == nil && ttl > 0 {
			result.TTL = ttl
		}
	}
	if env := strings.TrimSpace(os.Getenv(EnvAppEnv)); env != "" {
		result.Environment = env
	}

	if result.TTL <= 0 {
		result.TTL = defaultSessionTTL
	}
	return result, nil
}

// defaultListenAddr is used when neither file nor env provide an address.
const defaultListenAddr = ":8080"

// LoadServerConfig loads HTTP listener settings from the YAML config file.
func LoadServerConfig(configPath string) (ServerConfig, error) {
	// fileConfig maps the YAML fields needed for the HTTP server.
	type fileConfig struct {
		Server ServerConfig `yaml:"server"`
	}

	result := ServerConfig{Addr: defaultListenAddr}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return result, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
		result = cfg.Server
	}

	if addr := strings.TrimSpace(os.Getenv(EnvListenAddr)); addr != "" {
		result.Addr = addr
	}
	result.Addr = strings.TrimSpace(result.Addr)
	if result.Addr == "" {
		result.Addr = defaultListenAddr
	}
	origins := make([]string, 0, len(result.AllowedOrigins))
	for _, origin := range result.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	result.AllowedOrigins = origins
	return result, nil
}
