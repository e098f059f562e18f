package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ConnectionString string
	DBName           string
	JWTSecret        string
	Port             string
	LogLevel         string
	TokenTTL         time.Duration
	CORSOrigins      []string
	ShutdownTimeout  time.Duration

	// EnvFileLoaded reports whether a .env file was found.
	EnvFileLoaded bool
}

// fileConfig is the optional YAML file named by CHAPPY_CONFIG. Environment
// variables override it.
type fileConfig struct {
	Database struct {
		ConnectionString string `yaml:"connection_string"`
		Name             string `yaml:"name"`
	} `yaml:"database"`
	Server struct {
		Port            string   `yaml:"port"`
		CORSOrigins     []string `yaml:"cors_origins"`
		ShutdownTimeout string   `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		TokenTTL  string `yaml:"token_ttl"`
	} `yaml:"auth"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

func loadFile(path string) (*fileConfig, error) {
	fc := &fileConfig{}
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return fc, nil
}

// Load reads the server configuration from an optional .env file, an
// optional YAML file and the environment, in increasing precedence.
func Load() (*Config, error) {
	envErr := godotenv.Load() // Load .env file if it exists

	fc, err := loadFile(os.Getenv("CHAPPY_CONFIG"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ConnectionString: getEnv("CONNECTION_STRING", fc.Database.ConnectionString),
		DBName:           getEnv("MONGODB_DB_NAME", fc.Database.Name),
		JWTSecret:        getEnv("JWT_SECRET", fc.Auth.JWTSecret),
		Port:             getEnv("PORT", or(fc.Server.Port, "1338")),
		LogLevel:         getEnv("LOG_LEVEL", or(fc.Logging.Level, "INFO")),
		EnvFileLoaded:    envErr == nil,
	}

	if cfg.TokenTTL, err = getEnvAsDuration("TOKEN_TTL", or(fc.Auth.TokenTTL, "24h")); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getEnvAsDuration("SHUTDOWN_TIMEOUT", or(fc.Server.ShutdownTimeout, "30s")); err != nil {
		return nil, err
	}

	origins := strings.Join(fc.Server.CORSOrigins, ",")
	cfg.CORSOrigins = splitList(getEnv("CORS_ORIGINS", or(origins, "*")))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.ConnectionString == "" {
		errs = append(errs, errors.New("CONNECTION_STRING environment variable is required"))
	}
	if c.DBName == "" {
		errs = append(errs, errors.New("MONGODB_DB_NAME environment variable is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable is required"))
	}
	return errors.Join(errs...)
}

// ClientConfig configures the terminal client.
type ClientConfig struct {
	APIURL    string
	TokenFile string
}

func LoadClient() ClientConfig {
	_ = godotenv.Load()

	tokenFile := getEnv("CHAPPY_TOKEN_FILE", "")
	if tokenFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = os.TempDir()
		}
		tokenFile = filepath.Join(dir, "chappy", "token")
	}
	return ClientConfig{
		APIURL:    strings.TrimRight(getEnv("CHAPPY_API_URL", "http://localhost:1338"), "/"),
		TokenFile: tokenFile,
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) (time.Duration, error) {
	raw := getEnv(key, defaultValue)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func or(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
