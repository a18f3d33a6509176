// Package config loads the contentd configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mickamy/contentorm/orm"
)

// Config holds the contentd configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Schema   SchemaConfig   `yaml:"schema"`
	Upload   UploadConfig   `yaml:"upload"`
	Admin    AdminConfig    `yaml:"admin"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr              string `yaml:"addr"`
	ReadHeaderTimeout string `yaml:"read_header_timeout"`
	ShutdownTimeout   string `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the engine and connection.
type DatabaseConfig struct {
	Dialect      string `yaml:"dialect"` // mysql, postgres, sqlite3
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	Debug        bool   `yaml:"debug"` // log every statement
}

// SchemaConfig points at the content-type definitions.
type SchemaConfig struct {
	Dir string `yaml:"dir"`
}

// UploadConfig configures media storage.
type UploadConfig struct {
	Dir     string `yaml:"dir"`
	BaseURL string `yaml:"base_url"`
	MaxSize int64  `yaml:"max_size"` // bytes
}

// AdminConfig holds the bootstrap administrator, created when no admin
// user exists.
type AdminConfig struct {
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	Firstname string `yaml:"firstname"`
	Lastname  string `yaml:"lastname"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":1337",
			ReadHeaderTimeout: "5s",
			ShutdownTimeout:   "10s",
		},
		Database: DatabaseConfig{
			Dialect:      orm.NameSQLite,
			DSN:          "file:data/contentd.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
		Schema: SchemaConfig{
			Dir: "api",
		},
		Upload: UploadConfig{
			Dir:     "public/uploads",
			BaseURL: "/uploads",
			MaxSize: 200 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML file at path over the defaults and applies
// environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DATABASE_DIALECT"); v != "" {
		c.Database.Dialect = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("ADMIN_EMAIL"); v != "" {
		c.Admin.Email = v
	}
	if v := os.Getenv("ADMIN_PASSWORD"); v != "" {
		c.Admin.Password = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// ReadHeaderTimeout returns the server read header timeout.
func (c *Config) ReadHeaderTimeout() time.Duration {
	return duration(c.Server.ReadHeaderTimeout, 5*time.Second)
}

// ShutdownTimeout returns how long the server waits for in-flight
// requests on shutdown.
func (c *Config) ShutdownTimeout() time.Duration {
	return duration(c.Server.ShutdownTimeout, 10*time.Second)
}

func duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ValidDialects lists the supported database engines.
var ValidDialects = []string{orm.NameMySQL, orm.NamePostgreSQL, orm.NameSQLite}

// ValidLogLevels lists the accepted logging levels.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error"}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if !slices.Contains(ValidDialects, c.Database.Dialect) {
		errs = append(errs, fmt.Errorf("invalid database dialect: %s (valid: %v)", c.Database.Dialect, ValidDialects))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Schema.Dir == "" {
		errs = append(errs, errors.New("schema.dir is required"))
	}
	if c.Upload.Dir == "" {
		errs = append(errs, errors.New("upload.dir is required"))
	}
	if c.Upload.MaxSize <= 0 {
		errs = append(errs, errors.New("upload.max_size must be positive"))
	}
	if (c.Admin.Email == "") != (c.Admin.Password == "") {
		errs = append(errs, errors.New("admin.email and admin.password must be set together"))
	}
	if !slices.Contains(ValidLogLevels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels))
	}
	return errors.Join(errs...)
}
