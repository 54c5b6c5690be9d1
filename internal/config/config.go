package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	appLog "calrecur/internal/log"
)

// Defaults applied by Normalize.
const (
	DefaultListen        = "127.0.0.1:8080"
	DefaultTimezone      = "UTC"
	DefaultGenerateCron  = "0 0 * * *"
	DefaultLookaheadDays = 7
	DefaultLogLevel      = "info"
)

// ImportConfig describes an ICS feed whose events are imported as templates.
type ImportConfig struct {
	// URL is an http(s) ICS endpoint or a local file path.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for logging.
	ID string `yaml:"id" json:"id"`
	// Owner, if set, becomes the owner of every imported template.
	Owner *int64 `yaml:"owner,omitempty" json:"owner,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone in which days and months are counted.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DatabaseURL is the Postgres connection string. DATABASE_URL overrides it.
	DatabaseURL string `yaml:"database_url" json:"-"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// GenerateCron is the standard 5-field cron schedule of the generation pass.
	GenerateCron string `yaml:"generate_cron" json:"generate_cron"`

	// LookaheadDays bounds how far ahead the generation pass materializes.
	LookaheadDays int `yaml:"lookahead_days" json:"lookahead_days"`

	// Imports are ICS feeds loaded by the -import flag.
	Imports []ImportConfig `yaml:"imports" json:"imports"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"-"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        DefaultListen,
		Timezone:      DefaultTimezone,
		LogLevel:      DefaultLogLevel,
		GenerateCron:  DefaultGenerateCron,
		LookaheadDays: DefaultLookaheadDays,
		Imports:       []ImportConfig{},
	}
}

// Normalize fills in missing or invalid values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	c.LogLevel = strings.ToLower(string(appLog.ParseLevel(c.LogLevel)))
	if c.GenerateCron == "" {
		c.GenerateCron = DefaultGenerateCron
	}
	if c.LookaheadDays <= 0 {
		c.LookaheadDays = DefaultLookaheadDays
	}
	if c.Imports == nil {
		c.Imports = []ImportConfig{}
	}
}

// Validate reports settings Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.GenerateCron); err != nil {
		return fmt.Errorf("generate_cron %q: %w", c.GenerateCron, err)
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" {
		return errors.New("basic_auth.username is empty")
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ApplyEnv overrides file settings with environment variables, after loading
// a .env file from the working directory if one exists:
//
//	DATABASE_URL, CALRECUR_LISTEN, CALRECUR_TIMEZONE, CALRECUR_LOG_LEVEL,
//	CALRECUR_GENERATE_CRON, CALRECUR_LOOKAHEAD_DAYS
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.Listen = getEnv("CALRECUR_LISTEN", c.Listen)
	c.Timezone = getEnv("CALRECUR_TIMEZONE", c.Timezone)
	c.LogLevel = getEnv("CALRECUR_LOG_LEVEL", c.LogLevel)
	c.GenerateCron = getEnv("CALRECUR_GENERATE_CRON", c.GenerateCron)
	if v := os.Getenv("CALRECUR_LOOKAHEAD_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LookaheadDays = n
		} else {
			appLog.Warn("ignoring CALRECUR_LOOKAHEAD_DAYS", "value", v, "err", err)
		}
	}
	c.Normalize()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (parent directory created as needed) and returned.
//   - Otherwise the YAML is unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory with 0700.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calrecur-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
