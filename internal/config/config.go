// Package config loads and validates the service configuration from a YAML
// file with environment variable overrides. A .env file is honored when
// present so local development matches the deployed environment shape.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the fully resolved service configuration.
type Config struct {
	// Server holds HTTP listener settings.
	Server ServerConfig `yaml:"server"`

	// App identifies this deployment to the outside world.
	App AppConfig `yaml:"app"`

	// Database holds the sqlite database location.
	Database DatabaseConfig `yaml:"database"`

	// NATS configures the real-time publisher. Optional; when the URL is
	// empty the notifier is disabled and publishes are dropped with a log.
	NATS NATSConfig `yaml:"nats"`

	// GitHub configures the upstream commit-status reporter and the inbound
	// webhook.
	GitHub GitHubConfig `yaml:"github"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// AppConfig identifies the deployment.
type AppConfig struct {
	// Host is the externally reachable base URL, used to compose deep links
	// in commit statuses, e.g. https://pages.example.gov.
	Host string `yaml:"host"`

	// Environment tags the deployment (production, staging, ...). It feeds
	// the commit-status context namespace.
	Environment string `yaml:"environment"`
}

// DatabaseConfig holds the sqlite database location.
type DatabaseConfig struct {
	// Path is a sqlite file path, or ":memory:" for tests.
	Path string `yaml:"path"`
}

// NATSConfig configures the real-time publisher.
type NATSConfig struct {
	URL string `yaml:"url"`

	// SubjectPrefix namespaces room subjects, default "federalist.rooms".
	SubjectPrefix string `yaml:"subject_prefix"`
}

// GitHubConfig configures the upstream status reporter and inbound webhook.
type GitHubConfig struct {
	// APIURL is the GitHub API base, default https://api.github.com.
	APIURL string `yaml:"api_url"`

	// Token authenticates commit-status requests.
	Token string `yaml:"token"`

	// StatusContext is the fixed namespace string attached to every commit
	// status, e.g. "federalist/build". Derived from App.Environment when
	// empty.
	StatusContext string `yaml:"status_context"`

	// WebhookSecret validates inbound webhook signatures.
	WebhookSecret string `yaml:"webhook_secret"`

	// RequestTimeout bounds a single commit-status attempt.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Default returns a Config populated with defaults suitable for local use.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":1337",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		App: AppConfig{
			Host:        "http://localhost:1337",
			Environment: "development",
		},
		Database: DatabaseConfig{Path: "federalist.sqlite"},
		NATS:     NATSConfig{SubjectPrefix: "federalist.rooms"},
		GitHub: GitHubConfig{
			APIURL:         "https://api.github.com",
			RequestTimeout: 10 * time.Second,
		},
	}
}

// Load reads the YAML file at path (if it exists), applies environment
// overrides, and validates the result. A missing file is not an error; the
// defaults plus environment are used.
func Load(path string) (*Config, error) {
	// Best effort; a missing .env file is normal outside development.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config fields from the process environment.
func (c *Config) applyEnv() {
	setString(&c.Server.Addr, "FEDERALIST_ADDR")
	setString(&c.App.Host, "FEDERALIST_HOST")
	setString(&c.App.Environment, "FEDERALIST_ENV")
	setString(&c.Database.Path, "FEDERALIST_DB_PATH")
	setString(&c.NATS.URL, "FEDERALIST_NATS_URL")
	setString(&c.NATS.SubjectPrefix, "FEDERALIST_NATS_SUBJECT_PREFIX")
	setString(&c.GitHub.APIURL, "GITHUB_API_URL")
	setString(&c.GitHub.Token, "GITHUB_TOKEN")
	setString(&c.GitHub.StatusContext, "GITHUB_STATUS_CONTEXT")
	setString(&c.GitHub.WebhookSecret, "GITHUB_WEBHOOK_SECRET")
}

// applyDerived fills fields computed from others when left empty.
func (c *Config) applyDerived() {
	if c.GitHub.StatusContext == "" {
		if c.App.Environment == "production" {
			c.GitHub.StatusContext = "federalist/build"
		} else {
			c.GitHub.StatusContext = fmt.Sprintf("federalist-%s/build", c.App.Environment)
		}
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.App.Host == "" {
		return fmt.Errorf("app.host is required")
	}
	if strings.HasSuffix(c.App.Host, "/") {
		c.App.Host = strings.TrimRight(c.App.Host, "/")
	}
	if c.GitHub.RequestTimeout <= 0 {
		return fmt.Errorf("github.request_timeout must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
