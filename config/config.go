// Package config loads the daemon configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of the configuration file.
type Config struct {
	Instance   Instance   `yaml:"instance"`
	Server     Server     `yaml:"server"`
	Database   Database   `yaml:"database"`
	Federation Federation `yaml:"federation"`
	Keys       Keys       `yaml:"keys"`
	Log        Log        `yaml:"log"`
}

type Instance struct {
	Domain string `yaml:"domain"`
	Name   string `yaml:"name"`

	// Insecure serves and links http:// URLs. Only for local testing.
	Insecure bool `yaml:"insecure"`
}

type Server struct {
	Listen          string        `yaml:"listen"`
	MaxBodySize     int64         `yaml:"max_body_size"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// AuthorizedFetch requires signed requests for actor documents.
	AuthorizedFetch bool `yaml:"authorized_fetch"`

	// TrustedProxies may set the public host with X-Forwarded-Host.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type Database struct {
	// Driver is "memory" or "postgres".
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type Federation struct {
	Workers          int           `yaml:"workers"`
	QueueSize        int           `yaml:"queue_size"`
	SendDelay        time.Duration `yaml:"send_delay"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	MaxDocumentSize  int64         `yaml:"max_document_size"`
	Proxy            string        `yaml:"proxy"`
	BlockedInstances []string      `yaml:"blocked_instances"`
}

type Keys struct {
	// Instance is the path of the instance actor's PEM private key.
	Instance string `yaml:"instance"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`

	// File, when set, receives the logs instead of stderr, rotated by size.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the configuration used for unset fields.
func Default() Config {
	return Config{
		Instance: Instance{Name: "federa"},
		Server: Server{
			Listen:          ":8080",
			MaxBodySize:     1 << 20,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: Database{Driver: "memory"},
		Federation: Federation{
			Workers:         8,
			QueueSize:       64,
			SendDelay:       250 * time.Millisecond,
			ConnectTimeout:  5 * time.Second,
			RequestTimeout:  10 * time.Second,
			MaxDocumentSize: 1 << 20,
		},
		Log: Log{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Load reads path over the defaults, applies FEDERA_* environment
// variables and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}

	str("FEDERA_INSTANCE_DOMAIN", &c.Instance.Domain)
	str("FEDERA_INSTANCE_NAME", &c.Instance.Name)
	str("FEDERA_SERVER_LISTEN", &c.Server.Listen)
	str("FEDERA_DATABASE_DRIVER", &c.Database.Driver)
	str("FEDERA_DATABASE_DSN", &c.Database.DSN)
	str("FEDERA_FEDERATION_PROXY", &c.Federation.Proxy)
	str("FEDERA_KEYS_INSTANCE", &c.Keys.Instance)
	str("FEDERA_LOG_LEVEL", &c.Log.Level)
	str("FEDERA_LOG_FORMAT", &c.Log.Format)
	str("FEDERA_LOG_FILE", &c.Log.File)

	if v, ok := lookup("FEDERA_INSTANCE_INSECURE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: FEDERA_INSTANCE_INSECURE: %w", err)
		}

		c.Instance.Insecure = b
	}

	if v, ok := lookup("FEDERA_FEDERATION_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: FEDERA_FEDERATION_WORKERS: %w", err)
		}

		c.Federation.Workers = n
	}

	if v, ok := lookup("FEDERA_FEDERATION_BLOCKED_INSTANCES"); ok {
		c.Federation.BlockedInstances = nil

		for _, host := range strings.Split(v, ",") {
			if host = strings.TrimSpace(host); host != "" {
				c.Federation.BlockedInstances = append(c.Federation.BlockedInstances, host)
			}
		}
	}

	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if c.Instance.Domain == "" {
		errs = append(errs, errors.New("instance.domain is required"))
	}

	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}

	if c.Federation.Workers <= 0 {
		errs = append(errs, errors.New("federation.workers must be positive"))
	}

	if c.Federation.QueueSize <= 0 {
		errs = append(errs, errors.New("federation.queue_size must be positive"))
	}

	if c.Federation.SendDelay < 0 {
		errs = append(errs, errors.New("federation.send_delay must not be negative"))
	}

	if c.Federation.Proxy != "" {
		if u, err := url.Parse(c.Federation.Proxy); err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("federation.proxy %q is not a URL", c.Federation.Proxy))
		}
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not supported", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}

	return nil
}

// ProxyURL returns the parsed proxy, or nil when none is set.
func (f Federation) ProxyURL() *url.URL {
	if f.Proxy == "" {
		return nil
	}

	u, err := url.Parse(f.Proxy)
	if err != nil {
		return nil
	}

	return u
}
