package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "federa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
instance:
  domain: blog.example
database:
  driver: postgres
  dsn: postgres://localhost/federa
federation:
  workers: 4
  send_delay: 1s
  blocked_instances: [spam.example]
log:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "blog.example", cfg.Instance.Domain)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 4, cfg.Federation.Workers)
	assert.Equal(t, time.Second, cfg.Federation.SendDelay)
	assert.Equal(t, []string{"spam.example"}, cfg.Federation.BlockedInstances)
	assert.Equal(t, "console", cfg.Log.Format)

	// Defaults survive for untouched keys.
	assert.Equal(t, 64, cfg.Federation.QueueSize)
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, 5*time.Second, cfg.Federation.ConnectTimeout)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("FEDERA_INSTANCE_DOMAIN", "env.example")
	t.Setenv("FEDERA_FEDERATION_WORKERS", "2")
	t.Setenv("FEDERA_FEDERATION_BLOCKED_INSTANCES", "a.example, b.example,")
	t.Setenv("FEDERA_INSTANCE_INSECURE", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env.example", cfg.Instance.Domain)
	assert.Equal(t, 2, cfg.Federation.Workers)
	assert.Equal(t, []string{"a.example", "b.example"}, cfg.Federation.BlockedInstances)
	assert.True(t, cfg.Instance.Insecure)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeFile(t, "instance: [\n"))
		assert.Error(t, err)
	})

	t.Run("bad env", func(t *testing.T) {
		t.Setenv("FEDERA_INSTANCE_DOMAIN", "x.example")
		t.Setenv("FEDERA_FEDERATION_WORKERS", "many")

		_, err := Load("")
		assert.ErrorContains(t, err, "FEDERA_FEDERATION_WORKERS")
	})
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Instance.Domain = "blog.example"

		return cfg
	}

	require.NoError(t, func() error { c := valid(); return c.Validate() }())

	for _, tc := range []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"domain", func(c *Config) { c.Instance.Domain = "" }, "instance.domain"},
		{"driver", func(c *Config) { c.Database.Driver = "sqlite" }, "database.driver"},
		{"dsn", func(c *Config) { c.Database.Driver = "postgres" }, "database.dsn"},
		{"workers", func(c *Config) { c.Federation.Workers = 0 }, "federation.workers"},
		{"queue", func(c *Config) { c.Federation.QueueSize = -1 }, "federation.queue_size"},
		{"delay", func(c *Config) { c.Federation.SendDelay = -time.Second }, "federation.send_delay"},
		{"proxy", func(c *Config) { c.Federation.Proxy = "not a url" }, "federation.proxy"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)

			assert.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}

func TestProxyURL(t *testing.T) {
	assert.Nil(t, Federation{}.ProxyURL())

	u := Federation{Proxy: "http://proxy.internal:3128"}.ProxyURL()
	require.NotNil(t, u)
	assert.Equal(t, "proxy.internal:3128", u.Host)
}
