package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent of testing.T.Chdir from Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("missing.yaml")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8081", cfg.Addr())
	assert.Equal(t, 32, cfg.Server.Workers)
	assert.Equal(t, 10<<20, cfg.Server.MaxBodySize)
	assert.Equal(t, "modules", cfg.Modules.Directory)
	assert.Equal(t, "primary", cfg.Database.Key)

	policy := cfg.Policy()
	assert.Equal(t, "GET,POST", policy.Methods)
	assert.Equal(t, "content-type,session", policy.Headers)
	assert.Equal(t, "86400", policy.MaxAge)
	assert.Empty(t, policy.Origin)
}

func TestLoadFileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := writeFile(t, dir, "config.yaml", `
server:
  host: 0.0.0.0
  port: 9000
  workers: 4
cors:
  origin: https://example.com
  methods: [GET, POST, PUT]
database:
  key: main
  provider: pebble
  options:
    in_memory: true
    nested:
      retries: 3
      hosts: [a, b]
logging:
  level: debug
  format: console
`)
	t.Setenv("PHOTONYX_SERVER_WORKERS", "8")
	t.Setenv("PHOTONYX_CORS_HEADERS", "x-token,content-type")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Addr())
	assert.Equal(t, 8, cfg.Server.Workers)
	assert.Equal(t, "https://example.com", cfg.CORS.Origin)
	assert.Equal(t, "GET,POST,PUT", cfg.Policy().Methods)
	assert.Equal(t, "x-token,content-type", cfg.Policy().Headers)
	assert.Equal(t, "main", cfg.Database.Key)
	assert.Equal(t, ProviderPebble, cfg.Database.Provider)
	assert.Equal(t, "debug", cfg.Logging.Level)

	options, err := cfg.DatabaseOptions()
	require.NoError(t, err)
	assert.True(t, options.Fields["in_memory"].GetBoolValue())
	nested := options.Fields["nested"].GetStructValue()
	require.NotNil(t, nested)
	assert.Equal(t, float64(3), nested.Fields["retries"].GetNumberValue())
	assert.Len(t, nested.Fields["hosts"].GetListValue().GetValues(), 2)
}

func TestPortOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PHOTONYX_SERVER_PORT", "9000")
	t.Setenv("PORT", "7000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)

	t.Setenv("PORT", "http")
	_, err = Load("")
	assert.Error(t, err)
}

func TestUnprefixedNamesIgnored(t *testing.T) {
	chdir(t, t.TempDir())
	for _, name := range []string{"HOST", "KEY", "WORKERS", "DIRECTORY", "LEVEL", "FORMAT", "ORIGIN", "TTL"} {
		t.Setenv(name, "x")
	}
	t.Setenv("HOST", "evil.example")
	t.Setenv("KEY", "secondary")

	cfg, err := Load("")
	require.NoError(t, err)

	want := Default()
	assert.Equal(t, want.Server, cfg.Server)
	assert.Equal(t, want.CORS, cfg.CORS)
	assert.Equal(t, want.Modules, cfg.Modules)
	assert.Equal(t, "primary", cfg.Database.Key)
	assert.Equal(t, want.Logging, cfg.Logging)
}

func TestPrefixedMultiWordNames(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PHOTONYX_SERVER_MAX_BODY_SIZE", "1024")
	t.Setenv("PHOTONYX_SERVER_METRICS_ADDRESS", "127.0.0.1:9100")
	t.Setenv("PHOTONYX_RATE_LIMIT_RPS", "2.5")
	t.Setenv("PHOTONYX_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 1024, cfg.Server.MaxBodySize)
	assert.Equal(t, "127.0.0.1:9100", cfg.Server.MetricsAddress)
	assert.Equal(t, 2.5, cfg.RateLimit.RPS)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, dir, ".env", "PHOTONYX_MODULES_DIRECTORY=plugins\n")
	t.Cleanup(func() { os.Unsetenv("PHOTONYX_MODULES_DIRECTORY") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "plugins", cfg.Modules.Directory)
}

func TestLoadRejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	_, err := Load(writeFile(t, dir, "broken.yaml", "server: [1, 2"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"no workers", func(c *Config) { c.Server.Workers = 0 }},
		{"negative body", func(c *Config) { c.Server.MaxBodySize = -1 }},
		{"negative rate", func(c *Config) { c.RateLimit.RPS = -1 }},
		{"empty key", func(c *Config) { c.Database.Key = "" }},
		{"unknown provider", func(c *Config) { c.Database.Provider = "sqlite" }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
