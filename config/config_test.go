package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate aponta CONFIG_FILE e ENV_FILE para lugares vazios.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	t.Setenv("SECRET_KEY", "k")

	cfg, err := Load()
	require.NoError(t, err)

	want := Default()
	want.SecretKey = "k"
	assert.Equal(t, want, cfg)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("SECRET_KEY", "k")
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("DATABASE_PATH", "/tmp/x.db")
	t.Setenv("RATE_RPS", "2.5")
	t.Setenv("RATE_BURST", "50")
	t.Setenv("CREATE_SESSION_COST", "5")
	t.Setenv("INGEST_EVENT_COST", "2")
	t.Setenv("DATABASE_WRITE_TIMEOUT", "250ms")
	t.Setenv("TRUST_XFF", "true")
	t.Setenv("RATE_ENABLED", "false")
	t.Setenv("MAX_EVENT_BYTES", "4096")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "/tmp/x.db", cfg.Database.Path)
	assert.Equal(t, 2.5, cfg.Rate.RPS)
	assert.Equal(t, 50, cfg.Rate.Burst)
	assert.Equal(t, 5, cfg.Rate.CreateSessionCost)
	assert.Equal(t, 2, cfg.Rate.IngestEventCost)
	assert.Equal(t, 250*time.Millisecond, cfg.Database.WriteTimeout)
	assert.True(t, cfg.Rate.TrustXFF)
	assert.False(t, cfg.Rate.Enabled)
	assert.Equal(t, int64(4096), cfg.MaxEventBytes)
}

func TestLoad_InvalidEnvValueFallsBackToDefault(t *testing.T) {
	isolate(t)
	t.Setenv("SECRET_KEY", "k")
	t.Setenv("RATE_BURST", "lots")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Rate.Burst, cfg.Rate.Burst)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
secret_key: from-yaml
listen_addr: ":7000"
database:
  path: yaml.db
  write_timeout: 3s
rate:
  rps: 4
  burst: 40
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LISTEN_ADDR", ":7001")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-yaml", cfg.SecretKey)
	assert.Equal(t, ":7001", cfg.ListenAddr, "env wins over yaml")
	assert.Equal(t, "yaml.db", cfg.Database.Path)
	assert.Equal(t, 3*time.Second, cfg.Database.WriteTimeout)
	assert.Equal(t, 40, cfg.Rate.Burst)
	// campos ausentes no YAML mantêm o padrão
	assert.Equal(t, Default().Rate.CreateSessionCost, cfg.Rate.CreateSessionCost)
}

func TestLoad_BrokenYAML(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rate: [unclosed"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	assert.ErrorContains(t, err, "parse config file")
}

func TestLoad_DotEnvFile(t *testing.T) {
	isolate(t)
	const key = "EVENTGW_TEST_DOTENV_ONLY"
	t.Cleanup(func() { _ = os.Unsetenv(key); _ = os.Unsetenv("SECRET_KEY") })
	_ = os.Unsetenv("SECRET_KEY")

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SECRET_KEY=from-dotenv\n"+key+"=1\n"), 0o600))
	t.Setenv("ENV_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.SecretKey)
	assert.Equal(t, "1", os.Getenv(key))
}

func TestLoad_MissingSecret(t *testing.T) {
	isolate(t)
	t.Setenv("SECRET_KEY", "")

	_, err := Load()
	assert.ErrorContains(t, err, "SECRET_KEY is required")
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"zero rps":             {func(c *Config) { c.Rate.RPS = 0 }, "RATE_RPS"},
		"zero burst":           {func(c *Config) { c.Rate.Burst = 0 }, "RATE_BURST must be > 0"},
		"zero cost":            {func(c *Config) { c.Rate.IngestEventCost = 0 }, "must be > 0"},
		"cost above burst":     {func(c *Config) { c.Rate.CreateSessionCost = 101 }, "must not exceed RATE_BURST"},
		"session cheaper":      {func(c *Config) { c.Rate.CreateSessionCost, c.Rate.IngestEventCost = 1, 2 }, "CREATE_SESSION_COST must be >="},
		"negative concurrency": {func(c *Config) { c.ConcurrencyMax = -1 }, "CONCURRENCY_MAX"},
		"zero payload cap":     {func(c *Config) { c.MaxEventBytes = 0 }, "MAX_EVENT_BYTES"},
		"no read conns":        {func(c *Config) { c.Database.ReadConns = 0 }, "DATABASE_READ_CONNS"},
		"redis without addr":   {func(c *Config) { c.Stats.RedisEnabled = true }, "RATE_STATS_REDIS_ADDR"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.SecretKey = "k"
			tc.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}

	ok := Default()
	ok.SecretKey = "k"
	assert.NoError(t, ok.Validate())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.LogFormat = "json"
	cfg.LogLevel = "warn"

	log := cfg.NewLogger(&buf)
	log.Info("hidden")
	log.Warn("shown", "k", 1)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "WARN", line["level"])
}
