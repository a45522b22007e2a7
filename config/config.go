// Package config carrega a configuração do gateway uma única vez na subida.
//
// Ordem de precedência (a última vence): valores padrão, arquivo YAML
// (CONFIG_FILE), arquivo .env (ENV_FILE, não sobrescreve o ambiente real) e
// variáveis de ambiente. Depois de Load nada muda; o valor é lido sem lock.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	SecretKey  string `yaml:"secret_key"`

	Database DatabaseConfig `yaml:"database"`
	Rate     RateConfig     `yaml:"rate"`
	Stats    StatsConfig    `yaml:"stats"`

	ConcurrencyMax     int           `yaml:"concurrency_max"`
	ConcurrencyTimeout time.Duration `yaml:"concurrency_timeout"`
	MaxEventBytes      int64         `yaml:"max_event_bytes"`
	MetricsEnabled     bool          `yaml:"metrics_enabled"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

type DatabaseConfig struct {
	Path         string        `yaml:"path"`
	ReadConns    int           `yaml:"read_conns"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	BusyTimeout  time.Duration `yaml:"busy_timeout"`
}

type RateConfig struct {
	Enabled bool `yaml:"enabled"`
	// RPS é a recarga em tokens por segundo; Burst a capacidade do bucket.
	RPS               float64       `yaml:"rps"`
	Burst             int           `yaml:"burst"`
	CreateSessionCost int           `yaml:"create_session_cost"`
	IngestEventCost   int           `yaml:"ingest_event_cost"`
	IdleTTL           time.Duration `yaml:"idle_ttl"`
	CleanupEvery      time.Duration `yaml:"cleanup_every"`
	Shards            int           `yaml:"shards"`
	TrustXFF          bool          `yaml:"trust_xff"`
	RetryAfter        time.Duration `yaml:"retry_after"`
	AddHeaders        bool          `yaml:"add_headers"`
}

type StatsConfig struct {
	RedisEnabled  bool          `yaml:"redis_enabled"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Prefix        string        `yaml:"prefix"`
	TTL           time.Duration `yaml:"ttl"`
	Bucket        string        `yaml:"bucket"`
	TrackKeys     bool          `yaml:"track_keys"`
}

// Default devolve a configuração usada quando nada é informado (exceto o segredo).
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		Database: DatabaseConfig{
			Path:         "events.db",
			ReadConns:    4,
			WriteTimeout: 10 * time.Second,
			BusyTimeout:  5 * time.Second,
		},
		Rate: RateConfig{
			Enabled:           true,
			RPS:               10,
			Burst:             100,
			CreateSessionCost: 10,
			IngestEventCost:   1,
			IdleTTL:           15 * time.Minute,
			CleanupEvery:      2 * time.Minute,
			Shards:            64,
			RetryAfter:        1 * time.Second,
		},
		Stats: StatsConfig{
			Prefix: "eventgw:ratelimit",
			TTL:    24 * time.Hour,
			Bucket: "minute",
		},
		ConcurrencyMax: 100,
		MaxEventBytes:  1 << 20,
		MetricsEnabled: true,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load monta a configuração a partir do arquivo YAML, do .env e do ambiente.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return Config{}, err
		}
	}

	envFile := getenvDefault("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ListenAddr = getenvDefault("LISTEN_ADDR", c.ListenAddr)
	c.SecretKey = getenvDefault("SECRET_KEY", c.SecretKey)

	c.Database.Path = getenvDefault("DATABASE_PATH", c.Database.Path)
	c.Database.ReadConns = getenvIntDefault("DATABASE_READ_CONNS", c.Database.ReadConns)
	c.Database.WriteTimeout = getenvDurationDefault("DATABASE_WRITE_TIMEOUT", c.Database.WriteTimeout)
	c.Database.BusyTimeout = getenvDurationDefault("DATABASE_BUSY_TIMEOUT", c.Database.BusyTimeout)

	c.Rate.Enabled = getenvBoolDefault("RATE_ENABLED", c.Rate.Enabled)
	c.Rate.RPS = getenvFloatDefault("RATE_RPS", c.Rate.RPS)
	c.Rate.Burst = getenvIntDefault("RATE_BURST", c.Rate.Burst)
	c.Rate.CreateSessionCost = getenvIntDefault("CREATE_SESSION_COST", c.Rate.CreateSessionCost)
	c.Rate.IngestEventCost = getenvIntDefault("INGEST_EVENT_COST", c.Rate.IngestEventCost)
	c.Rate.IdleTTL = getenvDurationDefault("RATE_IDLE_TTL", c.Rate.IdleTTL)
	c.Rate.CleanupEvery = getenvDurationDefault("RATE_CLEANUP_EVERY", c.Rate.CleanupEvery)
	c.Rate.Shards = getenvIntDefault("RATE_SHARDS", c.Rate.Shards)
	c.Rate.TrustXFF = getenvBoolDefault("TRUST_XFF", c.Rate.TrustXFF)
	c.Rate.RetryAfter = getenvDurationDefault("RETRY_AFTER", c.Rate.RetryAfter)
	c.Rate.AddHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", c.Rate.AddHeaders)

	c.Stats.RedisEnabled = getenvBoolDefault("RATE_STATS_ENABLED", c.Stats.RedisEnabled)
	c.Stats.RedisAddr = getenvDefault("RATE_STATS_REDIS_ADDR", c.Stats.RedisAddr)
	c.Stats.RedisPassword = getenvDefault("RATE_STATS_REDIS_PASSWORD", c.Stats.RedisPassword)
	c.Stats.RedisDB = getenvIntDefault("RATE_STATS_REDIS_DB", c.Stats.RedisDB)
	c.Stats.Prefix = getenvDefault("RATE_STATS_PREFIX", c.Stats.Prefix)
	c.Stats.TTL = getenvDurationDefault("RATE_STATS_TTL", c.Stats.TTL)
	c.Stats.Bucket = getenvDefault("RATE_STATS_BUCKET", c.Stats.Bucket)
	c.Stats.TrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", c.Stats.TrackKeys)

	c.ConcurrencyMax = getenvIntDefault("CONCURRENCY_MAX", c.ConcurrencyMax)
	c.ConcurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", c.ConcurrencyTimeout)
	c.MaxEventBytes = int64(getenvIntDefault("MAX_EVENT_BYTES", int(c.MaxEventBytes)))
	c.MetricsEnabled = getenvBoolDefault("METRICS_ENABLED", c.MetricsEnabled)

	c.LogLevel = getenvDefault("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getenvDefault("LOG_FORMAT", c.LogFormat)
}

// Validate confere os invariantes da configuração.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.SecretKey) == "" {
		errs = append(errs, errors.New("SECRET_KEY is required"))
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("DATABASE_PATH is required"))
	}
	if c.Database.ReadConns <= 0 {
		errs = append(errs, errors.New("DATABASE_READ_CONNS must be > 0"))
	}
	if c.Rate.RPS <= 0 {
		errs = append(errs, errors.New("RATE_RPS must be > 0"))
	}
	if c.Rate.Burst <= 0 {
		errs = append(errs, errors.New("RATE_BURST must be > 0"))
	}
	if c.Rate.CreateSessionCost <= 0 || c.Rate.IngestEventCost <= 0 {
		errs = append(errs, errors.New("CREATE_SESSION_COST and INGEST_EVENT_COST must be > 0"))
	}
	if c.Rate.CreateSessionCost > c.Rate.Burst || c.Rate.IngestEventCost > c.Rate.Burst {
		errs = append(errs, fmt.Errorf("operation costs must not exceed RATE_BURST (%d), or the operation is never admitted", c.Rate.Burst))
	}
	if c.Rate.CreateSessionCost < c.Rate.IngestEventCost {
		errs = append(errs, errors.New("CREATE_SESSION_COST must be >= INGEST_EVENT_COST"))
	}
	if c.ConcurrencyMax < 0 {
		errs = append(errs, errors.New("CONCURRENCY_MAX must be >= 0"))
	}
	if c.MaxEventBytes <= 0 {
		errs = append(errs, errors.New("MAX_EVENT_BYTES must be > 0"))
	}
	if c.Stats.RedisEnabled && strings.TrimSpace(c.Stats.RedisAddr) == "" {
		errs = append(errs, errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true"))
	}
	return errors.Join(errs...)
}
