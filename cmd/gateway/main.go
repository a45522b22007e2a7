package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"event-gateway/api"
	"event-gateway/config"
	esinfra "event-gateway/eventstore/infra"
	"event-gateway/middleware/ratelimit"
	rldomain "event-gateway/middleware/ratelimit/domain"
	rlinfra "event-gateway/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}
	log := cfg.NewLogger(os.Stderr)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("gateway stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := esinfra.Open(ctx, esinfra.Options{
		Path:         cfg.Database.Path,
		ReadConns:    cfg.Database.ReadConns,
		WriteTimeout: cfg.Database.WriteTimeout,
		BusyTimeout:  cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer func() { _ = store.Close() }()

	limiter := rlinfra.NewStore(cfg.Rate.RPS, cfg.Rate.Burst,
		rlinfra.WithIdleTTL(cfg.Rate.IdleTTL),
		rlinfra.WithCleanupEvery(cfg.Rate.CleanupEvery),
		rlinfra.WithShards(cfg.Rate.Shards),
	)
	limiter.StartJanitor(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	summary := rlinfra.NewMemoryStatsStore()
	defer summary.LogSummary(log)
	sinks := []rldomain.StatsStore{summary}
	if cfg.MetricsEnabled {
		promStats, err := rlinfra.NewPrometheusStatsStore(reg, limiter)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		sinks = append(sinks, promStats)
	}

	if cfg.Stats.RedisEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Stats.RedisAddr,
			Password: cfg.Stats.RedisPassword,
			DB:       cfg.Stats.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancelPing()
		if err != nil {
			return fmt.Errorf("redis stats ping: %w", err)
		}

		sinks = append(sinks, rlinfra.NewRedisStatsStore(
			rdb,
			rlinfra.WithStatsPrefix(cfg.Stats.Prefix),
			rlinfra.WithStatsTTL(cfg.Stats.TTL),
			rlinfra.WithStatsBucket(cfg.Stats.Bucket),
			rlinfra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
		))
	}

	inFlight := rlinfra.NewChanPool(cfg.ConcurrencyMax)
	var metrics http.Handler
	if cfg.MetricsEnabled {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "eventgw_http_requests_in_flight",
			Help: "Requests currently holding a concurrency slot.",
		}, func() float64 { return float64(inFlight.InUse()) }))
		metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	opts := api.Options{
		Store: store,
		Stats: rlinfra.NewMultiStatsStore(sinks...),
		Costs: api.Costs{
			CreateSession: rldomain.Cost(cfg.Rate.CreateSessionCost),
			IngestEvent:   rldomain.Cost(cfg.Rate.IngestEventCost),
		},
		Secret:              cfg.SecretKey,
		TrustXForwardedFor:  cfg.Rate.TrustXFF,
		RetryAfter:          cfg.Rate.RetryAfter,
		AddRateLimitHeaders: cfg.Rate.AddHeaders,
		MaxEventBytes:       cfg.MaxEventBytes,
		Metrics:             metrics,
		Logger:              log,
	}
	// interface nil desliga a admissão; um *Store nil não serviria
	if cfg.Rate.Enabled {
		opts.Limiter = limiter
	}
	if cfg.ConcurrencyMax > 0 {
		opts.Concurrency = ratelimit.ConcurrencyOptions{
			Pool:           inFlight,
			RejectStatus:   http.StatusServiceUnavailable,
			AcquireTimeout: cfg.ConcurrencyTimeout,
		}
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(opts),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	log.Info("gateway listening", "addr", cfg.ListenAddr, "database", cfg.Database.Path)
	log.Info("rate", "enabled", cfg.Rate.Enabled, "rps", cfg.Rate.RPS, "burst", cfg.Rate.Burst,
		"createSessionCost", cfg.Rate.CreateSessionCost, "ingestEventCost", cfg.Rate.IngestEventCost,
		"trustXFF", cfg.Rate.TrustXFF, "idleTTL", limiter.IdleTTL())
	log.Info("rate-stats", "redis", cfg.Stats.RedisEnabled, "redisAddr", cfg.Stats.RedisAddr,
		"bucket", cfg.Stats.Bucket, "ttl", cfg.Stats.TTL, "trackKeys", cfg.Stats.TrackKeys, "metrics", cfg.MetricsEnabled)
	log.Info("concurrency", "max", cfg.ConcurrencyMax, "acquireTimeout", cfg.ConcurrencyTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
