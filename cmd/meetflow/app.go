package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/meetflow/config"
	"github.com/mohammad-safakhou/meetflow/internal/aggregation"
	"github.com/mohammad-safakhou/meetflow/internal/cache"
	"github.com/mohammad-safakhou/meetflow/internal/ingest"
	"github.com/mohammad-safakhou/meetflow/internal/logging"
	"github.com/mohammad-safakhou/meetflow/internal/meeting"
	"github.com/mohammad-safakhou/meetflow/internal/search"
	"github.com/mohammad-safakhou/meetflow/internal/server"
	"github.com/mohammad-safakhou/meetflow/internal/sources"
	"github.com/mohammad-safakhou/meetflow/internal/store"
	"github.com/mohammad-safakhou/meetflow/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

// app is the dependency graph shared by the commands.
type app struct {
	cfg       *config.Config
	logger    logging.Logger
	telemetry *telemetry.Telemetry
	observer  telemetry.Observer
	pipeline  *meeting.Pipeline
	store     *store.Store
	redis     *redis.Client
	cache     *cache.Cache
	service   *ingest.Service
	closers   []func(context.Context) error
}

func loadConfig(path string) (*config.Config, logging.Logger, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(&logging.Config{
		Level:      logging.Level(cfg.General.LogLevel),
		JSON:       cfg.General.LogJSON,
		TimeFormat: "15:04:05",
	})
	return cfg, logger, nil
}

// newApp connects every configured backend. Redis and postgres are optional; without
// them collections live in process memory.
func newApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, logger, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	tele, err := telemetry.Setup(ctx, telemetry.Options{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return nil, err
	}
	a.telemetry = tele
	a.closers = append(a.closers, tele.Shutdown)

	obs := []telemetry.Observer{telemetry.NewLogObserver(logger.WithPrefix("pipeline"))}
	if cfg.Telemetry.Enabled {
		obs = append(obs, telemetry.NewMetricsObserver(tele.Meter(), logger))
	}
	a.observer = telemetry.Multi(obs...)
	a.pipeline = meeting.New(
		meeting.WithObserver(a.observer),
		meeting.WithStableFallbackIDs(cfg.Ingestion.StableFallbackIDs),
	)

	opts := []ingest.Option{
		ingest.WithLogger(logger.WithPrefix("ingest")),
		ingest.WithIndex(search.New()),
	}

	if dsn := cfg.Storage.Postgres.DSN(); dsn != "" {
		st, err := store.NewWithDSN(ctx, dsn)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.store = st
		a.closers = append(a.closers, func(context.Context) error { return st.Close() })
		opts = append(opts, ingest.WithStore(st))
	}

	if rc := cfg.Storage.Redis; rc.Enabled() {
		client, err := cache.Conn(ctx, rc.Host, rc.Port, rc.Password, rc.DB, rc.Timeout)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.redis = client
		a.cache = cache.New(client, rc.MeetingsTTL)
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		opts = append(opts, ingest.WithCache(a.cache))
	}

	for _, sc := range cfg.Ingestion.Sources {
		src, err := sources.New(sources.Config{
			Name:       sc.Name,
			Kind:       sources.Kind(sc.Kind),
			URL:        sc.URL,
			Timeout:    sc.Timeout,
			MaxRetries: sc.MaxRetries,
		})
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		opts = append(opts, ingest.WithSources(src))
	}

	a.service = ingest.NewService(a.pipeline, opts...)
	return a, nil
}

func (a *app) aggregationController() (*aggregation.Controller, error) {
	ac := a.cfg.Aggregation
	if !ac.Enabled() {
		return nil, errors.New("aggregation.base_url not configured")
	}
	client := aggregation.NewHTTPClient(aggregation.ClientConfig{
		BaseURL:    ac.BaseURL,
		StartPath:  ac.StartPath,
		StatusPath: ac.StatusPath,
		Timeout:    ac.RequestTimeout,
	})
	return aggregation.NewController(client,
		aggregation.Config{PollInterval: ac.PollInterval, MaxAttempts: ac.MaxAttempts},
		aggregation.WithTransitionObserver(a.observer),
	), nil
}

func (a *app) healthChecks() map[string]server.Pinger {
	checks := map[string]server.Pinger{}
	if a.store != nil {
		checks["postgres"] = a.store
	}
	if a.redis != nil {
		checks["redis"] = redisPinger{a.redis}
	}
	return checks
}

type redisPinger struct{ c *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.c.Ping(ctx).Err() }

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("close failed", "err", err)
		}
	}
	a.closers = nil
}
