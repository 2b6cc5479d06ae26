package main

import (
	"context"
	"os"
	"strings"

	"lockstep/cmd/server/config"
	"lockstep/internal/bus"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// buildEventRelay mirrors the saga's event feed into a Redis Stream when
// REDIS_URL is set. The returned cleanup closes the client.
func buildEventRelay(ctx context.Context, msgBus *bus.Bus, logf func(format string, args ...any)) (func(), error) {
	if strings.TrimSpace(os.Getenv("REDIS_URL")) == "" {
		logf("redis event relay disabled (REDIS_URL not set)")
		return func() {}, nil
	}

	cfg, err := config.LoadRedis()
	if err != nil {
		return nil, err
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.DialTimeout != nil {
		opts.DialTimeout = *cfg.DialTimeout
	}
	if cfg.ReadTimeout != nil {
		opts.ReadTimeout = *cfg.ReadTimeout
	}
	if cfg.WriteTimeout != nil {
		opts.WriteTimeout = *cfg.WriteTimeout
	}
	if cfg.PoolSize != nil {
		opts.PoolSize = *cfg.PoolSize
	}
	if cfg.MinIdleConns != nil {
		opts.MinIdleConns = *cfg.MinIdleConns
	}
	if cfg.MaxRetries != nil {
		opts.MaxRetries = *cfg.MaxRetries
	}
	if cfg.TLSConfig != nil {
		opts.TLSConfig = cfg.TLSConfig
	}

	client := redis.NewClient(opts)
	if cfg.EnableOTel {
		if err := redisotel.InstrumentTracing(client); err != nil {
			_ = client.Close()
			return nil, err
		}
		if err := redisotel.InstrumentMetrics(client); err != nil {
			_ = client.Close()
			return nil, err
		}
	}

	pingCtx := ctx
	if cfg.HealthcheckTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.HealthcheckTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	relay := bus.NewRedisRelay(client, cfg.Stream, cfg.StreamMaxLen)
	msgBus.Subscribe(relay.Handler(logf), allEvents...)
	logf("redis event relay enabled (stream %q)", cfg.Stream)

	cleanup := func() {
		if err := client.Close(); err != nil {
			logf("close redis: %v", err)
		}
	}
	return cleanup, nil
}
