package main

import (
	"log/slog"

	"github.com/go-redis/redis/v8"

	"CapIot.quakeboard/internal/config"
	"CapIot.quakeboard/internal/ingest"
	"CapIot.quakeboard/internal/repository"
)

// buildSources returns the ingest sources enabled by cfg and a func releasing
// the clients they hold.
func buildSources(cfg config.Config, logger *slog.Logger) ([]ingest.Source, func()) {
	var (
		sources []ingest.Source
		closers []func()
	)

	if cfg.UpstreamURL != "" {
		sources = append(sources, ingest.NewSocketSource(cfg.UpstreamURL, logger))
	}

	if cfg.MQTTBroker != "" {
		sources = append(sources, ingest.NewMQTTSource(cfg.MQTTBroker, cfg.MQTTTopic, cfg.MQTTClientID, logger))
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		closers = append(closers, func() { _ = client.Close() })
		sources = append(sources, ingest.NewRedisSource(client, cfg.RedisChannel, logger))
	}

	if cfg.Influx.Enabled() {
		repo := repository.NewInfluxDBRepository(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket, cfg.Influx.Measurement)
		closers = append(closers, repo.Close)
		sources = append(sources, ingest.NewInfluxSource(repo, cfg.Influx.PollInterval, cfg.Influx.Lookback, logger))
	}

	if len(sources) == 0 {
		logger.Warn("no telemetry source configured, only POST /api/telemetry will feed the dashboard")
	}

	return sources, func() {
		for _, c := range closers {
			c()
		}
	}
}
