package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
)

// RedisSource reads telemetry published on a Redis pub/sub channel.
type RedisSource struct {
	client  *redis.Client
	channel string
	log     *slog.Logger
}

// NewRedisSource creates a source subscribed to channel on client.
func NewRedisSource(client *redis.Client, channel string, log *slog.Logger) *RedisSource {
	return &RedisSource{
		client:  client,
		channel: channel,
		log:     log.With("component", "ingest", "source", "redis"),
	}
}

// Name implements Source.
func (s *RedisSource) Name() string {
	return "redis"
}

// Run subscribes and forwards messages until ctx is done or the subscription closes.
func (s *RedisSource) Run(ctx context.Context, sink Sink) error {
	if _, err := s.client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("could not connect to Redis: %w", err)
	}

	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	// Wait for the subscription confirmation so errors surface here.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.channel, err)
	}
	s.log.Info("subscribed to telemetry channel", "channel", s.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription to %s closed", s.channel)
			}
			if err := deliver(ctx, sink, []byte(msg.Payload), s.log); err != nil {
				return err
			}
		}
	}
}
