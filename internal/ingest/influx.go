package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"CapIot.quakeboard/internal/repository"
)

// InfluxSource tails the measurement the device gateway writes to InfluxDB.
type InfluxSource struct {
	repo     repository.Repository
	interval time.Duration
	lookback time.Duration
	now      func() time.Time
	log      *slog.Logger
}

// NewInfluxSource polls repo every interval, starting lookback in the past.
func NewInfluxSource(repo repository.Repository, interval, lookback time.Duration, log *slog.Logger) *InfluxSource {
	return &InfluxSource{
		repo:     repo,
		interval: interval,
		lookback: lookback,
		now:      time.Now,
		log:      log.With("component", "ingest", "source", "influxdb"),
	}
}

// Name implements Source.
func (s *InfluxSource) Name() string {
	return "influxdb"
}

// Run checks the connection and then polls until ctx is done. A failed poll
// is logged and retried on the next tick.
func (s *InfluxSource) Run(ctx context.Context, sink Sink) error {
	if err := s.repo.Health(ctx); err != nil {
		return err
	}
	s.log.Info("Successfully connected to InfluxDB!", "interval", s.interval)

	since := s.now().Add(-s.lookback)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		next, err := s.poll(ctx, sink, since)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Error("error polling InfluxDB", "error", err)
		} else {
			since = next
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// poll forwards every point newer than since and returns the new watermark.
func (s *InfluxSource) poll(ctx context.Context, sink Sink, since time.Time) (time.Time, error) {
	points, err := s.repo.RecentPoints(ctx, since)
	if err != nil {
		return since, err
	}

	watermark := since
	for _, p := range points {
		if err := sink.Enqueue(ctx, p.Message()); err != nil {
			return watermark, fmt.Errorf("forward point: %w", err)
		}
		if p.Time.After(watermark) {
			watermark = p.Time
		}
	}
	if watermark.After(since) {
		watermark = watermark.Add(time.Nanosecond)
		s.log.Debug("forwarded InfluxDB points", "points", len(points))
	}
	return watermark, nil
}
