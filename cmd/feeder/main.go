// Command feeder publishes synthetic earthquake telemetry so the dashboard can
// be exercised without real devices.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"CapIot.quakeboard/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "feeder: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		url      string
		broker   string
		topic    string
		devices  int
		interval time.Duration
		count    int
		logLevel string
	)

	flagSet := pflag.NewFlagSet("feeder", pflag.ContinueOnError)
	flagSet.StringVar(&url, "url", "http://localhost:8000/api/telemetry", "telemetry push endpoint")
	flagSet.StringVar(&broker, "mqtt", "", "publish to this MQTT broker (host:port) instead of HTTP")
	flagSet.StringVar(&topic, "topic", "quakeboard/telemetry", "MQTT topic")
	flagSet.IntVarP(&devices, "devices", "d", 3, "number of simulated devices")
	flagSet.DurationVarP(&interval, "interval", "i", time.Second, "delay between batches")
	flagSet.IntVarP(&count, "count", "n", 0, "number of batches to send, 0 for unlimited")
	flagSet.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if devices < 1 {
		return fmt.Errorf("--devices must be positive, got %d", devices)
	}
	if interval <= 0 {
		return fmt.Errorf("--interval must be positive, got %s", interval)
	}

	logger, closer := logging.New(logging.Options{Level: logLevel})
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pub Publisher
	if broker != "" {
		mqttPub, err := NewMQTTPublisher(ctx, broker, topic)
		if err != nil {
			return err
		}
		pub = mqttPub
	} else {
		pub = NewHTTPPublisher(url)
	}
	defer pub.Close()

	gen := NewGenerator(devices, time.Now().UnixNano())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for sent := 0; count == 0 || sent < count; sent++ {
		batch := gen.Next(time.Now())
		if err := pub.Publish(ctx, batch); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("publish failed", "error", err)
		} else {
			logger.Info("batch published", "messages", len(batch), "target", pub.Target())
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}
