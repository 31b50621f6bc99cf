package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the application's configuration.
type Config struct {
	Port           string   `env:"PORT" envDefault:"8000"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	BufferCapacity int      `env:"BUFFER_CAPACITY" envDefault:"50"`
	QueueSize      int      `env:"QUEUE_SIZE" envDefault:"256"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	UpstreamURL string `env:"UPSTREAM_WS_URL"`

	MQTTBroker   string `env:"MQTT_BROKER"`
	MQTTTopic    string `env:"MQTT_TOPIC" envDefault:"quakeboard/telemetry"`
	MQTTClientID string `env:"MQTT_CLIENT_ID" envDefault:"quakeboard"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisChannel  string `env:"REDIS_CHANNEL" envDefault:"quakeboard:telemetry"`

	Influx InfluxConfig
}

// InfluxConfig points the dashboard at the bucket the device gateway writes to.
type InfluxConfig struct {
	URL          string        `env:"INFLUXDB_URL"`
	Token        string        `env:"INFLUXDB_TOKEN"`
	Org          string        `env:"INFLUXDB_ORG"`
	Bucket       string        `env:"INFLUXDB_BUCKET"`
	Measurement  string        `env:"INFLUXDB_MEASUREMENT" envDefault:"device_measurements"`
	PollInterval time.Duration `env:"INFLUXDB_POLL_INTERVAL" envDefault:"5s"`
	Lookback     time.Duration `env:"INFLUXDB_LOOKBACK" envDefault:"5m"`
}

// Enabled reports whether any InfluxDB setting was provided.
func (c InfluxConfig) Enabled() bool {
	return c.URL != "" || c.Token != "" || c.Org != "" || c.Bucket != ""
}

// LoadConfig loads the configuration from a .env file, if present, and the environment.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system environment variables")
	}
	return Parse()
}

// Parse reads the configuration from the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that env tags cannot express.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if c.BufferCapacity < 1 {
		errs = append(errs, fmt.Errorf("BUFFER_CAPACITY must be positive, got %d", c.BufferCapacity))
	}
	if c.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("QUEUE_SIZE must be positive, got %d", c.QueueSize))
	}
	if c.Influx.Enabled() {
		if c.Influx.URL == "" || c.Influx.Token == "" || c.Influx.Org == "" || c.Influx.Bucket == "" {
			errs = append(errs, errors.New("InfluxDB configuration is incomplete. Please set INFLUXDB_URL, INFLUXDB_TOKEN, INFLUXDB_ORG and INFLUXDB_BUCKET environment variables"))
		}
		if c.Influx.PollInterval <= 0 {
			errs = append(errs, errors.New("INFLUXDB_POLL_INTERVAL must be positive"))
		}
	}
	return errors.Join(errs...)
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%s", c.Port)
}
