package repository

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"CapIot.quakeboard/internal/models"
)

// Field names the device gateway writes for each reading.
const (
	FieldMMI              = "mmi"
	FieldRichterMagnitude = "richterMagnitude"
	TagDeviceID           = "device_id"
)

// Point is one pivoted row of the telemetry measurement.
type Point struct {
	Time             time.Time
	DeviceID         string
	MMI              *float64
	RichterMagnitude *float64
}

// Message converts the point into an inbound telemetry message.
func (p Point) Message() models.Message {
	return models.Message{
		DeviceID:    p.DeviceID,
		MessageDate: models.NewTimestamp(p.Time),
		IotData: models.IotData{
			MMI:              p.MMI,
			RichterMagnitude: p.RichterMagnitude,
		},
	}
}

// Repository reads recent device telemetry.
type Repository interface {
	Health(ctx context.Context) error
	RecentPoints(ctx context.Context, since time.Time) ([]Point, error)
	Close()
}

// InfluxDBRepository reads telemetry from an InfluxDB bucket.
type InfluxDBRepository struct {
	client      influxdb2.Client
	org         string
	bucket      string
	measurement string
}

// NewInfluxDBRepository creates a new InfluxDBRepository.
func NewInfluxDBRepository(url, token, org, bucket, measurement string) *InfluxDBRepository {
	client := influxdb2.NewClient(url, token)
	return &InfluxDBRepository{
		client:      client,
		org:         org,
		bucket:      bucket,
		measurement: measurement,
	}
}

// Health checks the connection to InfluxDB.
func (r *InfluxDBRepository) Health(ctx context.Context) error {
	health, err := r.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("InfluxDB health check failed: %s", msg)
	}
	return nil
}

// RecentPoints returns the readings written after since, oldest first.
func (r *InfluxDBRepository) RecentPoints(ctx context.Context, since time.Time) ([]Point, error) {
	queryAPI := r.client.QueryAPI(r.org)

	result, err := queryAPI.Query(ctx, buildRecentQuery(r.bucket, r.measurement, since))
	if err != nil {
		return nil, fmt.Errorf("error querying InfluxDB: %w", err)
	}
	defer result.Close()

	var points []Point
	for result.Next() {
		record := result.Record()

		deviceID, ok := record.ValueByKey(TagDeviceID).(string)
		if !ok || deviceID == "" {
			continue
		}
		points = append(points, Point{
			Time:             record.Time(),
			DeviceID:         deviceID,
			MMI:              number(record.ValueByKey(FieldMMI)),
			RichterMagnitude: number(record.ValueByKey(FieldRichterMagnitude)),
		})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("query error: %w", result.Err())
	}
	return points, nil
}

// Close releases the client's resources.
func (r *InfluxDBRepository) Close() {
	r.client.Close()
}

func buildRecentQuery(bucket, measurement string, since time.Time) string {
	return fmt.Sprintf(`from(bucket: %q)
	|> range(start: %s)
	|> filter(fn: (r) => r["_measurement"] == %q)
	|> filter(fn: (r) => r["_field"] == %q or r["_field"] == %q)
	|> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
	|> group()
	|> sort(columns: ["_time"])`,
		bucket, since.UTC().Format(time.RFC3339Nano), measurement, FieldMMI, FieldRichterMagnitude)
}

// number converts a Flux value to a reading; anything non-numeric is absent.
func number(v interface{}) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case int64:
		f := float64(n)
		return &f
	case uint64:
		f := float64(n)
		return &f
	default:
		return nil
	}
}
