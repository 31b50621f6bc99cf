package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/eclipse/paho.golang/paho"
	"github.com/go-resty/resty/v2"

	"CapIot.quakeboard/internal/models"
)

// Publisher delivers a batch of messages to the dashboard.
type Publisher interface {
	Publish(ctx context.Context, batch []models.Message) error
	Target() string
	Close() error
}

// HTTPPublisher posts batches to POST /api/telemetry.
type HTTPPublisher struct {
	url    string
	client *resty.Client
}

// NewHTTPPublisher creates a publisher for the given endpoint.
func NewHTTPPublisher(url string) *HTTPPublisher {
	return &HTTPPublisher{url: url, client: resty.New()}
}

// Publish sends the batch as a JSON array.
func (p *HTTPPublisher) Publish(ctx context.Context, batch []models.Message) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(batch).
		Post(p.url)
	if err != nil {
		return fmt.Errorf("post telemetry: %w", err)
	}
	if resp.StatusCode() >= 400 {
		var apiErr models.APIError
		if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("post telemetry: %s: %s", resp.Status(), apiErr.Message)
		}
		return fmt.Errorf("post telemetry: %s", resp.Status())
	}
	return nil
}

func (p *HTTPPublisher) Target() string {
	return p.url
}

func (p *HTTPPublisher) Close() error {
	return nil
}

// MQTTPublisher publishes every message of a batch to one topic.
type MQTTPublisher struct {
	broker string
	topic  string
	client *paho.Client
}

// NewMQTTPublisher connects to broker (host:port).
func NewMQTTPublisher(ctx context.Context, broker, topic string) (*MQTTPublisher, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", broker)
	if err != nil {
		return nil, fmt.Errorf("dial broker %s: %w", broker, err)
	}

	client := paho.NewClient(paho.ClientConfig{Conn: conn})
	ack, err := client.Connect(ctx, &paho.Connect{
		ClientID:   "quakeboard-feeder",
		CleanStart: true,
		KeepAlive:  30,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect to broker %s: %w", broker, err)
	}
	if ack.ReasonCode != 0 {
		conn.Close()
		return nil, fmt.Errorf("broker %s refused connection, reason code %d", broker, ack.ReasonCode)
	}
	return &MQTTPublisher{broker: broker, topic: topic, client: client}, nil
}

// Publish sends each message as its own QoS 1 publish.
func (p *MQTTPublisher) Publish(ctx context.Context, batch []models.Message) error {
	for _, msg := range batch {
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode message for %s: %w", msg.DeviceID, err)
		}
		if _, err := p.client.Publish(ctx, &paho.Publish{
			Topic:   p.topic,
			QoS:     1,
			Payload: payload,
		}); err != nil {
			return fmt.Errorf("publish to %s: %w", p.topic, err)
		}
	}
	return nil
}

func (p *MQTTPublisher) Target() string {
	return p.broker + "/" + p.topic
}

func (p *MQTTPublisher) Close() error {
	return p.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}
