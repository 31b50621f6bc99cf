package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/eclipse/paho.golang/paho"
)

// MQTTSource subscribes to a telemetry topic on an MQTT v5 broker.
type MQTTSource struct {
	broker   string
	topic    string
	clientID string
	log      *slog.Logger
}

// NewMQTTSource creates a source for a tcp broker address such as localhost:1883.
func NewMQTTSource(broker, topic, clientID string, log *slog.Logger) *MQTTSource {
	return &MQTTSource{
		broker:   broker,
		topic:    topic,
		clientID: clientID,
		log:      log.With("component", "ingest", "source", "mqtt"),
	}
}

// Name implements Source.
func (s *MQTTSource) Name() string {
	return "mqtt"
}

// Run connects, subscribes and forwards publishes until ctx is done or the
// broker drops the connection.
func (s *MQTTSource) Run(ctx context.Context, sink Sink) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.broker)
	if err != nil {
		return fmt.Errorf("dial broker %s: %w", s.broker, err)
	}

	failed := make(chan error, 1)
	client := paho.NewClient(paho.ClientConfig{
		ClientID: s.clientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				if err := deliver(ctx, sink, pr.Packet.Payload, s.log); err != nil {
					return false, err
				}
				return true, nil
			},
		},
		OnClientError: func(err error) {
			select {
			case failed <- err:
			default:
			}
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			select {
			case failed <- fmt.Errorf("broker disconnected, reason code %d", d.ReasonCode):
			default:
			}
		},
	})

	ack, err := client.Connect(ctx, &paho.Connect{
		ClientID:   s.clientID,
		CleanStart: true,
		KeepAlive:  30,
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("connect to broker %s: %w", s.broker, err)
	}
	if ack.ReasonCode != 0 {
		conn.Close()
		return fmt.Errorf("broker %s refused connection, reason code %d", s.broker, ack.ReasonCode)
	}

	if _, err := client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: s.topic, QoS: 1}},
	}); err != nil {
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return fmt.Errorf("subscribe to %s: %w", s.topic, err)
	}
	s.log.Info("subscribed to telemetry topic", "broker", s.broker, "topic", s.topic)

	select {
	case <-ctx.Done():
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return nil
	case err := <-failed:
		return fmt.Errorf("mqtt connection lost: %w", err)
	}
}
