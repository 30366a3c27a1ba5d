package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher is the subset of mqtt.Client used for publishing.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTConfig holds MQTT notification configuration.
type MQTTConfig struct {
	// Topic is the prefix; notifications go to <Topic>/<patientId>.
	Topic   string        `yaml:"topic"`
	QoS     byte          `yaml:"qos"`
	Timeout time.Duration `yaml:"timeout"`
}

// MQTTNotifier publishes notifications to an MQTT broker.
type MQTTNotifier struct {
	client Publisher
	config MQTTConfig
}

// NewMQTTNotifier creates a new MQTT notifier on an already connected client.
func NewMQTTNotifier(client Publisher, config MQTTConfig) (*MQTTNotifier, error) {
	if client == nil {
		return nil, fmt.Errorf("mqtt client is required")
	}
	if config.Topic == "" {
		config.Topic = "vitalwatch/alerts"
	}
	if config.QoS > 2 {
		return nil, fmt.Errorf("invalid mqtt qos %d", config.QoS)
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &MQTTNotifier{client: client, config: config}, nil
}

// Name returns "mqtt".
func (m *MQTTNotifier) Name() string {
	return "mqtt"
}

// Send publishes n as JSON.
func (m *MQTTNotifier) Send(ctx context.Context, n *Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	topic := strings.TrimSuffix(m.config.Topic, "/") + "/" + n.PatientID
	token := m.client.Publish(topic, m.config.QoS, false, data)

	timer := time.NewTimer(m.config.Timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close is a no-op; the connection is owned by the caller.
func (m *MQTTNotifier) Close() error {
	return nil
}
