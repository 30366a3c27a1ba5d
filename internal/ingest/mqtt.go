package ingest

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/vitalwatch/internal/metrics"
	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

// MQTTConfig configures the MQTT source.
type MQTTConfig struct {
	Topic string `yaml:"topic"`
	QoS   byte   `yaml:"qos"`
}

// Subscriber is the part of mqtt.Client the source uses.
type Subscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// MQTTSource receives JSON samples published by bedside devices.
type MQTTSource struct {
	client Subscriber
	cfg    MQTTConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewMQTTSource creates an MQTT source on an already connected client.
func NewMQTTSource(client Subscriber, cfg MQTTConfig, logger *zap.Logger) *MQTTSource {
	if cfg.Topic == "" {
		cfg.Topic = "vitalwatch/vitals/#"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MQTTSource{
		client: client,
		cfg:    cfg,
		logger: logger.Named("mqtt_source"),
		now:    time.Now,
	}
}

// Name returns "mqtt".
func (m *MQTTSource) Name() string {
	return "mqtt"
}

// Run subscribes and delivers samples until ctx is cancelled.
func (m *MQTTSource) Run(ctx context.Context, h Handler) error {
	token := m.client.Subscribe(m.cfg.Topic, m.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		m.handle(ctx, h, msg)
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", m.cfg.Topic, token.Error())
	}
	m.logger.Info("subscribed", zap.String("topic", m.cfg.Topic))

	<-ctx.Done()

	if t := m.client.Unsubscribe(m.cfg.Topic); t.WaitTimeout(2*time.Second) && t.Error() != nil {
		m.logger.Warn("unsubscribe failed", zap.Error(t.Error()))
	}
	return nil
}

func (m *MQTTSource) handle(ctx context.Context, h Handler, msg mqtt.Message) {
	metrics.SamplesReceived.WithLabelValues(m.Name()).Inc()

	s, err := models.DecodeSample(msg.Payload(), m.now())
	if err != nil {
		metrics.SamplesRejected.WithLabelValues(m.Name()).Inc()
		m.logger.Warn("invalid sample", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}

	if err := h(ctx, s); err != nil && ctx.Err() == nil {
		m.logger.Warn("sample handler failed",
			zap.String("topic", msg.Topic()),
			zap.String("patient_id", s.PatientID),
			zap.Error(err))
	}
}
