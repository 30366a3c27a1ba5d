package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/vitalwatch/internal/metrics"
	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

// KafkaConfig configures the Kafka source.
type KafkaConfig struct {
	Brokers  []string      `yaml:"brokers"`
	Topic    string        `yaml:"topic"`
	GroupID  string        `yaml:"group_id"`
	MinBytes int           `yaml:"min_bytes"`
	MaxBytes int           `yaml:"max_bytes"`
	MaxWait  time.Duration `yaml:"max_wait"`
}

// Validate validates the Kafka configuration.
func (c *KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("at least one broker is required")
	}
	if c.Topic == "" {
		return errors.New("topic is required")
	}
	return nil
}

// messageReader is the part of *kafka.Reader the source uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource reads JSON samples from a Kafka topic.
type KafkaSource struct {
	reader messageReader
	logger *zap.Logger
	now    func() time.Time
}

// NewKafkaSource creates a consumer-group reader for cfg.
func NewKafkaSource(cfg KafkaConfig, logger *zap.Logger) (*KafkaSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka config: %w", err)
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "vitalwatch"
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10e6
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = time.Second
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  cfg.MaxWait,
	})
	return newKafkaSource(reader, logger), nil
}

func newKafkaSource(reader messageReader, logger *zap.Logger) *KafkaSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSource{
		reader: reader,
		logger: logger.Named("kafka_source"),
		now:    time.Now,
	}
}

// Name returns "kafka".
func (k *KafkaSource) Name() string {
	return "kafka"
}

// Run fetches messages until ctx is cancelled, committing each after it
// is handled. The reader is closed on return.
func (k *KafkaSource) Run(ctx context.Context, h Handler) error {
	defer k.reader.Close()

	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		k.handle(ctx, h, msg)

		if err := k.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

func (k *KafkaSource) handle(ctx context.Context, h Handler, msg kafka.Message) {
	metrics.SamplesReceived.WithLabelValues(k.Name()).Inc()

	s, err := models.DecodeSample(msg.Value, k.now())
	if err != nil {
		metrics.SamplesRejected.WithLabelValues(k.Name()).Inc()
		k.logger.Warn("invalid sample",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return
	}

	if err := h(ctx, s); err != nil && ctx.Err() == nil {
		k.logger.Warn("sample handler failed",
			zap.String("patient_id", s.PatientID),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
	}
}
