package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/vitalwatch/internal/metrics"
	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

// RedisConfig configures the Redis Streams source.
type RedisConfig struct {
	Stream   string        `yaml:"stream"`
	Group    string        `yaml:"group"`
	Consumer string        `yaml:"consumer"`
	Field    string        `yaml:"field"` // message field holding the JSON sample
	Count    int64         `yaml:"count"`
	Block    time.Duration `yaml:"block"`
}

func (c *RedisConfig) setDefaults() {
	if c.Stream == "" {
		c.Stream = "vitals"
	}
	if c.Group == "" {
		c.Group = "vitalwatch"
	}
	if c.Consumer == "" {
		c.Consumer = "vitalwatch-1"
	}
	if c.Field == "" {
		c.Field = "data"
	}
	if c.Count <= 0 {
		c.Count = 64
	}
	if c.Block <= 0 {
		c.Block = 5 * time.Second
	}
}

// RedisSource reads samples from a Redis stream through a consumer group.
type RedisSource struct {
	client redis.UniversalClient
	cfg    RedisConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewRedisSource creates a Redis Streams source.
func NewRedisSource(client redis.UniversalClient, cfg RedisConfig, logger *zap.Logger) *RedisSource {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSource{
		client: client,
		cfg:    cfg,
		logger: logger.Named("redis_source"),
		now:    time.Now,
	}
}

// Name returns "redis".
func (r *RedisSource) Name() string {
	return "redis"
}

// Run consumes the stream until ctx is cancelled. Every message is
// acknowledged once handled, including messages that fail to decode.
func (r *RedisSource) Run(ctx context.Context, h Handler) error {
	if err := r.ensureGroup(ctx); err != nil {
		return err
	}
	r.logger.Info("consuming stream",
		zap.String("stream", r.cfg.Stream),
		zap.String("group", r.cfg.Group),
		zap.String("consumer", r.cfg.Consumer))

	for {
		if ctx.Err() != nil {
			return nil
		}

		streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    r.cfg.Group,
			Consumer: r.cfg.Consumer,
			Streams:  []string{r.cfg.Stream, ">"},
			Count:    r.cfg.Count,
			Block:    r.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read stream %s: %w", r.cfg.Stream, err)
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				r.handle(ctx, h, msg)
				if err := r.client.XAck(ctx, r.cfg.Stream, r.cfg.Group, msg.ID).Err(); err != nil && ctx.Err() == nil {
					r.logger.Warn("ack failed", zap.String("id", msg.ID), zap.Error(err))
				}
			}
		}
	}
}

func (r *RedisSource) handle(ctx context.Context, h Handler, msg redis.XMessage) {
	metrics.SamplesReceived.WithLabelValues(r.Name()).Inc()

	raw, ok := msg.Values[r.cfg.Field].(string)
	if !ok {
		metrics.SamplesRejected.WithLabelValues(r.Name()).Inc()
		r.logger.Warn("message without sample payload",
			zap.String("id", msg.ID), zap.String("field", r.cfg.Field))
		return
	}

	s, err := models.DecodeSample([]byte(raw), r.now())
	if err != nil {
		metrics.SamplesRejected.WithLabelValues(r.Name()).Inc()
		r.logger.Warn("invalid sample", zap.String("id", msg.ID), zap.Error(err))
		return
	}

	if err := h(ctx, s); err != nil && ctx.Err() == nil {
		r.logger.Warn("sample handler failed",
			zap.String("id", msg.ID),
			zap.String("patient_id", s.PatientID),
			zap.Error(err))
	}
}

func (r *RedisSource) ensureGroup(ctx context.Context) error {
	err := r.client.XGroupCreateMkStream(ctx, r.cfg.Stream, r.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", r.cfg.Group, err)
	}
	return nil
}

// PublishSample appends a JSON sample payload to a stream in the layout
// RedisSource reads.
func PublishSample(ctx context.Context, client redis.UniversalClient, stream, field string, payload []byte) (string, error) {
	if field == "" {
		field = "data"
	}
	return client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{field: string(payload)},
	}).Result()
}
