// Package ingest moves telemetry samples from transports through storage,
// rule evaluation and alert creation.
package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/vitalwatch/internal/alerting"
	"github.com/good-yellow-bee/vitalwatch/internal/metrics"
	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

// Handler consumes one decoded sample.
type Handler func(ctx context.Context, s *models.Sample) error

// Source delivers samples from a transport until ctx is cancelled.
type Source interface {
	Name() string
	Run(ctx context.Context, h Handler) error
}

// SampleWriter persists samples.
type SampleWriter interface {
	Put(ctx context.Context, s *models.Sample) error
}

// Evaluator decides whether a sample alerts.
type Evaluator interface {
	Evaluate(ctx context.Context, patientID string, s *models.Sample) (*alerting.Decision, error)
}

// Firer persists and announces alerts.
type Firer interface {
	Fire(ctx context.Context, patientID string, s *models.Sample, d alerting.Decision) (*models.Alert, error)
}

// Result describes what processing did with one sample.
type Result struct {
	Sample   *models.Sample    `json:"sample"`
	Decision alerting.Decision `json:"decision"`
	Alert    *models.Alert     `json:"alert,omitempty"`

	// Duplicate is set when a sample with the same key was already stored.
	Duplicate bool `json:"duplicate"`
}

// Pipeline stores a sample, evaluates it and fires the resulting alert.
type Pipeline struct {
	samples SampleWriter
	engine  Evaluator
	alerts  Firer
	logger  *zap.Logger
	now     func() time.Time
}

// NewPipeline creates a pipeline.
func NewPipeline(samples SampleWriter, engine Evaluator, alerts Firer, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		samples: samples,
		engine:  engine,
		alerts:  alerts,
		logger:  logger.Named("ingest"),
		now:     time.Now,
	}
}

// Process runs one sample through the pipeline. A duplicate sample is
// reported in the result and not evaluated again.
func (p *Pipeline) Process(ctx context.Context, s *models.Sample) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.ProcessDuration.Observe(time.Since(start).Seconds())
	}()

	if s == nil {
		metrics.SamplesProcessed.WithLabelValues("rejected").Inc()
		return nil, models.NewValidationError("sample", "sample is required")
	}
	if err := s.Validate(); err != nil {
		metrics.SamplesProcessed.WithLabelValues("rejected").Inc()
		return nil, err
	}
	s.Normalize(p.now())

	res := &Result{Sample: s}
	if err := p.samples.Put(ctx, s); err != nil {
		if models.IsConflict(err) {
			metrics.SamplesProcessed.WithLabelValues("duplicate").Inc()
			p.logger.Debug("duplicate sample ignored",
				zap.String("patient_id", s.PatientID),
				zap.Time("timestamp", s.Timestamp))
			res.Duplicate = true
			return res, nil
		}
		metrics.SamplesProcessed.WithLabelValues("failed").Inc()
		return nil, models.Dependency("store sample", err)
	}

	d, err := p.engine.Evaluate(ctx, s.PatientID, s)
	if err != nil {
		metrics.SamplesProcessed.WithLabelValues("failed").Inc()
		return nil, err
	}
	res.Decision = *d

	if !d.ShouldAlert {
		metrics.SamplesProcessed.WithLabelValues("stored").Inc()
		return res, nil
	}

	a, err := p.alerts.Fire(ctx, s.PatientID, s, *d)
	if err != nil {
		metrics.SamplesProcessed.WithLabelValues("failed").Inc()
		return nil, err
	}
	res.Alert = a
	metrics.SamplesProcessed.WithLabelValues("alerted").Inc()
	return res, nil
}

// Handle adapts Process to a Handler.
func (p *Pipeline) Handle(ctx context.Context, s *models.Sample) error {
	_, err := p.Process(ctx, s)
	return err
}
