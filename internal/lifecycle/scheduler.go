package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultExpirySchedule runs expiry once an hour.
const DefaultExpirySchedule = "@every 1h"

// Expirer runs one retention pass.
type Expirer interface {
	Expire(ctx context.Context) (ExpiryResult, error)
}

// Scheduler runs Expire on a cron schedule.
type Scheduler struct {
	expirer  Expirer
	schedule string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewScheduler validates schedule and returns a Scheduler. An empty
// schedule selects DefaultExpirySchedule.
func NewScheduler(expirer Expirer, schedule string, logger *zap.Logger) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultExpirySchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid expiry schedule %q: %w", schedule, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		expirer:  expirer,
		schedule: schedule,
		timeout:  5 * time.Minute,
		logger:   logger.Named("expiry"),
	}, nil
}

// Run schedules expiry passes until ctx is cancelled, then waits for a
// running pass to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, func() { s.runOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule expiry: %w", err)
	}

	s.logger.Info("expiry scheduler started", zap.String("schedule", s.schedule))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("expiry scheduler stopped")
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	res, err := s.expirer.Expire(ctx)
	if err != nil {
		s.logger.Error("expiry pass failed", zap.Error(err))
		return
	}
	s.logger.Debug("expiry pass complete",
		zap.Int64("alerts", res.Alerts),
		zap.Int64("samples", res.Samples),
		zap.Duration("took", time.Since(start)))
}
