package ingest

import (
	"context"
	"errors"
	"hash/fnv"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/vitalwatch/internal/metrics"
	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

// ErrPoolStopped is returned by Submit once the pool is shutting down.
var ErrPoolStopped = errors.New("ingest pool stopped")

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	Workers   int
	QueueSize int
}

// Pool processes samples on a fixed set of workers. Each patient hashes to
// one worker, so a patient's samples are handled in submission order.
type Pool struct {
	handler Handler
	shards  []chan *models.Sample
	logger  *zap.Logger

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	processed atomic.Uint64
	failed    atomic.Uint64
}

// NewPool creates a pool that runs handler for every submitted sample.
func NewPool(cfg PoolConfig, handler Handler, logger *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		handler: handler,
		shards:  make([]chan *models.Sample, cfg.Workers),
		logger:  logger.Named("pool"),
		done:    make(chan struct{}),
	}
	for i := range p.shards {
		p.shards[i] = make(chan *models.Sample, cfg.QueueSize)
	}
	return p
}

// Run starts the workers and blocks until ctx is cancelled. Queued samples
// are drained before Run returns.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("starting ingest pool", zap.Int("workers", len(p.shards)))

	for i := range p.shards {
		p.wg.Add(1)
		go p.worker(i)
	}

	<-ctx.Done()
	p.Stop()
	return nil
}

// Stop signals workers to drain their queues and waits for them.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
	p.wg.Wait()
	p.logger.Info("ingest pool stopped",
		zap.Uint64("processed", p.processed.Load()),
		zap.Uint64("failed", p.failed.Load()))
}

// Submit queues s on its patient's worker. It blocks while that queue is
// full.
func (p *Pool) Submit(ctx context.Context, s *models.Sample) error {
	if s == nil {
		return models.NewValidationError("sample", "sample is required")
	}
	select {
	case <-p.done:
		return ErrPoolStopped
	default:
	}

	shard := p.shards[p.shardFor(s.PatientID)]
	select {
	case shard <- s:
		metrics.QueueDepth.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPoolStopped
	}
}

func (p *Pool) shardFor(patientID string) int {
	h := fnv.New32a()
	h.Write([]byte(patientID))
	return int(h.Sum32() % uint32(len(p.shards)))
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	queue := p.shards[id]
	// Processing outlives the submit context; shutdown only stops intake.
	ctx := context.Background()

	for {
		select {
		case s := <-queue:
			p.process(ctx, id, s)
		case <-p.done:
			for {
				select {
				case s := <-queue:
					p.process(ctx, id, s)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) process(ctx context.Context, worker int, s *models.Sample) {
	metrics.QueueDepth.Dec()
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			p.logger.Error("sample handler panic recovered",
				zap.Int("worker_id", worker),
				zap.String("patient_id", s.PatientID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	if err := p.handler(ctx, s); err != nil {
		p.failed.Add(1)
		p.logger.Warn("sample processing failed",
			zap.Int("worker_id", worker),
			zap.String("patient_id", s.PatientID),
			zap.Error(err))
		return
	}
	p.processed.Add(1)
}

// Processed returns the number of samples handled without error.
func (p *Pool) Processed() uint64 {
	return p.processed.Load()
}

// Failed returns the number of samples whose handler failed or panicked.
func (p *Pool) Failed() uint64 {
	return p.failed.Load()
}
