// Package worker drains event envelopes into a Publisher in batches so that
// node goroutines never wait on the transport.
package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"beacon/internal/logger"
	"beacon/internal/metrics"
	"beacon/internal/models"
)

// Publisher defines the interface for publishing envelopes
type Publisher interface {
	Publish(ctx context.Context, envelope *models.Envelope) error
	PublishBatch(ctx context.Context, envelopes []*models.Envelope) error
}

// Pool owns a bounded queue of envelopes and the workers draining it
type Pool struct {
	publisher    Publisher
	queue        chan *models.Envelope
	workers      int
	batchSize    int
	batchTimeout time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// mu orders enqueues before the stop flag so the drain sees them all
	mu      sync.RWMutex
	stopped atomic.Bool

	processed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// Config holds worker pool configuration
type Config struct {
	Publisher    Publisher
	Workers      int
	BatchSize    int
	BatchTimeout time.Duration
	QueueSize    int
}

// NewPool creates a new worker pool
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 200 * time.Millisecond
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4096
	}

	ctx, cancel := context.WithCancel(context.Background())
	metrics.WorkerQueueCapacity.Set(float64(cfg.QueueSize))

	return &Pool{
		publisher:    cfg.Publisher,
		queue:        make(chan *models.Envelope, cfg.QueueSize),
		workers:      cfg.Workers,
		batchSize:    cfg.BatchSize,
		batchTimeout: cfg.BatchTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins processing envelopes
func (p *Pool) Start() {
	log := logger.WithComponent("worker_pool")
	log.Info().
		Int("workers", p.workers).
		Int("batch_size", p.batchSize).
		Dur("batch_timeout", p.batchTimeout).
		Int("queue_size", cap(p.queue)).
		Msg("starting worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit queues an envelope without blocking. It returns false when the
// queue is full or the pool is stopped; the envelope is then dropped.
func (p *Pool) Submit(envelope *models.Envelope) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped.Load() {
		p.drop()
		return false
	}

	select {
	case p.queue <- envelope:
		metrics.WorkerQueueSize.Set(float64(len(p.queue)))
		return true
	default:
		p.drop()
		return false
	}
}

func (p *Pool) drop() {
	p.dropped.Add(1)
}

// Stop stops accepting envelopes, flushes what is queued and waits for the workers
func (p *Pool) Stop() {
	p.mu.Lock()
	first := p.stopped.CompareAndSwap(false, true)
	p.mu.Unlock()
	if !first {
		return
	}

	log := logger.WithComponent("worker_pool")
	log.Info().Int("queued", len(p.queue)).Msg("stopping worker pool")
	p.cancel()
	p.wg.Wait()
	log.Info().
		Uint64("processed", p.processed.Load()).
		Uint64("failed", p.failed.Load()).
		Uint64("dropped", p.dropped.Load()).
		Msg("worker pool stopped")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log := logger.WithComponent("worker").With().Int("worker_id", id).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("worker").Inc()
		}
	}()

	log.Debug().Msg("worker started")
	defer log.Debug().Msg("worker stopped")

	batch := make([]*models.Envelope, 0, p.batchSize)
	timer := time.NewTimer(p.batchTimeout)
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			p.drain(batch)
			return

		case envelope := <-p.queue:
			metrics.WorkerQueueSize.Set(float64(len(p.queue)))
			batch = append(batch, envelope)

			if len(batch) >= p.batchSize {
				p.publishBatch(batch)
				batch = batch[:0]
				timer.Reset(p.batchTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				p.publishBatch(batch)
				batch = batch[:0]
			}
			timer.Reset(p.batchTimeout)
		}
	}
}

// drain publishes the partial batch plus whatever is still queued
func (p *Pool) drain(batch []*models.Envelope) {
	for {
		select {
		case envelope := <-p.queue:
			batch = append(batch, envelope)
			if len(batch) >= p.batchSize {
				p.publishBatch(batch)
				batch = batch[:0]
			}
		default:
			p.publishBatch(batch)
			metrics.WorkerQueueSize.Set(0)
			return
		}
	}
}

func (p *Pool) publishBatch(batch []*models.Envelope) {
	if len(batch) == 0 {
		return
	}

	log := logger.WithComponent("worker")
	start := time.Now()

	// the pool context may already be cancelled while draining
	ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), 10*time.Second)
	defer cancel()

	err := p.publisher.PublishBatch(ctx, batch)
	duration := time.Since(start)

	metrics.WorkerBatchPublishDuration.Observe(duration.Seconds())

	if err != nil {
		log.Error().
			Err(err).
			Int("batch_size", len(batch)).
			Dur("duration", duration).
			Msg("failed to publish batch")

		p.failed.Add(uint64(len(batch)))
		metrics.WorkerFailedTotal.Add(float64(len(batch)))

		p.publishIndividually(batch)
		return
	}

	log.Debug().
		Int("batch_size", len(batch)).
		Dur("duration", duration).
		Msg("batch published")

	p.processed.Add(uint64(len(batch)))
	metrics.WorkerProcessedTotal.Add(float64(len(batch)))
}

// publishIndividually retries each envelope of a failed batch on its own
func (p *Pool) publishIndividually(batch []*models.Envelope) {
	log := logger.WithComponent("worker")
	log.Warn().Int("count", len(batch)).Msg("attempting individual publish for failed batch")

	for _, envelope := range batch {
		envelope.RetryCount++

		ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), 5*time.Second)
		err := p.publisher.Publish(ctx, envelope)
		cancel()

		if err != nil {
			log.Error().
				Err(err).
				Str("event_id", envelope.Event.ID).
				Int64("device_id", int64(envelope.Event.DeviceID)).
				Str("origin", string(envelope.Event.Origin)).
				Msg("failed to publish envelope individually")
			continue
		}

		p.failed.Add(^uint64(0))
		p.processed.Add(1)
	}
}

// Stats returns worker pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Dropped:   p.dropped.Load(),
		Queued:    len(p.queue),
	}
}

// Stats holds worker pool metrics
type Stats struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Queued    int    `json:"queued"`
}
