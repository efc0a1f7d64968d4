// Package processor assembles the daemon: event publication, the node
// manager loaded from the inventory, and the ops HTTP server.
package processor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"beacon/internal/config"
	"beacon/internal/handlers"
	"beacon/internal/kafka"
	"beacon/internal/logger"
	"beacon/internal/manager"
	"beacon/internal/middleware"
	"beacon/internal/models"
	"beacon/internal/worker"
)

// publisher is what the worker pool drains into
type publisher interface {
	worker.Publisher
	HealthCheck(ctx context.Context) error
	Close() error
}

// logCloser adapts LogPublisher to publisher
type logCloser struct{ *worker.LogPublisher }

func (logCloser) Close() error { return nil }

// Processor owns every long-running part of the daemon.
type Processor struct {
	cfg        *config.Config
	publisher  publisher
	producer   *kafka.Producer
	workerPool *worker.Pool
	receiver   *EventReceiver
	manager    *manager.Manager
	httpServer *http.Server
	listener   net.Listener
	wg         sync.WaitGroup
}

// New constructs a Processor with given config.
func New(cfg *config.Config) *Processor {
	return &Processor{cfg: cfg}
}

// Run starts background goroutines and blocks until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	log := logger.WithComponent("processor")
	log.Info().Str("node", p.cfg.NodeName).Msg("processor starting")

	if err := p.initPublisher(); err != nil {
		return fmt.Errorf("failed to initialize publisher: %w", err)
	}

	p.workerPool = worker.NewPool(worker.Config{
		Publisher:    p.publisher,
		Workers:      p.cfg.Worker.Workers,
		BatchSize:    p.cfg.Worker.BatchSize,
		BatchTimeout: p.cfg.Worker.BatchTimeout,
		QueueSize:    p.cfg.Worker.QueueSize,
	})
	p.workerPool.Start()

	p.receiver = NewEventReceiver(p.workerPool, p.cfg.NodeName)
	p.manager = manager.New(p.cfg.Polling, p.cfg.Sweep, p.receiver)

	if err := p.loadInventory(); err != nil {
		p.stopPipeline()
		return fmt.Errorf("failed to load inventory: %w", err)
	}

	if err := p.initHTTPServer(); err != nil {
		p.stopPipeline()
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}
	p.receiver.OnSystem(fmt.Sprintf("engine started on %s with %d devices", p.cfg.NodeName, len(p.cfg.Devices)))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Info().Str("addr", p.listener.Addr().String()).Msg("starting HTTP server")
		if err := p.httpServer.Serve(p.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reportStats(ctx)
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	return p.shutdown()
}

func (p *Processor) initPublisher() error {
	log := logger.WithComponent("processor")

	if len(p.cfg.Kafka.Brokers) == 0 {
		log.Warn().Msg("no kafka brokers configured, events are written to the log")
		p.publisher = logCloser{worker.NewLogPublisher()}
		return nil
	}

	producer, err := kafka.NewProducer(p.cfg.Kafka.Brokers, p.cfg.Kafka.Topic, p.cfg.Kafka.Producer)
	if err != nil {
		return err
	}
	p.producer = producer
	p.publisher = producer
	return nil
}

// loadInventory registers credentials, limits and devices from the config
// and starts the configured sweeps.
func (p *Processor) loadInventory() error {
	log := logger.WithComponent("processor")

	for _, c := range p.cfg.Credentials {
		if err := p.manager.AddCredential(c); err != nil {
			return fmt.Errorf("credential %q: %w", c.Name, err)
		}
	}

	for _, l := range p.cfg.Limits {
		p.manager.SetLimit(models.DeviceID(l.Device), l.Index, l.OID, l.Limit)
	}

	for _, d := range p.cfg.Devices {
		id := models.DeviceID(d.ID)
		if len(d.ExtraOIDs) > 0 {
			p.manager.SetExtraOIDs(id, d.ExtraOIDs)
		}

		err := p.manager.CreateNode(manager.NodeSpec{
			ID:       id,
			Address:  d.Address,
			Protocol: d.Protocol,
			Port:     d.Port,
			Version:  d.Version,
			Security: d.Security,
			Level:    d.Level,
		})
		if err != nil {
			return fmt.Errorf("device %d: %w", d.ID, err)
		}
	}

	for _, s := range p.cfg.Sweep.Targets {
		jobID, err := p.manager.Sweep(s.Network, s.Mask, p.cfg.Profiles)
		if err != nil {
			return fmt.Errorf("sweep %s/%d: %w", s.Network, s.Mask, err)
		}
		log.Info().Str("job_id", jobID).Str("network", s.Network).Int("mask", s.Mask).Msg("sweep scheduled")
	}

	log.Info().
		Int("devices", len(p.cfg.Devices)).
		Int("credentials", len(p.cfg.Credentials)).
		Int("limits", len(p.cfg.Limits)).
		Int("sweeps", len(p.cfg.Sweep.Targets)).
		Msg("inventory loaded")
	return nil
}

func (p *Processor) initHTTPServer() error {
	mux := http.NewServeMux()

	ops := handlers.NewOps(p.manager, p.publisher, p.extraStats)
	ops.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	ln, err := net.Listen("tcp", p.cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	p.listener = ln

	p.httpServer = &http.Server{
		Handler:      middleware.Chain(mux, middleware.Recovery, middleware.Logging),
		ReadTimeout:  p.cfg.HTTP.ReadTimeout,
		WriteTimeout: p.cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return nil
}

func (p *Processor) extraStats() map[string]any {
	out := map[string]any{"worker": p.workerPool.Stats()}
	if p.producer != nil {
		out["producer"] = p.producer.Stats()
	}
	return out
}

func (p *Processor) shutdown() error {
	log := logger.WithComponent("processor")
	log.Info().Msg("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	p.receiver.OnSystem(fmt.Sprintf("engine stopping on %s", p.cfg.NodeName))
	p.stopPipeline()
	p.wg.Wait()

	log.Info().Msg("processor stopped gracefully")
	return nil
}

// stopPipeline closes the manager first so no new events arrive, then
// flushes the worker pool and closes the publisher.
func (p *Processor) stopPipeline() {
	log := logger.WithComponent("processor")

	if err := p.manager.Close(); err != nil {
		log.Error().Err(err).Msg("manager close error")
	}

	done := make(chan struct{})
	go func() {
		p.workerPool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		log.Warn().Msg("worker shutdown timeout - forcing exit")
	}

	if err := p.publisher.Close(); err != nil {
		log.Error().Err(err).Msg("publisher close error")
	}
}

// reportStats periodically logs statistics
func (p *Processor) reportStats(ctx context.Context) {
	log := logger.WithComponent("processor")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ms := p.manager.Stats()
			ws := p.workerPool.Stats()

			e := log.Info().
				Int("nodes", ms.Nodes).
				Int("snmp_outstanding", ms.Outstanding).
				Uint64("events_processed", ws.Processed).
				Uint64("events_failed", ws.Failed).
				Uint64("events_dropped", ws.Dropped).
				Int("queue_size", ws.Queued)
			if p.producer != nil {
				ps := p.producer.Stats()
				e = e.Uint64("producer_sent", ps.MessagesSent).
					Uint64("producer_failed", ps.MessagesFailed).
					Uint64("producer_bytes", ps.BytesWritten)
			}
			e.Msg("stats")
		}
	}
}
