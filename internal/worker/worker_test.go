package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"beacon/internal/models"
)

type mockPublisher struct {
	published  atomic.Uint64
	batches    atomic.Uint64
	failBatch  bool
	failSingle bool

	mu      sync.Mutex
	retried []int
}

func (m *mockPublisher) Publish(ctx context.Context, envelope *models.Envelope) error {
	m.mu.Lock()
	m.retried = append(m.retried, envelope.RetryCount)
	m.mu.Unlock()

	if m.failSingle {
		return context.DeadlineExceeded
	}
	m.published.Add(1)
	return nil
}

func (m *mockPublisher) PublishBatch(ctx context.Context, envelopes []*models.Envelope) error {
	if m.failBatch {
		return errors.New("broker unavailable")
	}
	m.batches.Add(1)
	m.published.Add(uint64(len(envelopes)))
	return nil
}

func envelope() *models.Envelope {
	ev := models.NewEvent(models.OriginStatus, 42, models.LevelNormal, "reachable")
	return models.NewEnvelope(ev, "test-node")
}

func TestPoolProcessesEnvelopes(t *testing.T) {
	mock := &mockPublisher{}
	pool := NewPool(Config{
		Publisher:    mock,
		Workers:      2,
		BatchSize:    10,
		BatchTimeout: 50 * time.Millisecond,
		QueueSize:    100,
	})
	pool.Start()
	defer pool.Stop()

	for i := 0; i < 25; i++ {
		if !pool.Submit(envelope()) {
			t.Fatalf("submit %d rejected", i)
		}
	}

	time.Sleep(300 * time.Millisecond)

	if got := pool.Stats().Processed; got != 25 {
		t.Errorf("expected 25 processed, got %d", got)
	}
	if got := mock.published.Load(); got != 25 {
		t.Errorf("expected 25 published, got %d", got)
	}
}

func TestPoolBatching(t *testing.T) {
	mock := &mockPublisher{}
	pool := NewPool(Config{
		Publisher:    mock,
		Workers:      1,
		BatchSize:    5,
		BatchTimeout: time.Second,
	})
	pool.Start()
	defer pool.Stop()

	for i := 0; i < 5; i++ {
		pool.Submit(envelope())
	}
	time.Sleep(200 * time.Millisecond)

	if got := mock.batches.Load(); got != 1 {
		t.Errorf("expected one full batch, got %d", got)
	}
}

func TestPoolTimeoutBatch(t *testing.T) {
	mock := &mockPublisher{}
	pool := NewPool(Config{
		Publisher:    mock,
		Workers:      1,
		BatchSize:    100,
		BatchTimeout: 50 * time.Millisecond,
	})
	pool.Start()
	defer pool.Stop()

	for i := 0; i < 3; i++ {
		pool.Submit(envelope())
	}
	time.Sleep(300 * time.Millisecond)

	if got := mock.published.Load(); got != 3 {
		t.Errorf("expected 3 published via timeout, got %d", got)
	}
}

func TestPoolDropsWhenFull(t *testing.T) {
	pool := NewPool(Config{Publisher: &mockPublisher{}, QueueSize: 2})

	// not started, nothing drains the queue
	accepted := 0
	for i := 0; i < 5; i++ {
		if pool.Submit(envelope()) {
			accepted++
		}
	}

	if accepted != 2 {
		t.Errorf("expected 2 accepted, got %d", accepted)
	}
	if got := pool.Stats().Dropped; got != 3 {
		t.Errorf("expected 3 dropped, got %d", got)
	}
}

func TestPoolStopFlushesQueue(t *testing.T) {
	mock := &mockPublisher{}
	pool := NewPool(Config{
		Publisher:    mock,
		Workers:      1,
		BatchSize:    100,
		BatchTimeout: time.Hour,
	})
	pool.Start()

	for i := 0; i < 7; i++ {
		pool.Submit(envelope())
	}
	pool.Stop()
	pool.Stop()

	if got := mock.published.Load(); got != 7 {
		t.Errorf("expected 7 published on stop, got %d", got)
	}
	if pool.Submit(envelope()) {
		t.Error("submit accepted after stop")
	}
}

func TestPoolIndividualFallback(t *testing.T) {
	mock := &mockPublisher{failBatch: true}
	pool := NewPool(Config{
		Publisher:    mock,
		Workers:      1,
		BatchSize:    3,
		BatchTimeout: time.Hour,
	})
	pool.Start()

	for i := 0; i < 3; i++ {
		pool.Submit(envelope())
	}
	pool.Stop()

	stats := pool.Stats()
	if stats.Processed != 3 || stats.Failed != 0 {
		t.Errorf("expected 3 processed and 0 failed, got %+v", stats)
	}
	for _, rc := range mock.retried {
		if rc != 1 {
			t.Errorf("expected retry count 1, got %d", rc)
		}
	}
}

func TestPoolCountsFailures(t *testing.T) {
	mock := &mockPublisher{failBatch: true, failSingle: true}
	pool := NewPool(Config{Publisher: mock, Workers: 1, BatchSize: 2, BatchTimeout: time.Hour})
	pool.Start()

	pool.Submit(envelope())
	pool.Submit(envelope())
	pool.Stop()

	if got := pool.Stats().Failed; got != 2 {
		t.Errorf("expected 2 failed, got %d", got)
	}
}

func TestPoolSubmitRacingStopLosesNothing(t *testing.T) {
	for round := 0; round < 20; round++ {
		mock := &mockPublisher{}
		pool := NewPool(Config{
			Publisher:    mock,
			Workers:      2,
			BatchSize:    8,
			BatchTimeout: time.Millisecond,
			QueueSize:    1024,
		})
		pool.Start()

		var accepted, rejected atomic.Uint64
		var wg sync.WaitGroup
		start := make(chan struct{})
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for i := 0; i < 50; i++ {
					if pool.Submit(envelope()) {
						accepted.Add(1)
					} else {
						rejected.Add(1)
					}
				}
			}()
		}

		close(start)
		pool.Stop()
		wg.Wait()

		if got, want := mock.published.Load(), accepted.Load(); got != want {
			t.Fatalf("round %d: %d accepted but %d published", round, want, got)
		}
		stats := pool.Stats()
		if stats.Dropped != rejected.Load() {
			t.Fatalf("round %d: %d rejected but %d counted as dropped", round, rejected.Load(), stats.Dropped)
		}
		if stats.Queued != 0 {
			t.Fatalf("round %d: %d envelopes left queued", round, stats.Queued)
		}
	}
}
