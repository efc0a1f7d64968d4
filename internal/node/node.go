// Package node runs the liveness loop of a single device.
package node

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"beacon/internal/logger"
	"beacon/internal/metrics"
	"beacon/internal/models"
)

// State is the lifecycle position of a node
type State int32

const (
	Idle State = iota
	Queued
	Probing
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Queued:
		return "queued"
	case Probing:
		return "probing"
	default:
		return "closed"
	}
}

// Prober performs one liveness attempt and returns the measured round trip.
type Prober interface {
	Probe(ctx context.Context, timeout time.Duration) (time.Duration, error)
}

// ProberFunc adapts a function to Prober
type ProberFunc func(ctx context.Context, timeout time.Duration) (time.Duration, error)

func (f ProberFunc) Probe(ctx context.Context, timeout time.Duration) (time.Duration, error) {
	return f(ctx, timeout)
}

// Listener receives node events. Events of one node are delivered in order
// from the node's own goroutine.
type Listener interface {
	// OnLiveness reports the round trip in milliseconds, or -1 after every attempt failed
	OnLiveness(id models.DeviceID, rtt int64)
	OnStatus(id models.DeviceID, code int)
	OnSample(id models.DeviceID, oid, index, value string)
	OnClose(id models.DeviceID)
}

// Config is the initial policy of a node
type Config struct {
	Timeout time.Duration
	Retry   int
	// Limiter bounds probes running at once across nodes; nil means unbounded
	Limiter *semaphore.Weighted
}

// pollFunc runs after a successful liveness check, before the liveness event
type pollFunc func(ctx context.Context, n *Node)

// Node owns a private request queue and probes its device one request at a time.
type Node struct {
	id       models.DeviceID
	protocol models.Protocol
	prober   Prober
	listener Listener
	poll     pollFunc
	limiter  *semaphore.Weighted

	queue     chan time.Duration
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	// closing ends a wait for a probe slot; attempts run to their own timeout
	closing context.Context
	cancel  context.CancelFunc

	state   atomic.Int32
	timeout atomic.Int64
	retry   atomic.Int32

	log zerolog.Logger
}

func newNode(id models.DeviceID, protocol models.Protocol, prober Prober, listener Listener, cfg Config, poll pollFunc) *Node {
	closing, cancel := context.WithCancel(context.Background())

	n := &Node{
		id:       id,
		protocol: protocol,
		prober:   prober,
		listener: listener,
		poll:     poll,
		limiter:  cfg.Limiter,
		queue:    make(chan time.Duration, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		closing:  closing,
		cancel:   cancel,
		log:      logger.WithDevice("node", id).With().Str("protocol", string(protocol)).Logger(),
	}
	n.SetTimeout(cfg.Timeout)
	n.SetRetry(cfg.Retry)

	go n.run()
	return n
}

// New starts a node probing with prober. Protocol labels events and metrics.
func New(id models.DeviceID, protocol models.Protocol, prober Prober, listener Listener, cfg Config) *Node {
	return newNode(id, protocol, prober, listener, cfg, nil)
}

func (n *Node) ID() models.DeviceID { return n.id }

func (n *Node) Protocol() models.Protocol { return n.protocol }

func (n *Node) State() State { return State(n.state.Load()) }

func (n *Node) closed() bool { return n.State() == Closed }

// Ping schedules one probe after delay. It is ignored unless the node is
// idle, so at most one probe is ever queued or running.
func (n *Node) Ping(delay time.Duration) bool {
	if !n.state.CompareAndSwap(int32(Idle), int32(Queued)) {
		return false
	}
	select {
	case n.queue <- delay:
		return true
	case <-n.quit:
		return false
	}
}

// SetTimeout applies to attempts started after the call.
func (n *Node) SetTimeout(d time.Duration) {
	n.timeout.Store(int64(d))
}

// SetRetry applies to probes started after the call.
func (n *Node) SetRetry(retry int) {
	if retry < 0 {
		retry = 0
	}
	n.retry.Store(int32(retry))
}

func (n *Node) Timeout() time.Duration { return time.Duration(n.timeout.Load()) }

func (n *Node) Retry() int { return int(n.retry.Load()) }

// Close stops the node. An in-flight attempt is left to finish or time out
// and none of its events are delivered. With wait the call returns only
// after the close notification has been delivered.
func (n *Node) Close(wait bool) {
	n.closeOnce.Do(func() {
		n.state.Store(int32(Closed))
		n.cancel()
		close(n.quit)
	})
	if wait {
		<-n.done
	}
}

// Done is closed once the node has stopped.
func (n *Node) Done() <-chan struct{} { return n.done }

func (n *Node) run() {
	defer n.finish()

	for {
		select {
		case <-n.quit:
			return
		case delay := <-n.queue:
			if delay > 0 {
				t := time.NewTimer(delay)
				select {
				case <-t.C:
				case <-n.quit:
					t.Stop()
					return
				}
			}

			if !n.state.CompareAndSwap(int32(Queued), int32(Probing)) {
				return
			}

			rtt := n.cycle()
			if rtt >= 0 && n.poll != nil {
				n.safePoll()
			}

			if !n.state.CompareAndSwap(int32(Probing), int32(Idle)) {
				return
			}
			n.listener.OnLiveness(n.id, rtt)
		}
	}
}

func (n *Node) finish() {
	n.state.Store(int32(Closed))
	n.log.Debug().Msg("node closed")
	n.listener.OnClose(n.id)
	close(n.done)
}

// cycle makes up to retry+1 attempts and returns the first round trip in
// milliseconds, or -1.
func (n *Node) cycle() int64 {
	if n.limiter != nil {
		if err := n.limiter.Acquire(n.closing, 1); err != nil {
			return -1
		}
		defer n.limiter.Release(1)
	}

	timeout, retry := n.Timeout(), n.Retry()
	for attempt := 0; attempt <= retry; attempt++ {
		if n.closed() {
			return -1
		}

		rtt, err := n.attempt(timeout)
		if err == nil {
			metrics.ProbesTotal.WithLabelValues(string(n.protocol), "success").Inc()
			metrics.ProbeDuration.WithLabelValues(string(n.protocol)).Observe(rtt.Seconds())
			return rtt.Milliseconds()
		}

		n.log.Debug().Err(err).Int("attempt", attempt+1).Msg("liveness attempt failed")
	}

	metrics.ProbesTotal.WithLabelValues(string(n.protocol), "unreachable").Inc()
	return -1
}

func (n *Node) attempt(timeout time.Duration) (rtt time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("probe panic recovered")
			metrics.PanicsRecovered.WithLabelValues("node").Inc()
			err = fmt.Errorf("probe panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	rtt, err = n.prober.Probe(ctx, timeout)
	if err == nil && rtt <= 0 {
		rtt = time.Since(start)
	}
	return rtt, err
}

func (n *Node) safePoll() {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("poll panic recovered")
			metrics.PanicsRecovered.WithLabelValues("node").Inc()
		}
	}()
	n.poll(context.Background(), n)
}
