package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"beacon/internal/catalog"
	"beacon/internal/models"
	"beacon/internal/snmp"
)

type recorder struct {
	mu     sync.Mutex
	events []string
	live   chan int64
	closed chan models.DeviceID
}

func newRecorder() *recorder {
	return &recorder{
		live:   make(chan int64, 16),
		closed: make(chan models.DeviceID, 4),
	}
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) OnLiveness(id models.DeviceID, rtt int64) {
	if rtt < 0 {
		r.add("liveness:-1")
	} else {
		r.add("liveness")
	}
	r.live <- rtt
}

func (r *recorder) OnStatus(id models.DeviceID, code int) {
	r.add(fmt.Sprintf("status:%d", code))
}

func (r *recorder) OnSample(id models.DeviceID, oid, index, value string) {
	r.add("sample:" + oid + "." + index + "=" + value)
}

func (r *recorder) OnClose(id models.DeviceID) {
	r.add("close")
	r.closed <- id
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) waitLive(t *testing.T) int64 {
	t.Helper()
	select {
	case rtt := <-r.live:
		return rtt
	case <-time.After(2 * time.Second):
		t.Fatal("no liveness event")
		return 0
	}
}

// failN fails the first n attempts
func failN(n int32, calls *atomic.Int32) ProberFunc {
	return func(ctx context.Context, timeout time.Duration) (time.Duration, error) {
		if calls.Add(1) <= n {
			return 0, errors.New("down")
		}
		return 3 * time.Millisecond, nil
	}
}

func TestNodeSuccess(t *testing.T) {
	rec := newRecorder()
	var calls atomic.Int32
	n := New(7, models.ProtocolICMP, failN(0, &calls), rec, Config{Timeout: time.Second})
	defer n.Close(true)

	require.True(t, n.Ping(0))
	assert.Equal(t, int64(3), rec.waitLive(t))
	assert.Equal(t, int32(1), calls.Load())

	// the state returns to idle before the event, so the next ping is accepted
	assert.True(t, n.Ping(0))
	rec.waitLive(t)
}

func TestNodeRetry(t *testing.T) {
	tests := []struct {
		name  string
		retry int
		fail  int32
		want  int64
		calls int32
	}{
		{"succeeds on last attempt", 2, 2, 3, 3},
		{"exhausts attempts", 1, 5, -1, 2},
		{"no retry", 0, 1, -1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRecorder()
			var calls atomic.Int32
			n := New(1, models.ProtocolTCP, failN(tt.fail, &calls), rec, Config{Timeout: time.Second, Retry: tt.retry})
			defer n.Close(true)

			n.Ping(0)
			assert.Equal(t, tt.want, rec.waitLive(t))
			assert.Equal(t, tt.calls, calls.Load())
		})
	}
}

func TestNodeSingleOutstandingRequest(t *testing.T) {
	rec := newRecorder()
	var calls atomic.Int32
	n := New(1, models.ProtocolICMP, failN(0, &calls), rec, Config{Timeout: time.Second})
	defer n.Close(true)

	require.True(t, n.Ping(50*time.Millisecond))
	assert.False(t, n.Ping(0))
	assert.False(t, n.Ping(0))
	assert.Equal(t, Queued, n.State())

	rec.waitLive(t)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, Idle, n.State())
}

func TestNodeCloseOnce(t *testing.T) {
	rec := newRecorder()
	var calls atomic.Int32
	n := New(9, models.ProtocolICMP, failN(0, &calls), rec, Config{Timeout: time.Second})

	n.Close(true)
	n.Close(true)
	n.Close(false)

	assert.Equal(t, Closed, n.State())
	assert.False(t, n.Ping(0))
	assert.Equal(t, []string{"close"}, rec.snapshot())
	assert.Equal(t, models.DeviceID(9), <-rec.closed)
}

func TestNodeCloseDuringProbe(t *testing.T) {
	rec := newRecorder()
	started := make(chan struct{})
	ended := make(chan error, 1)
	blocking := ProberFunc(func(ctx context.Context, timeout time.Duration) (time.Duration, error) {
		close(started)
		<-ctx.Done()
		ended <- ctx.Err()
		return 0, ctx.Err()
	})
	n := New(1, models.ProtocolTCP, blocking, rec, Config{Timeout: 200 * time.Millisecond})
	n.Ping(0)
	<-started

	begin := time.Now()
	n.Close(false)
	assert.Less(t, time.Since(begin), 100*time.Millisecond, "close without wait blocked")

	select {
	case <-n.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("node did not stop after the attempt timed out")
	}

	// the attempt ran to its own deadline instead of being cancelled
	assert.ErrorIs(t, <-ended, context.DeadlineExceeded)
	assert.Equal(t, []string{"close"}, rec.snapshot())
}

func TestNodeCloseCancelsDelay(t *testing.T) {
	rec := newRecorder()
	var calls atomic.Int32
	n := New(1, models.ProtocolICMP, failN(0, &calls), rec, Config{Timeout: time.Second})
	n.Ping(time.Hour)

	n.Close(true)
	assert.Equal(t, int32(0), calls.Load())
}

func TestNodePanicIsUnreachable(t *testing.T) {
	rec := newRecorder()
	p := ProberFunc(func(ctx context.Context, timeout time.Duration) (time.Duration, error) {
		panic("boom")
	})
	n := New(1, models.ProtocolICMP, p, rec, Config{Timeout: time.Second})
	defer n.Close(true)

	n.Ping(0)
	assert.Equal(t, int64(-1), rec.waitLive(t))
}

func TestNodePolicyUpdate(t *testing.T) {
	rec := newRecorder()
	var seen atomic.Int64
	p := ProberFunc(func(ctx context.Context, timeout time.Duration) (time.Duration, error) {
		seen.Store(int64(timeout))
		return time.Millisecond, nil
	})
	n := New(1, models.ProtocolICMP, p, rec, Config{Timeout: time.Second})
	defer n.Close(true)

	n.SetTimeout(250 * time.Millisecond)
	n.SetRetry(-3)
	assert.Equal(t, 0, n.Retry())

	n.Ping(0)
	rec.waitLive(t)
	assert.Equal(t, int64(250*time.Millisecond), seen.Load())
}

func TestNodeLimiter(t *testing.T) {
	sem := semaphore.NewWeighted(1)
	var running, peak atomic.Int32
	p := ProberFunc(func(ctx context.Context, timeout time.Duration) (time.Duration, error) {
		cur := running.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return time.Millisecond, nil
	})

	rec := newRecorder()
	var nodes []*Node
	for i := 0; i < 4; i++ {
		n := New(models.DeviceID(i), models.ProtocolICMP, p, rec, Config{Timeout: time.Second, Limiter: sem})
		nodes = append(nodes, n)
		n.Ping(0)
	}
	for range nodes {
		rec.waitLive(t)
	}
	for _, n := range nodes {
		n.Close(true)
	}

	assert.Equal(t, int32(1), peak.Load())
}

// agent answers GETNEXT from a sorted table
type agent struct {
	oids   []string
	values map[string]any
}

func (a *agent) GetNext(ctx context.Context, t snmp.Target, oids []string) (*snmp.Response, error) {
	resp := &snmp.Response{}
	for _, q := range oids {
		b := snmp.Binding{OID: q, Type: gosnmp.EndOfMibView}
		for _, o := range a.oids {
			if snmp.Compare(o, q) > 0 {
				b = snmp.Binding{OID: o, Type: gosnmp.Integer, Value: a.values[o]}
				break
			}
		}
		resp.Bindings = append(resp.Bindings, b)
	}
	return resp, nil
}

func TestSNMPNodeEventOrder(t *testing.T) {
	a := &agent{
		oids: []string{catalog.HrProcessorLoad + ".1", catalog.HrProcessorLoad + ".2"},
		values: map[string]any{
			catalog.HrProcessorLoad + ".1": 10,
			catalog.HrProcessorLoad + ".2": 30,
		},
	}
	walker := snmp.NewWalker(a, catalog.Default(), 0)
	alive := ProberFunc(func(ctx context.Context, timeout time.Duration) (time.Duration, error) {
		return time.Millisecond, nil
	})

	rec := newRecorder()
	oids := func(models.DeviceID) []string { return []string{catalog.HrProcessorLoad} }
	n := NewSNMP(5, alive, walker, snmp.Target{Address: "192.0.2.1", Version: models.V2c, Security: "public"}, oids, rec, Config{Timeout: time.Second})
	defer n.Close(true)

	n.Ping(0)
	rec.waitLive(t)

	assert.Equal(t, []string{
		"sample:" + catalog.HrProcessorLoad + ".1=10",
		"sample:" + catalog.HrProcessorLoad + ".2=30",
		"status:0",
		"liveness",
	}, rec.snapshot())
}

func TestSNMPNodeSkipsWalkWhenUnreachable(t *testing.T) {
	walker := snmp.NewWalker(&agent{}, catalog.Default(), 0)
	down := ProberFunc(func(ctx context.Context, timeout time.Duration) (time.Duration, error) {
		return 0, ErrNoReply
	})

	rec := newRecorder()
	n := NewSNMP(5, down, walker, snmp.Target{Address: "192.0.2.1"}, func(models.DeviceID) []string { return nil }, rec, Config{Timeout: time.Second})
	defer n.Close(true)

	n.Ping(0)
	assert.Equal(t, int64(-1), rec.waitLive(t))
	assert.Equal(t, []string{"liveness:-1"}, rec.snapshot())
}

// gatedAgent holds its first GETNEXT until released
type gatedAgent struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (a *gatedAgent) GetNext(ctx context.Context, t snmp.Target, oids []string) (*snmp.Response, error) {
	a.once.Do(func() { close(a.started) })
	<-a.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp := &snmp.Response{}
	for _, q := range oids {
		resp.Bindings = append(resp.Bindings, snmp.Binding{OID: q + ".1", Type: gosnmp.Integer, Value: 7})
	}
	return resp, nil
}

func TestSNMPNodeCloseDuringWalk(t *testing.T) {
	a := &gatedAgent{started: make(chan struct{}), release: make(chan struct{})}
	walker := snmp.NewWalker(a, catalog.Default(), 1)
	alive := ProberFunc(func(ctx context.Context, timeout time.Duration) (time.Duration, error) {
		return time.Millisecond, nil
	})

	rec := newRecorder()
	oids := func(models.DeviceID) []string { return []string{catalog.HrProcessorLoad} }
	n := NewSNMP(5, alive, walker, snmp.Target{Address: "192.0.2.1", Version: models.V2c, Security: "public"}, oids, rec, Config{Timeout: time.Second})

	n.Ping(0)
	select {
	case <-a.started:
	case <-time.After(2 * time.Second):
		t.Fatal("walk never started")
	}

	n.Close(false)
	close(a.release)

	select {
	case <-n.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("node did not stop after the walk finished")
	}

	// neither the walk's samples nor a status reach the listener after close
	assert.Equal(t, []string{"close"}, rec.snapshot())
}
