// Package manager owns the set of monitored nodes, their shared SNMP session
// and the polling policy, and routes node events to the receiver.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"beacon/internal/alerts"
	"beacon/internal/catalog"
	"beacon/internal/config"
	"beacon/internal/derive"
	"beacon/internal/logger"
	"beacon/internal/metrics"
	"beacon/internal/models"
	"beacon/internal/monitor"
	"beacon/internal/node"
	"beacon/internal/probe"
	"beacon/internal/snmp"
	"beacon/internal/state"
	"beacon/internal/sweep"
)

var (
	ErrManagerClosed  = errors.New("manager is closed")
	ErrInvalidAddress = errors.New("invalid device address")
)

// NodeSpec describes a device to monitor. The SNMP fields are ignored for
// ICMP and TCP nodes.
type NodeSpec struct {
	ID       models.DeviceID
	Address  string
	Protocol models.Protocol
	// Port is the TCP port for TCP nodes and the agent port for SNMP nodes
	Port     uint16
	Version  models.Version
	Security string
	Level    models.SecurityLevel
}

// NodeInfo is a read-only view of a registered node
type NodeInfo struct {
	ID       models.DeviceID `json:"id"`
	Protocol models.Protocol `json:"protocol"`
	State    string          `json:"state"`
}

// Stats summarises the registry
type Stats struct {
	Nodes       int                     `json:"nodes"`
	ByProtocol  map[models.Protocol]int `json:"by_protocol"`
	Outstanding int                     `json:"snmp_outstanding"`
	Devices     int                     `json:"devices_with_samples"`
}

// Option customises a Manager
type Option func(*Manager)

// WithRequester sends SNMP requests through r instead of the manager's session.
func WithRequester(r snmp.Requester) Option {
	return func(m *Manager) { m.requester = r }
}

// WithLiveness replaces the liveness prober factory.
func WithLiveness(f func(spec NodeSpec) node.Prober) Option {
	return func(m *Manager) { m.liveness = f }
}

// WithCatalog replaces the default metric catalog.
func WithCatalog(c *catalog.Catalog) Option {
	return func(m *Manager) { m.catalog = c }
}

type Manager struct {
	mu     sync.Mutex
	nodes  map[models.DeviceID]*node.Node
	closed bool

	session   *snmp.Session
	requester snmp.Requester
	catalog   *catalog.Catalog
	requests  *catalog.RequestSet
	walker    *snmp.Walker
	monitor   *monitor.Monitor
	prober    *probe.Prober
	sweeper   *sweep.Sweeper
	liveness  func(spec NodeSpec) node.Prober
	limiter   *semaphore.Weighted

	interval     atomic.Int64
	failureDelay atomic.Int64
	timeout      atomic.Int64
	retry        atomic.Int32
	maxNodes     atomic.Int64

	jobs      sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closeErr  error
	closeOnce sync.Once

	log zerolog.Logger
}

// New builds a manager that reports to next. The polling policy can be
// changed later with the setters.
func New(polling config.PollingConfig, sweeping config.SweepConfig, next models.Receiver, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		nodes:   make(map[models.DeviceID]*node.Node),
		session: snmp.NewSession(),
		catalog: catalog.Default(),
		ctx:     ctx,
		cancel:  cancel,
		log:     logger.WithComponent("manager"),
	}
	m.requester = m.session
	m.liveness = func(spec NodeSpec) node.Prober {
		if spec.Protocol == models.ProtocolTCP {
			return node.TCP{Address: spec.Address, Port: spec.Port}
		}
		return node.ICMP{Address: spec.Address, Privileged: polling.ICMPPrivileged}
	}

	for _, opt := range opts {
		opt(m)
	}

	if polling.MaxConcurrentProbes > 0 {
		m.limiter = semaphore.NewWeighted(polling.MaxConcurrentProbes)
	}

	m.requests = catalog.NewRequestSet(m.catalog)
	m.walker = snmp.NewWalker(m.requester, m.catalog, polling.WalkMaxRounds)
	m.monitor = monitor.New(next, m.catalog, state.New(), derive.NewPipeline(alerts.NewThreshold()))
	m.prober = probe.New(m.requester, probe.Config{Timeout: polling.Timeout, Privileged: polling.ICMPPrivileged},
		probe.WithICMP(func(address string) node.Prober {
			return m.liveness(NodeSpec{Address: address, Protocol: models.ProtocolICMP})
		}),
		probe.WithTCP(func(address string, port uint16) node.Prober {
			return m.liveness(NodeSpec{Address: address, Protocol: models.ProtocolTCP, Port: port})
		}),
	)
	m.sweeper = sweep.New(m.requester, sweep.Config{
		Timeout:     sweeping.Timeout,
		Concurrency: sweeping.Concurrency,
		Rate:        sweeping.Rate,
	})

	m.SetPollInterval(polling.Interval)
	m.SetFailureDelay(polling.FailureDelay)
	m.SetTimeout(polling.Timeout)
	m.SetRetry(polling.Retry)
	m.SetMaxNodes(polling.MaxNodes)

	return m
}

// CreateNode registers a device and schedules its first probe. An existing
// node with the same id is closed and replaced. When the node cap is
// reached the request is dropped without error.
func (m *Manager) CreateNode(spec NodeSpec) error {
	spec.Address = strings.TrimSpace(spec.Address)
	if spec.Address == "" {
		return ErrInvalidAddress
	}

	switch spec.Protocol {
	case models.ProtocolICMP, models.ProtocolTCP:
	case models.ProtocolSNMP:
		prof := models.Profile{
			Name:     spec.ID.String(),
			Version:  spec.Version,
			Port:     spec.Port,
			Security: spec.Security,
			Level:    spec.Level,
		}
		prof.Normalize()
		if err := prof.Validate(); err != nil {
			return fmt.Errorf("device %d: %w", spec.ID, err)
		}
		spec.Version, spec.Port, spec.Level = prof.Version, prof.Port, prof.Level
	default:
		return fmt.Errorf("%w: %q", models.ErrUnknownProtocol, spec.Protocol)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}

	old, exists := m.nodes[spec.ID]
	if limit := int(m.maxNodes.Load()); !exists && limit > 0 && len(m.nodes) >= limit {
		metrics.NodesRejected.Inc()
		m.log.Warn().
			Int64("device_id", int64(spec.ID)).
			Int("limit", limit).
			Msg("node limit reached, device not registered")
		return nil
	}

	n := m.start(spec)
	m.nodes[spec.ID] = n
	metrics.NodesActive.Inc()

	if exists {
		old.Close(false)
		m.log.Info().Int64("device_id", int64(spec.ID)).Msg("node replaced")
	}

	n.Ping(0)

	m.log.Info().
		Int64("device_id", int64(spec.ID)).
		Str("address", spec.Address).
		Str("protocol", string(spec.Protocol)).
		Msg("node created")
	return nil
}

func (m *Manager) start(spec NodeSpec) *node.Node {
	b := &binding{m: m, protocol: spec.Protocol}
	cfg := node.Config{
		Timeout: m.Timeout(),
		Retry:   m.Retry(),
		Limiter: m.limiter,
	}

	switch spec.Protocol {
	case models.ProtocolSNMP:
		target := snmp.Target{
			Address:  spec.Address,
			Port:     spec.Port,
			Version:  spec.Version,
			Security: spec.Security,
			Level:    spec.Level,
		}
		icmp := spec
		icmp.Protocol = models.ProtocolICMP
		b.node = node.NewSNMP(spec.ID, m.liveness(icmp), m.walker, target, m.requests.Build, b, cfg)
	default:
		b.node = node.New(spec.ID, spec.Protocol, m.liveness(spec), b, cfg)
	}
	return b.node
}

// RemoveNode stops monitoring a device. Unknown ids are ignored.
func (m *Manager) RemoveNode(id models.DeviceID) {
	m.mu.Lock()
	n, ok := m.nodes[id]
	if ok {
		delete(m.nodes, id)
	}
	m.mu.Unlock()

	if ok {
		n.Close(false)
		m.log.Info().Int64("device_id", int64(id)).Msg("node removed")
	}
}

// SetPollInterval sets the delay between successful probes of a node.
func (m *Manager) SetPollInterval(d time.Duration) { m.interval.Store(int64(d)) }

// SetFailureDelay sets the delay before an unreachable node is probed again.
func (m *Manager) SetFailureDelay(d time.Duration) { m.failureDelay.Store(int64(d)) }

// SetTimeout updates the per-attempt timeout of every node.
func (m *Manager) SetTimeout(d time.Duration) {
	m.timeout.Store(int64(d))
	m.each(func(n *node.Node) { n.SetTimeout(d) })
}

// SetRetry updates the retry count of every node.
func (m *Manager) SetRetry(retry int) {
	m.retry.Store(int32(retry))
	m.each(func(n *node.Node) { n.SetRetry(retry) })
}

// SetMaxNodes caps the number of nodes; zero or less removes the cap.
func (m *Manager) SetMaxNodes(limit int) { m.maxNodes.Store(int64(limit)) }

func (m *Manager) PollInterval() time.Duration { return time.Duration(m.interval.Load()) }

func (m *Manager) Timeout() time.Duration { return time.Duration(m.timeout.Load()) }

func (m *Manager) Retry() int { return int(m.retry.Load()) }

func (m *Manager) each(fn func(n *node.Node)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.nodes {
		fn(n)
	}
}

func (m *Manager) AddCredential(c models.Credential) error {
	return m.session.AddCredential(c)
}

func (m *Manager) RemoveCredential(name string) {
	m.session.RemoveCredential(name)
}

// SetLimit sets the threshold of one metric of one device; zero or less removes it.
func (m *Manager) SetLimit(id models.DeviceID, index, oid string, limit int64) {
	m.monitor.SetLimit(id, index, oid, limit)
}

// SetExtraOIDs adds device-specific roots to the device's walk.
func (m *Manager) SetExtraOIDs(id models.DeviceID, oids []string) {
	m.requests.SetExtra(id, oids)
}

// TestNode classifies a device in the background and reports the result
// through OnClassification. It returns the job id.
func (m *Manager) TestNode(req probe.Request) (string, error) {
	if err := m.beginJob(); err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	go func() {
		defer m.jobs.Done()
		c := m.prober.Test(m.ctx, req)
		m.log.Debug().Str("job_id", jobID).Bool("success", c.Success).Msg("test finished")
		m.monitor.OnClassification(c)
	}()
	return jobID, nil
}

// Sweep searches network/mask for SNMP agents in the background. Each
// responding address is reported once through OnDiscovery.
func (m *Manager) Sweep(network string, mask int, profiles []models.Profile) (string, error) {
	if _, err := sweep.ParseHosts(network, mask); err != nil {
		return "", err
	}
	if err := m.beginJob(); err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	go func() {
		defer m.jobs.Done()
		err := m.sweeper.Sweep(m.ctx, network, mask, profiles, m.monitor.OnDiscovery)
		if err != nil && !errors.Is(err, context.Canceled) {
			m.log.Warn().Err(err).Str("job_id", jobID).Msg("sweep failed")
		}
	}()
	return jobID, nil
}

func (m *Manager) beginJob() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	m.jobs.Add(1)
	return nil
}

// TopMetrics ranks devices by the published maximum of one family. Nil ids
// ranks every registered node.
func (m *Manager) TopMetrics(ids []models.DeviceID, family string, byRate bool) ([]models.Rank, error) {
	if ids == nil {
		for _, n := range m.Nodes() {
			ids = append(ids, n.ID)
		}
	}
	return m.monitor.Top(ids, family, byRate)
}

// Samples returns the stored samples of one device
func (m *Manager) Samples(id models.DeviceID) map[string]map[string]models.Sample {
	return m.monitor.Snapshot(id)
}

// Nodes lists the registered nodes ordered by id.
func (m *Manager) Nodes() []NodeInfo {
	m.mu.Lock()
	out := make([]NodeInfo, 0, len(m.nodes))
	for id, n := range m.nodes {
		out = append(out, NodeInfo{ID: id, Protocol: n.Protocol(), State: n.State().String()})
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) Stats() Stats {
	s := Stats{ByProtocol: make(map[models.Protocol]int)}

	m.mu.Lock()
	s.Nodes = len(m.nodes)
	for _, n := range m.nodes {
		s.ByProtocol[n.Protocol()]++
	}
	m.mu.Unlock()

	s.Outstanding = m.session.Outstanding()
	s.Devices = m.monitor.Devices()
	return s
}

// Close stops every node and background job and closes the session. It
// is safe to call more than once; later calls return the first result.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		nodes := make([]*node.Node, 0, len(m.nodes))
		for _, n := range m.nodes {
			nodes = append(nodes, n)
		}
		m.mu.Unlock()

		for _, n := range nodes {
			n.Close(false)
		}
		for _, n := range nodes {
			<-n.Done()
		}

		m.cancel()
		m.jobs.Wait()

		m.closeErr = m.session.Close()
		m.log.Info().Int("nodes", len(nodes)).Msg("manager closed")
	})
	return m.closeErr
}

// binding adapts one node's events to the receiver and reschedules the node.
type binding struct {
	m        *Manager
	protocol models.Protocol
	node     *node.Node
}

func (b *binding) OnLiveness(id models.DeviceID, rtt int64) {
	b.m.monitor.OnLiveness(id, rtt, b.protocol)

	delay := time.Duration(b.m.interval.Load())
	if rtt < 0 {
		delay = time.Duration(b.m.failureDelay.Load())
	}
	b.node.Ping(delay)
}

func (b *binding) OnStatus(id models.DeviceID, code int) {
	b.m.monitor.OnProtocolStatus(id, code)
}

func (b *binding) OnSample(id models.DeviceID, oid, index, value string) {
	b.m.monitor.OnRawSample(id, oid, index, value)
}

func (b *binding) OnClose(id models.DeviceID) {
	metrics.NodesActive.Dec()

	m := b.m
	m.mu.Lock()
	cur, ok := m.nodes[id]
	if ok && cur == b.node {
		delete(m.nodes, id)
	}
	replaced := ok && cur != b.node
	m.mu.Unlock()

	if !replaced {
		m.monitor.Forget(id)
		m.requests.Remove(id)
		m.session.Release(id)
	}
}
