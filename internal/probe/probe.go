// Package probe classifies a device with a one-shot reachability test.
package probe

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"beacon/internal/catalog"
	"beacon/internal/logger"
	"beacon/internal/metrics"
	"beacon/internal/models"
	"beacon/internal/node"
	"beacon/internal/snmp"
)

// Request describes one device to classify
type Request struct {
	DeviceID models.DeviceID
	Address  string
	Protocol models.Protocol
	// Port is used by TCP tests
	Port     uint16
	Profiles []models.Profile
}

// Config holds the test policy
type Config struct {
	Timeout    time.Duration
	Privileged bool
}

// Option customises a Prober
type Option func(*Prober)

// WithICMP replaces the echo prober factory
func WithICMP(f func(address string) node.Prober) Option {
	return func(p *Prober) { p.icmp = f }
}

// WithTCP replaces the connect prober factory
func WithTCP(f func(address string, port uint16) node.Prober) Option {
	return func(p *Prober) { p.tcp = f }
}

// Prober runs one-shot tests. It is safe for concurrent use.
type Prober struct {
	requester snmp.Requester
	timeout   time.Duration
	icmp      func(address string) node.Prober
	tcp       func(address string, port uint16) node.Prober
	log       zerolog.Logger
}

func New(r snmp.Requester, cfg Config, opts ...Option) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	p := &Prober{
		requester: r,
		timeout:   cfg.Timeout,
		icmp: func(address string) node.Prober {
			return node.ICMP{Address: address, Privileged: cfg.Privileged}
		},
		tcp: func(address string, port uint16) node.Prober {
			return node.TCP{Address: address, Port: port}
		},
		log: logger.WithComponent("probe"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Test makes a single attempt per mechanism and stops at the first success.
// SNMP profiles are tried in order. Auto tries the SNMP profiles, then ICMP.
func (p *Prober) Test(ctx context.Context, req Request) models.Classification {
	result := models.Classification{
		DeviceID: req.DeviceID,
		Address:  req.Address,
		Protocol: req.Protocol,
	}

	switch req.Protocol {
	case models.ProtocolICMP:
		result.Success = p.live(ctx, p.icmp(req.Address))
	case models.ProtocolTCP:
		result.Success = p.live(ctx, p.tcp(req.Address, req.Port))
	case models.ProtocolSNMP:
		result.Profile, result.Success = p.firstProfile(ctx, req.Address, req.Profiles)
	case models.ProtocolAuto:
		if name, ok := p.firstProfile(ctx, req.Address, req.Profiles); ok {
			result.Protocol, result.Profile, result.Success = models.ProtocolSNMP, name, true
		} else if p.live(ctx, p.icmp(req.Address)) {
			result.Protocol, result.Success = models.ProtocolICMP, true
		}
	}

	outcome := "failure"
	if result.Success {
		outcome = "success"
	}
	metrics.ClassificationsTotal.WithLabelValues(string(result.Protocol), outcome).Inc()

	p.log.Debug().
		Int64("device_id", int64(req.DeviceID)).
		Str("address", req.Address).
		Str("protocol", string(result.Protocol)).
		Str("profile", result.Profile).
		Bool("success", result.Success).
		Msg("device tested")

	return result
}

func (p *Prober) live(ctx context.Context, pr node.Prober) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	_, err := pr.Probe(ctx, p.timeout)
	return err == nil
}

func (p *Prober) firstProfile(ctx context.Context, address string, profiles []models.Profile) (string, bool) {
	for _, prof := range profiles {
		if ctx.Err() != nil {
			return "", false
		}
		if Check(ctx, p.requester, address, prof, p.timeout) {
			return prof.Name, true
		}
	}
	return "", false
}

// Check sends one GETNEXT for the MIB-2 root with no retries. Any answer
// without an error-status counts as reachable with that profile.
func Check(ctx context.Context, r snmp.Requester, address string, prof models.Profile, timeout time.Duration) bool {
	prof.Normalize()

	t := snmp.Target{
		Address:   address,
		Port:      prof.Port,
		Version:   prof.Version,
		Security:  prof.Security,
		Level:     prof.Level,
		Timeout:   timeout,
		Retries:   0,
		Transient: true,
	}

	resp, err := r.GetNext(ctx, t, []string{catalog.MIB2})
	if err != nil || resp == nil || resp.Report {
		return false
	}
	return resp.ErrorStatus == 0 && len(resp.Bindings) > 0
}
