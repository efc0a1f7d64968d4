// Package sweep discovers SNMP agents across an IPv4 subnet.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"beacon/internal/logger"
	"beacon/internal/metrics"
	"beacon/internal/models"
	"beacon/internal/probe"
	"beacon/internal/snmp"
)

var (
	ErrInvalidNetwork = errors.New("network must be an IPv4 address")
	ErrInvalidMask    = errors.New("mask must be between 8 and 32")
)

// FoundFunc is called once per responding address with the first profile that
// answered. Calls may come from several goroutines at once.
type FoundFunc func(address, profile string)

// Config holds the sweep policy
type Config struct {
	Timeout     time.Duration
	Concurrency int
	// Rate is the number of requests per second; zero disables pacing
	Rate float64
}

// Sweeper probes every host of a subnet with every profile.
type Sweeper struct {
	requester snmp.Requester
	cfg       Config
	log       zerolog.Logger
}

func New(r snmp.Requester, cfg Config) *Sweeper {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 64
	}
	return &Sweeper{
		requester: r,
		cfg:       cfg,
		log:       logger.WithComponent("sweep"),
	}
}

// Hosts is the host part of an IPv4 subnet. Network and broadcast
// addresses are left out for masks up to /30.
type Hosts struct {
	first netip.Addr
	count int
}

// ParseHosts validates network/mask without enumerating it.
func ParseHosts(network string, mask int) (Hosts, error) {
	addr, err := netip.ParseAddr(network)
	if err != nil || !addr.Is4() {
		return Hosts{}, fmt.Errorf("%w: %q", ErrInvalidNetwork, network)
	}
	if mask < 8 || mask > 32 {
		return Hosts{}, fmt.Errorf("%w: %d", ErrInvalidMask, mask)
	}

	first := netip.PrefixFrom(addr, mask).Masked().Addr()
	count := 1 << (32 - mask)
	if mask <= 30 {
		first = first.Next()
		count -= 2
	}
	return Hosts{first: first, count: count}, nil
}

// Len is the number of host addresses.
func (h Hosts) Len() int { return h.count }

// All yields the host addresses in ascending order.
func (h Hosts) All() iter.Seq[netip.Addr] {
	return func(yield func(netip.Addr) bool) {
		a := h.first
		for i := 0; i < h.count; i++ {
			if !yield(a) {
				return
			}
			a = a.Next()
		}
	}
}

// Sweep sends one no-retry GETNEXT per address and profile, concurrently,
// and reports each address at most once. It returns when every request has
// finished or ctx is done.
func (s *Sweeper) Sweep(ctx context.Context, network string, mask int, profiles []models.Profile, found FoundFunc) error {
	hosts, err := ParseHosts(network, mask)
	if err != nil {
		return err
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if s.cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.Rate), 1)
	}

	start := time.Now()
	s.log.Info().
		Str("network", network).
		Int("mask", mask).
		Int("hosts", hosts.Len()).
		Int("profiles", len(profiles)).
		Msg("sweep started")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	var (
		seen       sync.Map
		discovered atomic.Int64
	)
hosts:
	for host := range hosts.All() {
		address := host.String()
		for _, prof := range profiles {
			if gctx.Err() != nil {
				break hosts
			}

			g.Go(func() error {
				if _, done := seen.Load(address); done {
					return nil
				}
				if err := limiter.Wait(gctx); err != nil {
					return err
				}

				if !probe.Check(gctx, s.requester, address, prof, s.cfg.Timeout) {
					metrics.SweepProbesTotal.WithLabelValues("silent").Inc()
					return nil
				}
				metrics.SweepProbesTotal.WithLabelValues("answered").Inc()

				if _, loaded := seen.LoadOrStore(address, prof.Name); loaded {
					return nil
				}
				metrics.DiscoveriesTotal.Inc()

				discovered.Add(1)

				found(address, prof.Name)
				return nil
			})
		}
	}

	if err = g.Wait(); err == nil {
		err = ctx.Err()
	}

	s.log.Info().
		Str("network", network).
		Int("mask", mask).
		Int64("discovered", discovered.Load()).
		Dur("elapsed", time.Since(start)).
		Err(err).
		Msg("sweep finished")

	return err
}
