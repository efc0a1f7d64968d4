package node

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

var ErrNoReply = errors.New("no echo reply")

// ICMP sends a single echo request per attempt.
type ICMP struct {
	Address string
	// Privileged uses raw sockets instead of unprivileged datagram ICMP
	Privileged bool
}

func (p ICMP) Probe(ctx context.Context, timeout time.Duration) (time.Duration, error) {
	pinger, err := probing.NewPinger(p.Address)
	if err != nil {
		return 0, err
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(p.Privileged)

	if err := pinger.RunWithContext(ctx); err != nil {
		return 0, err
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, ErrNoReply
	}
	return stats.MinRtt, nil
}

// TCP treats a completed connect to Address:Port as reachable.
type TCP struct {
	Address string
	Port    uint16
}

func (p TCP) Probe(ctx context.Context, timeout time.Duration) (time.Duration, error) {
	d := net.Dialer{Timeout: timeout}

	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(p.Address, strconv.Itoa(int(p.Port))))
	if err != nil {
		return 0, err
	}
	rtt := time.Since(start)
	_ = conn.Close()
	return rtt, nil
}
