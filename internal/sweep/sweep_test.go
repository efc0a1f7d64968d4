package sweep

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon/internal/models"
	"beacon/internal/snmp"
)

type agents struct {
	mu       sync.Mutex
	answer   map[string]string
	requests int
}

func (a *agents) GetNext(ctx context.Context, t snmp.Target, oids []string) (*snmp.Response, error) {
	a.mu.Lock()
	a.requests++
	a.mu.Unlock()

	if t.Retries != 0 || !t.Transient {
		return nil, errors.New("sweep requests must be transient without retries")
	}
	if a.answer[t.Address] != t.Security {
		return nil, errors.New("request timeout")
	}
	return &snmp.Response{Bindings: []snmp.Binding{{OID: "1.3.6.1.2.1.1.1.0", Type: gosnmp.OctetString, Value: []byte("switch")}}}, nil
}

func TestHosts(t *testing.T) {
	tests := []struct {
		network string
		mask    int
		first   string
		last    string
		count   int
	}{
		{"192.0.2.0", 24, "192.0.2.1", "192.0.2.254", 254},
		{"192.0.2.77", 24, "192.0.2.1", "192.0.2.254", 254},
		{"192.0.2.4", 30, "192.0.2.5", "192.0.2.6", 2},
		{"192.0.2.4", 31, "192.0.2.4", "192.0.2.5", 2},
		{"192.0.2.9", 32, "192.0.2.9", "192.0.2.9", 1},
	}

	for _, tt := range tests {
		h, err := ParseHosts(tt.network, tt.mask)
		if err != nil {
			t.Fatalf("ParseHosts(%s/%d): %v", tt.network, tt.mask, err)
		}
		hosts := slices.Collect(h.All())
		if len(hosts) != tt.count || h.Len() != tt.count {
			t.Errorf("ParseHosts(%s/%d) = %d hosts (Len %d), want %d", tt.network, tt.mask, len(hosts), h.Len(), tt.count)
			continue
		}
		if got := hosts[0].String(); got != tt.first {
			t.Errorf("ParseHosts(%s/%d) first = %s, want %s", tt.network, tt.mask, got, tt.first)
		}
		if got := hosts[len(hosts)-1].String(); got != tt.last {
			t.Errorf("ParseHosts(%s/%d) last = %s, want %s", tt.network, tt.mask, got, tt.last)
		}
	}
}

func TestHostsLargeSubnetIsLazy(t *testing.T) {
	h, err := ParseHosts("10.20.30.40", 8)
	require.NoError(t, err)
	assert.Equal(t, 1<<24-2, h.Len())

	var first []string
	for a := range h.All() {
		first = append(first, a.String())
		if len(first) == 3 {
			break
		}
	}
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, first)
}

func TestHostsRejectsInput(t *testing.T) {
	_, err := ParseHosts("192.0.2.0", 7)
	assert.ErrorIs(t, err, ErrInvalidMask)

	_, err = ParseHosts("192.0.2.0", 33)
	assert.ErrorIs(t, err, ErrInvalidMask)

	_, err = ParseHosts("2001:db8::", 24)
	assert.ErrorIs(t, err, ErrInvalidNetwork)

	_, err = ParseHosts("not-an-address", 24)
	assert.ErrorIs(t, err, ErrInvalidNetwork)
}

func TestSweepReportsEachAddressOnce(t *testing.T) {
	a := &agents{answer: map[string]string{
		"192.0.2.2": "public",
		"192.0.2.5": "private",
	}}
	profiles := []models.Profile{
		{Name: "a", Version: models.V2c, Security: "public"},
		{Name: "b", Version: models.V2c, Security: "private"},
	}
	s := New(a, Config{Timeout: time.Second, Concurrency: 8})

	var mu sync.Mutex
	found := map[string][]string{}
	err := s.Sweep(context.Background(), "192.0.2.0", 28, profiles, func(address, profile string) {
		mu.Lock()
		found[address] = append(found[address], profile)
		mu.Unlock()
	})
	require.NoError(t, err)

	addresses := make([]string, 0, len(found))
	for addr := range found {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)

	assert.Equal(t, []string{"192.0.2.2", "192.0.2.5"}, addresses)
	assert.Equal(t, []string{"a"}, found["192.0.2.2"])
	assert.Equal(t, []string{"b"}, found["192.0.2.5"])
	assert.LessOrEqual(t, a.requests, 14*2)
}

func TestSweepInvalidMask(t *testing.T) {
	s := New(&agents{}, Config{})
	err := s.Sweep(context.Background(), "10.0.0.0", 4, nil, func(string, string) {})
	assert.ErrorIs(t, err, ErrInvalidMask)
}

func TestSweepCancelled(t *testing.T) {
	s := New(&agents{}, Config{Timeout: time.Second, Concurrency: 2, Rate: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Sweep(ctx, "10.0.0.0", 24, []models.Profile{{Name: "a", Version: models.V2c, Security: "public"}}, func(string, string) {
		t.Error("unexpected discovery")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
