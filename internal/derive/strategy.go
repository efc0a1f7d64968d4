// Package derive turns raw samples into bandwidth, error rate, processor
// load, storage usage and response time, evaluates their thresholds and
// keeps per-device maxima for top-N rankings.
package derive

import (
	"errors"
	"sort"
	"strconv"
	"sync"

	"beacon/internal/metrics"
	"beacon/internal/models"
)

// ErrUnknownMetric is returned by Pipeline.Top for an unregistered family name
var ErrUnknownMetric = errors.New("unknown metric family")

// Strategy derives one metric family from the samples of a single index.
type Strategy interface {
	Name() string
	// Parse may add derived samples to the map and returns an event when
	// the threshold state flips.
	Parse(id models.DeviceID, index string, samples map[string]*models.Sample) *models.CriticalEvent
	// Submit publishes the maxima collected since the last Submit.
	Submit(id models.DeviceID)
	// Reset discards both in-progress and published maxima.
	Reset(id models.DeviceID)
	// Top orders ids by published maximum, highest first; devices without one go last.
	Top(ids []models.DeviceID, byRate bool) []models.Rank
}

// forgetter is implemented by strategies holding per-device history beyond maxima.
type forgetter interface {
	Forget(id models.DeviceID)
}

// tracker keeps the running and published maxima of one family. rated
// families rank by value and by rate separately.
type tracker struct {
	rated bool

	mu            sync.Mutex
	candidate     map[models.DeviceID]models.Max
	candidateRate map[models.DeviceID]models.Max
	published     map[models.DeviceID]models.Max
	publishedRate map[models.DeviceID]models.Max
}

func newTracker(rated bool) *tracker {
	return &tracker{
		rated:         rated,
		candidate:     make(map[models.DeviceID]models.Max),
		candidateRate: make(map[models.DeviceID]models.Max),
		published:     make(map[models.DeviceID]models.Max),
		publishedRate: make(map[models.DeviceID]models.Max),
	}
}

func (t *tracker) offer(m models.Max) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.candidate[m.DeviceID]; !ok || cur.Value < m.Value {
		t.candidate[m.DeviceID] = m
	}
	if !t.rated {
		return
	}
	if cur, ok := t.candidateRate[m.DeviceID]; !ok || cur.Rate < m.Rate {
		t.candidateRate[m.DeviceID] = m
	}
}

func (t *tracker) Submit(id models.DeviceID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	promote(t.candidate, t.published, id)
	promote(t.candidateRate, t.publishedRate, id)
}

func promote(from, to map[models.DeviceID]models.Max, id models.DeviceID) {
	if m, ok := from[id]; ok {
		to[id] = m
		delete(from, id)
	} else {
		delete(to, id)
	}
}

func (t *tracker) Reset(id models.DeviceID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.candidate, id)
	delete(t.candidateRate, id)
	delete(t.published, id)
	delete(t.publishedRate, id)
}

func (t *tracker) Top(ids []models.DeviceID, byRate bool) []models.Rank {
	byRate = byRate && t.rated

	src := t.published
	if byRate {
		src = t.publishedRate
	}

	ranks := make([]models.Rank, len(ids))
	t.mu.Lock()
	for i, id := range ids {
		ranks[i].DeviceID = id
		if m, ok := src[id]; ok {
			ranks[i].Max = &m
		}
	}
	t.mu.Unlock()

	sort.SliceStable(ranks, func(i, j int) bool {
		a, b := ranks[i].Max, ranks[j].Max
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}

		primaryA, primaryB, secondaryA, secondaryB := a.Value, b.Value, a.Rate, b.Rate
		if byRate {
			primaryA, primaryB, secondaryA, secondaryB = a.Rate, b.Rate, a.Value, b.Value
		}
		if primaryA != primaryB {
			return primaryA > primaryB
		}
		return secondaryA > secondaryB
	})

	return ranks
}

// counter remembers the last reading of a monotonically increasing counter per index.
type counter struct {
	mu   sync.Mutex
	prev map[models.DeviceID]map[int]reading
}

type reading struct {
	timestamp int64
	value     int64
}

func newCounter() *counter {
	return &counter{prev: make(map[models.DeviceID]map[int]reading)}
}

// rate stores the new reading and returns (value-prev)*scale/elapsed. It
// reports false on the first reading, non-positive elapsed time or a counter
// that went backwards.
func (c *counter) rate(id models.DeviceID, index int, value, timestamp, scale int64) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byIndex, ok := c.prev[id]
	if !ok {
		byIndex = make(map[int]reading)
		c.prev[id] = byIndex
	}

	old, had := byIndex[index]
	byIndex[index] = reading{timestamp: timestamp, value: value}

	if !had {
		return 0, false
	}
	elapsed := timestamp - old.timestamp
	if elapsed <= 0 || value < old.value {
		return 0, false
	}
	return (value - old.value) * scale / elapsed, true
}

func (c *counter) Forget(id models.DeviceID) {
	c.mu.Lock()
	delete(c.prev, id)
	c.mu.Unlock()
}

// number parses a stored sample value; absent or malformed samples report false.
func number(samples map[string]*models.Sample, oid string) (int64, bool) {
	s, ok := samples[oid]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s.Value, 10, 64)
	if err != nil {
		if s.Value != "" {
			metrics.SamplesDropped.WithLabelValues("malformed").Inc()
		}
		return 0, false
	}
	return n, true
}

// put writes a derived value into the index's sample map.
func put(samples map[string]*models.Sample, oid string, value, timestamp int64) {
	v := strconv.FormatInt(value, 10)
	if s, ok := samples[oid]; ok {
		s.Value = v
		s.Timestamp = timestamp
		return
	}
	samples[oid] = &models.Sample{Value: v, Timestamp: timestamp}
}

func parseIndex(index string) (int, bool) {
	n, err := strconv.Atoi(index)
	if err != nil {
		metrics.SamplesDropped.WithLabelValues("malformed").Inc()
		return 0, false
	}
	return n, true
}
