// Package state keeps the latest sample of every (device, index, OID).
package state

import (
	"sort"
	"sync"

	"beacon/internal/models"
)

// Store is sharded per device: writes for different devices never contend.
type Store struct {
	shards sync.Map // models.DeviceID -> *shard
}

type shard struct {
	mu sync.RWMutex
	// index -> OID -> sample
	indexes map[string]map[string]*models.Sample
}

func New() *Store {
	return &Store{}
}

func (s *Store) shard(id models.DeviceID) *shard {
	if v, ok := s.shards.Load(id); ok {
		return v.(*shard)
	}
	v, _ := s.shards.LoadOrStore(id, &shard{indexes: make(map[string]map[string]*models.Sample)})
	return v.(*shard)
}

// Merge stores a new value and timestamp, keeping the sample's limit and
// critical flag. It returns the previous value when one was stored.
func (s *Store) Merge(id models.DeviceID, index, oid, value string, timestamp int64) (string, bool) {
	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	samples, ok := sh.indexes[index]
	if !ok {
		samples = make(map[string]*models.Sample)
		sh.indexes[index] = samples
	}

	if cur, ok := samples[oid]; ok {
		prev, had := cur.Value, cur.Timestamp != 0
		cur.Value = value
		cur.Timestamp = timestamp
		return prev, had
	}

	samples[oid] = &models.Sample{Value: value, Timestamp: timestamp}
	return "", false
}

// Get returns a copy of one sample.
func (s *Store) Get(id models.DeviceID, index, oid string) (models.Sample, bool) {
	v, ok := s.shards.Load(id)
	if !ok {
		return models.Sample{}, false
	}
	sh := v.(*shard)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	if smp, ok := sh.indexes[index][oid]; ok {
		return *smp, true
	}
	return models.Sample{}, false
}

// SetLimit configures the threshold of one sample, creating an empty sample
// when the metric has not been observed yet.
func (s *Store) SetLimit(id models.DeviceID, index, oid string, limit int64) {
	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	samples, ok := sh.indexes[index]
	if !ok {
		samples = make(map[string]*models.Sample)
		sh.indexes[index] = samples
	}
	if cur, ok := samples[oid]; ok {
		cur.Limit = limit
		return
	}
	samples[oid] = &models.Sample{Limit: limit}
}

// Indexes lists the indexes stored for a device in ascending order.
func (s *Store) Indexes(id models.DeviceID) []string {
	v, ok := s.shards.Load(id)
	if !ok {
		return nil
	}
	sh := v.(*shard)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	out := make([]string, 0, len(sh.indexes))
	for index := range sh.indexes {
		out = append(out, index)
	}
	sort.Strings(out)
	return out
}

// Update runs fn on the live samples of one index while holding the
// device's write lock. fn may mutate samples and add derived ones.
func (s *Store) Update(id models.DeviceID, index string, fn func(samples map[string]*models.Sample)) {
	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	samples, ok := sh.indexes[index]
	if !ok {
		samples = make(map[string]*models.Sample)
		sh.indexes[index] = samples
	}
	fn(samples)
}

// Snapshot copies every sample of a device.
func (s *Store) Snapshot(id models.DeviceID) map[string]map[string]models.Sample {
	v, ok := s.shards.Load(id)
	if !ok {
		return nil
	}
	sh := v.(*shard)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	out := make(map[string]map[string]models.Sample, len(sh.indexes))
	for index, samples := range sh.indexes {
		cp := make(map[string]models.Sample, len(samples))
		for oid, smp := range samples {
			cp[oid] = *smp
		}
		out[index] = cp
	}
	return out
}

// Remove drops every sample of a device.
func (s *Store) Remove(id models.DeviceID) {
	s.shards.Delete(id)
}

// Devices returns the number of devices with stored samples.
func (s *Store) Devices() int {
	n := 0
	s.shards.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
