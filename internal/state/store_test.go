package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon/internal/models"
)

func TestMergeKeepsLimitAndCritical(t *testing.T) {
	s := New()
	s.SetLimit(1, "2", "1.3.6.1.2.1.2.2.1.10", 80)

	_, had := s.Merge(1, "2", "1.3.6.1.2.1.2.2.1.10", "100", 1000)
	assert.False(t, had, "a limit placeholder is not a previous value")

	s.Update(1, "2", func(samples map[string]*models.Sample) {
		samples["1.3.6.1.2.1.2.2.1.10"].Critical = true
	})

	prev, had := s.Merge(1, "2", "1.3.6.1.2.1.2.2.1.10", "200", 2000)
	assert.True(t, had)
	assert.Equal(t, "100", prev)

	got, ok := s.Get(1, "2", "1.3.6.1.2.1.2.2.1.10")
	require.True(t, ok)
	assert.Equal(t, models.Sample{Timestamp: 2000, Value: "200", Limit: 80, Critical: true}, got)
}

func TestIndexesAndRemove(t *testing.T) {
	s := New()
	s.Merge(7, "3", "a", "x", 1)
	s.Merge(7, "1", "a", "y", 1)
	s.Merge(8, "1", "a", "z", 1)

	assert.Equal(t, []string{"1", "3"}, s.Indexes(7))
	assert.Equal(t, 2, s.Devices())

	s.Remove(7)
	assert.Nil(t, s.Indexes(7))
	_, ok := s.Get(7, "1", "a")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Devices())
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New()
	s.Merge(1, "0", "a", "1", 1)

	snap := s.Snapshot(1)
	smp := snap["0"]["a"]
	smp.Value = "changed"
	snap["0"]["a"] = smp

	got, _ := s.Get(1, "0", "a")
	assert.Equal(t, "1", got.Value)
}

func TestConcurrentDevices(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for id := models.DeviceID(0); id < 16; id++ {
		wg.Add(1)
		go func(id models.DeviceID) {
			defer wg.Done()
			for i := int64(1); i <= 100; i++ {
				s.Merge(id, "1", "a", "v", i)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 16, s.Devices())
	got, _ := s.Get(3, "1", "a")
	assert.Equal(t, int64(100), got.Timestamp)
}
