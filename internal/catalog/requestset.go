package catalog

import (
	"sync"

	"beacon/internal/models"
)

// RequestSet yields, per device, the OIDs to walk: the catalog's global
// set followed by any device-specific extras, without duplicates.
type RequestSet struct {
	mu     sync.RWMutex
	common []string
	extra  map[models.DeviceID][]string
}

func NewRequestSet(c *Catalog) *RequestSet {
	return &RequestSet{
		common: c.Requestable(),
		extra:  make(map[models.DeviceID][]string),
	}
}

// SetExtra replaces the extra OIDs for a device. An empty list removes them.
func (s *RequestSet) SetExtra(id models.DeviceID, oids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(oids) == 0 {
		delete(s.extra, id)
		return
	}

	list := make([]string, 0, len(oids))
	for _, oid := range oids {
		if oid = Trim(oid); oid != "" {
			list = append(list, oid)
		}
	}
	s.extra[id] = list
}

// Remove forgets the extras for a device.
func (s *RequestSet) Remove(id models.DeviceID) {
	s.mu.Lock()
	delete(s.extra, id)
	s.mu.Unlock()
}

// Build returns the ordered, de-duplicated union of the global set and the device's extras.
func (s *RequestSet) Build(id models.DeviceID) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	extra := s.extra[id]
	out := make([]string, 0, len(s.common)+len(extra))
	seen := make(map[string]struct{}, cap(out))

	for _, list := range [][]string{s.common, extra} {
		for _, oid := range list {
			if _, ok := seen[oid]; ok {
				continue
			}
			seen[oid] = struct{}{}
			out = append(out, oid)
		}
	}
	return out
}
