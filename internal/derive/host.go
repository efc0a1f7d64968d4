package derive

import (
	"fmt"
	"sync"

	"beacon/internal/alerts"
	"beacon/internal/catalog"
	"beacon/internal/models"
)

// ProcessorLoad tracks hrProcessorLoad per processor and its per-device average.
type ProcessorLoad struct {
	*tracker
	engine alerts.Engine

	mu    sync.Mutex
	loads map[models.DeviceID]map[int]int64
}

func NewProcessorLoad(engine alerts.Engine) *ProcessorLoad {
	return &ProcessorLoad{
		tracker: newTracker(false),
		engine:  engine,
		loads:   make(map[models.DeviceID]map[int]int64),
	}
}

func (p *ProcessorLoad) Name() string { return "hrprocessorload" }

func (p *ProcessorLoad) Parse(id models.DeviceID, index string, samples map[string]*models.Sample) *models.CriticalEvent {
	load, ok := number(samples, catalog.HrProcessorLoad)
	if !ok {
		return nil
	}
	idx, ok := parseIndex(index)
	if !ok {
		return nil
	}

	p.mu.Lock()
	byIndex, ok := p.loads[id]
	if !ok {
		byIndex = make(map[int]int64)
		p.loads[id] = byIndex
	}
	byIndex[idx] = load
	p.mu.Unlock()

	p.offer(models.Max{DeviceID: id, Index: index, Value: load, Rate: load})

	critical, changed := p.engine.Evaluate(samples[catalog.HrProcessorLoad], load)
	if !changed {
		return nil
	}
	return &models.CriticalEvent{
		DeviceID: id,
		Index:    index,
		OID:      catalog.HrProcessorLoad,
		Critical: critical,
		Message:  fmt.Sprintf("processor load %d%%", load),
	}
}

// Load returns the average load over every processor seen for the device.
func (p *ProcessorLoad) Load(id models.DeviceID) (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	byIndex := p.loads[id]
	if len(byIndex) == 0 {
		return 0, false
	}

	var sum int64
	for _, l := range byIndex {
		sum += l
	}
	return sum / int64(len(byIndex)), true
}

func (p *ProcessorLoad) Forget(id models.DeviceID) {
	p.mu.Lock()
	delete(p.loads, id)
	p.mu.Unlock()
}

// Storage derives used bytes and usage percent for one hrStorageType.
type Storage struct {
	*tracker
	engine  alerts.Engine
	name    string
	typeOID string
	title   string
}

// NewStorageMemory covers hrStorageRam entries.
func NewStorageMemory(engine alerts.Engine) *Storage {
	return &Storage{
		tracker: newTracker(true),
		engine:  engine,
		name:    "hrstoragememory",
		typeOID: catalog.HrStorageRAM,
		title:   "physical memory",
	}
}

// NewStorageUsed covers hrStorageFixedDisk entries.
func NewStorageUsed(engine alerts.Engine) *Storage {
	return &Storage{
		tracker: newTracker(true),
		engine:  engine,
		name:    "hrstorageused",
		typeOID: catalog.HrStorageFixedDisk,
		title:   "disk usage",
	}
}

func (s *Storage) Name() string { return s.name }

func (s *Storage) Parse(id models.DeviceID, index string, samples map[string]*models.Sample) *models.CriticalEvent {
	typ, ok := samples[catalog.HrStorageType]
	if !ok || catalog.Trim(typ.Value) != s.typeOID {
		return nil
	}

	size, ok := number(samples, catalog.HrStorageSize)
	if !ok || size <= 0 {
		return nil
	}
	units, ok := number(samples, catalog.HrStorageAllocationUnits)
	if !ok {
		return nil
	}
	used, ok := number(samples, catalog.HrStorageUsed)
	if !ok {
		return nil
	}
	if _, ok := parseIndex(index); !ok {
		return nil
	}

	percent := used * 100 / size
	s.offer(models.Max{DeviceID: id, Index: index, Value: used * units, Rate: percent})

	critical, changed := s.engine.Evaluate(samples[catalog.HrStorageUsed], percent)
	if !changed {
		return nil
	}
	return &models.CriticalEvent{
		DeviceID: id,
		Index:    index,
		OID:      catalog.HrStorageUsed,
		Critical: critical,
		Message:  fmt.Sprintf("%s %d%%", s.title, percent),
	}
}

// ResponseTime evaluates the liveness round trip stored under index "0".
type ResponseTime struct {
	*tracker
	engine alerts.Engine
}

func NewResponseTime(engine alerts.Engine) *ResponseTime {
	return &ResponseTime{tracker: newTracker(false), engine: engine}
}

func (r *ResponseTime) Name() string { return "responsetime" }

func (r *ResponseTime) Parse(id models.DeviceID, index string, samples map[string]*models.Sample) *models.CriticalEvent {
	rtt, ok := number(samples, catalog.ResponseTime)
	if !ok {
		return nil
	}
	if _, ok := parseIndex(index); !ok {
		return nil
	}

	r.offer(models.Max{DeviceID: id, Index: index, Value: rtt, Rate: -1})

	critical, changed := r.engine.Evaluate(samples[catalog.ResponseTime], rtt)
	if !changed {
		return nil
	}
	return &models.CriticalEvent{
		DeviceID: id,
		Index:    index,
		OID:      catalog.ResponseTime,
		Critical: critical,
		Message:  fmt.Sprintf("response time %dms", rtt),
	}
}
