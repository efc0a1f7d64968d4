package derive

import (
	"fmt"
	"strings"

	"beacon/internal/alerts"
	"beacon/internal/models"
)

// ResponseTimeIndex is the index the liveness round trip is stored under
const ResponseTimeIndex = "0"

// Pipeline runs every family over a device's samples at the end of a poll.
// Response time is driven separately, by liveness results.
type Pipeline struct {
	strategies []Strategy
	byName     map[string]Strategy
	load       *ProcessorLoad
	rtt        *ResponseTime
}

func NewPipeline(engine alerts.Engine) *Pipeline {
	p := &Pipeline{
		load: NewProcessorLoad(engine),
		rtt:  NewResponseTime(engine),
	}
	p.strategies = []Strategy{
		p.load,
		NewStorageMemory(engine),
		NewStorageUsed(engine),
		NewInOctets(engine),
		NewOutOctets(engine),
		NewInErrors(engine),
		NewOutErrors(engine),
	}

	p.byName = make(map[string]Strategy, len(p.strategies)+1)
	for _, s := range p.strategies {
		p.byName[s.Name()] = s
	}
	p.byName[p.rtt.Name()] = p.rtt
	return p
}

// Parse runs every polled family on one index and returns the transitions raised.
func (p *Pipeline) Parse(id models.DeviceID, index string, samples map[string]*models.Sample) []models.CriticalEvent {
	var events []models.CriticalEvent
	for _, s := range p.strategies {
		if ev := s.Parse(id, index, samples); ev != nil {
			events = append(events, *ev)
		}
	}
	return events
}

// ParseResponseTime evaluates the round trip stored in samples and publishes it immediately.
func (p *Pipeline) ParseResponseTime(id models.DeviceID, samples map[string]*models.Sample) *models.CriticalEvent {
	ev := p.rtt.Parse(id, ResponseTimeIndex, samples)
	p.rtt.Submit(id)
	return ev
}

// Submit publishes the maxima of every polled family.
func (p *Pipeline) Submit(id models.DeviceID) {
	for _, s := range p.strategies {
		s.Submit(id)
	}
}

// Reset discards the maxima of every polled family.
func (p *Pipeline) Reset(id models.DeviceID) {
	for _, s := range p.strategies {
		s.Reset(id)
	}
}

// ResetResponseTime discards the published round trip of an unreachable device.
func (p *Pipeline) ResetResponseTime(id models.DeviceID) {
	p.rtt.Reset(id)
}

// Forget drops all state for a removed device.
func (p *Pipeline) Forget(id models.DeviceID) {
	for _, s := range p.byName {
		s.Reset(id)
		if f, ok := s.(forgetter); ok {
			f.Forget(id)
		}
	}
}

// Load returns the device's average processor load.
func (p *Pipeline) Load(id models.DeviceID) (int64, bool) {
	return p.load.Load(id)
}

// Top ranks ids for one family, named as in Names.
func (p *Pipeline) Top(ids []models.DeviceID, family string, byRate bool) ([]models.Rank, error) {
	s, ok := p.byName[strings.ToLower(family)]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownMetric, family)
	}
	return s.Top(ids, byRate), nil
}

// Names lists the family names accepted by Top.
func (p *Pipeline) Names() []string {
	out := make([]string, 0, len(p.byName))
	for _, s := range p.strategies {
		out = append(out, s.Name())
	}
	return append(out, p.rtt.Name())
}
