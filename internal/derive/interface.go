package derive

import (
	"fmt"

	"beacon/internal/alerts"
	"beacon/internal/catalog"
	"beacon/internal/models"
)

// Octets derives bits per second and utilisation from an interface octet counter.
type Octets struct {
	*tracker
	*counter
	engine     alerts.Engine
	name       string
	counterOID string
	bpsOID     string
	title      string
}

func NewInOctets(engine alerts.Engine) *Octets {
	return &Octets{
		tracker:    newTracker(true),
		counter:    newCounter(),
		engine:     engine,
		name:       "ifinoctets",
		counterOID: catalog.IfInOctets,
		bpsOID:     catalog.InBPS,
		title:      "receive",
	}
}

func NewOutOctets(engine alerts.Engine) *Octets {
	return &Octets{
		tracker:    newTracker(true),
		counter:    newCounter(),
		engine:     engine,
		name:       "ifoutoctets",
		counterOID: catalog.IfOutOctets,
		bpsOID:     catalog.OutBPS,
		title:      "transmit",
	}
}

func (o *Octets) Name() string { return o.name }

// speed prefers the configured bandwidth, then ifHighSpeed in Mbps, then ifSpeed.
func speed(samples map[string]*models.Sample) int64 {
	if v, ok := number(samples, catalog.Bandwidth); ok {
		return v
	}
	if v, ok := number(samples, catalog.IfHighSpeed); ok {
		return v * 1_000_000
	}
	if v, ok := number(samples, catalog.IfSpeed); ok {
		return v
	}
	return 0
}

func (o *Octets) Parse(id models.DeviceID, index string, samples map[string]*models.Sample) *models.CriticalEvent {
	bandwidth := speed(samples)
	if bandwidth <= 0 {
		return nil
	}

	octets, ok := number(samples, o.counterOID)
	if !ok {
		return nil
	}
	idx, ok := parseIndex(index)
	if !ok {
		return nil
	}

	s := samples[o.counterOID]
	bps, ok := o.rate(id, idx, octets, s.Timestamp, 8000)
	if !ok {
		return nil
	}

	utilisation := bps * 100 / bandwidth
	o.offer(models.Max{DeviceID: id, Index: index, Value: bps, Rate: utilisation})
	put(samples, o.bpsOID, bps, s.Timestamp)

	critical, changed := o.engine.Evaluate(s, utilisation)
	if !changed {
		return nil
	}
	return &models.CriticalEvent{
		DeviceID: id,
		Index:    index,
		OID:      o.counterOID,
		Critical: critical,
		Message:  fmt.Sprintf("%s %d%%", o.title, utilisation),
	}
}

// Errors derives errors per second from an interface error counter.
type Errors struct {
	*tracker
	*counter
	engine    alerts.Engine
	name      string
	errorsOID string
	cpsOID    string
	title     string
}

func NewInErrors(engine alerts.Engine) *Errors {
	return &Errors{
		tracker:   newTracker(false),
		counter:   newCounter(),
		engine:    engine,
		name:      "ifinerrors",
		errorsOID: catalog.IfInErrors,
		cpsOID:    catalog.InErrs,
		title:     "receive errors",
	}
}

func NewOutErrors(engine alerts.Engine) *Errors {
	return &Errors{
		tracker:   newTracker(false),
		counter:   newCounter(),
		engine:    engine,
		name:      "ifouterrors",
		errorsOID: catalog.IfOutErrors,
		cpsOID:    catalog.OutErrs,
		title:     "transmit errors",
	}
}

func (e *Errors) Name() string { return e.name }

func (e *Errors) Parse(id models.DeviceID, index string, samples map[string]*models.Sample) *models.CriticalEvent {
	errs, ok := number(samples, e.errorsOID)
	if !ok {
		return nil
	}
	idx, ok := parseIndex(index)
	if !ok {
		return nil
	}

	s := samples[e.errorsOID]
	cps, ok := e.rate(id, idx, errs, s.Timestamp, 1000)
	if !ok {
		return nil
	}

	e.offer(models.Max{DeviceID: id, Index: index, Value: cps, Rate: -1})
	put(samples, e.cpsOID, cps, s.Timestamp)

	critical, changed := e.engine.Evaluate(s, cps)
	if !changed {
		return nil
	}
	return &models.CriticalEvent{
		DeviceID: id,
		Index:    index,
		OID:      e.errorsOID,
		Critical: critical,
		Message:  fmt.Sprintf("%s %dcps", e.title, cps),
	}
}
