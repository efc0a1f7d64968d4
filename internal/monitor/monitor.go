// Package monitor turns node events into domain events: it keeps the latest
// samples, runs the derivation pipeline and forwards everything to the
// application's receiver.
package monitor

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"beacon/internal/catalog"
	"beacon/internal/derive"
	"beacon/internal/logger"
	"beacon/internal/models"
	"beacon/internal/snmp"
	"beacon/internal/state"
)

// Monitor is a models.Receiver that decorates another one.
type Monitor struct {
	next     models.Receiver
	catalog  *catalog.Catalog
	store    *state.Store
	pipeline *derive.Pipeline
	now      func() time.Time
	log      zerolog.Logger
}

func New(next models.Receiver, c *catalog.Catalog, store *state.Store, pipeline *derive.Pipeline) *Monitor {
	if next == nil {
		next = models.NopReceiver{}
	}
	return &Monitor{
		next:     next,
		catalog:  c,
		store:    store,
		pipeline: pipeline,
		now:      time.Now,
		log:      logger.WithComponent("monitor"),
	}
}

// OnLiveness records the round trip as a sample and evaluates it at once.
func (m *Monitor) OnLiveness(id models.DeviceID, rtt int64, protocol models.Protocol) {
	if rtt >= 0 {
		m.store.Merge(id, derive.ResponseTimeIndex, catalog.ResponseTime, strconv.FormatInt(rtt, 10), m.now().UnixMilli())

		var ev *models.CriticalEvent
		m.store.Update(id, derive.ResponseTimeIndex, func(samples map[string]*models.Sample) {
			ev = m.pipeline.ParseResponseTime(id, samples)
		})
		if ev != nil {
			m.next.OnCriticalEvent(*ev)
		}
	} else {
		m.pipeline.ResetResponseTime(id)
	}

	m.next.OnLiveness(id, rtt, protocol)
}

// OnProtocolStatus closes a poll. A successful walk derives every family and
// publishes the maxima; any other status discards them.
func (m *Monitor) OnProtocolStatus(id models.DeviceID, code int) {
	if code == snmp.StatusSuccess {
		var events []models.CriticalEvent
		for _, index := range m.store.Indexes(id) {
			m.store.Update(id, index, func(samples map[string]*models.Sample) {
				events = append(events, m.pipeline.Parse(id, index, samples)...)
			})
		}
		m.pipeline.Submit(id)

		for _, ev := range events {
			m.next.OnCriticalEvent(ev)
		}

		if load, ok := m.pipeline.Load(id); ok {
			m.next.OnRawSample(id, catalog.HrProcessorLoad, "0", strconv.FormatInt(load, 10))
		}
	} else {
		m.pipeline.Reset(id)
		m.log.Debug().Int64("device_id", int64(id)).Int("status", code).Msg("poll failed")
	}

	m.next.OnProtocolStatus(id, code)
}

// OnRawSample stores the sample under its canonical OID and raises a change
// event when an alert-on-change metric takes a new value.
func (m *Monitor) OnRawSample(id models.DeviceID, oid, index, value string) {
	oid = m.catalog.Canonical(oid)
	prev, had := m.store.Merge(id, index, oid, value, m.now().UnixMilli())

	if rule, ok := m.catalog.Lookup(oid); ok && rule.AlertOnChange && had && prev != value {
		m.next.OnChange(change(id, rule, index, prev, value))
	}

	m.next.OnRawSample(id, oid, index, value)
}

func (m *Monitor) OnCriticalEvent(ev models.CriticalEvent) { m.next.OnCriticalEvent(ev) }

func (m *Monitor) OnChange(ev models.ChangeEvent) { m.next.OnChange(ev) }

func (m *Monitor) OnClassification(c models.Classification) { m.next.OnClassification(c) }

func (m *Monitor) OnDiscovery(address, profile string) { m.next.OnDiscovery(address, profile) }

// SetLimit sets the threshold of one metric. A limit <= 0 removes it; a
// device already critical on that metric is cleared on its next poll.
func (m *Monitor) SetLimit(id models.DeviceID, index, oid string, limit int64) {
	m.store.SetLimit(id, index, m.catalog.Canonical(oid), limit)
}

// Forget drops every sample and maximum of a device, then tells the next
// receiver if it keeps state of its own.
func (m *Monitor) Forget(id models.DeviceID) {
	m.store.Remove(id)
	m.pipeline.Forget(id)
	if f, ok := m.next.(models.Forgetter); ok {
		f.Forget(id)
	}
}

// Top ranks devices by a family's published maximum.
func (m *Monitor) Top(ids []models.DeviceID, family string, byRate bool) ([]models.Rank, error) {
	return m.pipeline.Top(ids, family, byRate)
}

// Snapshot copies the samples of a device
func (m *Monitor) Snapshot(id models.DeviceID) map[string]map[string]models.Sample {
	return m.store.Snapshot(id)
}

// ifOperStatus values
const (
	operUp   = "1"
	operDown = "2"
)

func change(id models.DeviceID, rule models.MetricRule, index, prev, cur string) models.ChangeEvent {
	ev := models.ChangeEvent{
		DeviceID: id,
		Index:    index,
		OID:      rule.OID,
		Previous: prev,
		Current:  cur,
		Level:    models.LevelWarning,
		Message:  fmt.Sprintf("%s.%s changed from %q to %q", rule.Name, index, prev, cur),
	}

	if rule.OID == catalog.IfOperStatus {
		switch cur {
		case operUp:
			ev.Level, ev.Message = models.LevelNormal, fmt.Sprintf("Interface %s UP", index)
		case operDown:
			ev.Level, ev.Message = models.LevelError, fmt.Sprintf("Interface %s DOWN", index)
		}
	}
	return ev
}

// Devices returns the number of devices with stored samples
func (m *Monitor) Devices() int {
	return m.store.Devices()
}
