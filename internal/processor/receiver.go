package processor

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"beacon/internal/logger"
	"beacon/internal/metrics"
	"beacon/internal/models"
	"beacon/internal/snmp"
)

// Sink accepts envelopes without blocking
type Sink interface {
	Submit(envelope *models.Envelope) bool
}

// deviceState is the last published condition of a device
type deviceState struct {
	unreachable bool
	snmpCode    int
}

// EventReceiver turns engine callbacks into published events. Liveness and
// SNMP status are published only when they change; threshold, change,
// classification and discovery events are always published.
type EventReceiver struct {
	sink Sink
	node string

	mu     sync.Mutex
	states map[models.DeviceID]*deviceState

	log zerolog.Logger
}

func NewEventReceiver(sink Sink, node string) *EventReceiver {
	return &EventReceiver{
		sink:   sink,
		node:   node,
		states: make(map[models.DeviceID]*deviceState),
		log:    logger.WithComponent("events"),
	}
}

func (r *EventReceiver) state(id models.DeviceID) *deviceState {
	s, ok := r.states[id]
	if !ok {
		s = &deviceState{}
		r.states[id] = s
	}
	return s
}

func (r *EventReceiver) OnLiveness(id models.DeviceID, rtt int64, protocol models.Protocol) {
	unreachable := rtt < 0

	r.mu.Lock()
	s := r.state(id)
	changed := s.unreachable != unreachable
	s.unreachable = unreachable
	r.mu.Unlock()

	if !changed {
		return
	}

	if unreachable {
		r.publish(models.NewEvent(models.OriginStatus, id, models.LevelError,
			fmt.Sprintf("device unreachable over %s", protocol)))
		return
	}
	ev := models.NewEvent(models.OriginStatus, id, models.LevelNormal,
		fmt.Sprintf("device reachable over %s", protocol))
	ev.Value = fmt.Sprint(rtt)
	r.publish(ev)
}

func (r *EventReceiver) OnProtocolStatus(id models.DeviceID, code int) {
	r.mu.Lock()
	s := r.state(id)
	changed := s.snmpCode != code
	s.snmpCode = code
	r.mu.Unlock()

	if !changed {
		return
	}

	var ev *models.Event
	switch {
	case code == snmp.StatusSuccess:
		ev = models.NewEvent(models.OriginSNMP, id, models.LevelNormal, "snmp agent responding")
	case code == snmp.StatusTimeout:
		ev = models.NewEvent(models.OriginSNMP, id, models.LevelError, "snmp request timed out")
	default:
		ev = models.NewEvent(models.OriginSNMP, id, models.LevelWarning, fmt.Sprintf("snmp error-status %d", code))
	}
	ev.Value = fmt.Sprint(code)
	r.publish(ev)
}

// Forget drops the last published condition of a removed device.
func (r *EventReceiver) Forget(id models.DeviceID) {
	r.mu.Lock()
	delete(r.states, id)
	r.mu.Unlock()
}

func (r *EventReceiver) tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

// OnRawSample is not published; samples are served from the store.
func (r *EventReceiver) OnRawSample(id models.DeviceID, oid, index, value string) {}

func (r *EventReceiver) OnCriticalEvent(c models.CriticalEvent) {
	level := models.LevelNormal
	if c.Critical {
		level = models.LevelError
	}
	ev := models.NewEvent(models.OriginCritical, c.DeviceID, level, c.Message)
	ev.Index, ev.OID = c.Index, c.OID
	r.publish(ev)
}

func (r *EventReceiver) OnChange(c models.ChangeEvent) {
	ev := models.NewEvent(models.OriginChange, c.DeviceID, c.Level, c.Message)
	ev.Index, ev.OID, ev.Value = c.Index, c.OID, c.Current
	r.publish(ev)
}

func (r *EventReceiver) OnClassification(c models.Classification) {
	var ev *models.Event
	switch {
	case !c.Success:
		ev = models.NewEvent(models.OriginRegister, c.DeviceID, models.LevelWarning,
			fmt.Sprintf("%s did not answer over %s", c.Address, c.Protocol))
	case c.Profile != "":
		ev = models.NewEvent(models.OriginRegister, c.DeviceID, models.LevelNormal,
			fmt.Sprintf("%s answers over %s with profile %s", c.Address, c.Protocol, c.Profile))
	default:
		ev = models.NewEvent(models.OriginRegister, c.DeviceID, models.LevelNormal,
			fmt.Sprintf("%s answers over %s", c.Address, c.Protocol))
	}
	ev.Value = string(c.Protocol)
	r.publish(ev)
}

func (r *EventReceiver) OnDiscovery(address, profile string) {
	ev := models.NewEvent(models.OriginSearch, 0, models.LevelNormal,
		fmt.Sprintf("snmp agent found at %s with profile %s", address, profile))
	ev.Value = address
	r.publish(ev)
}

// OnSystem publishes an engine lifecycle event
func (r *EventReceiver) OnSystem(message string) {
	r.publish(models.NewEvent(models.OriginSystem, 0, models.LevelNormal, message))
}

func (r *EventReceiver) publish(ev *models.Event) {
	if err := ev.Validate(); err != nil {
		r.log.Error().Err(err).Str("origin", string(ev.Origin)).Msg("invalid event dropped")
		metrics.EventsTotal.WithLabelValues(string(ev.Origin), "invalid").Inc()
		return
	}

	if !r.sink.Submit(models.NewEnvelope(ev, r.node)) {
		r.log.Warn().
			Str("origin", string(ev.Origin)).
			Int64("device_id", int64(ev.DeviceID)).
			Msg("event queue full, event dropped")
		metrics.EventsTotal.WithLabelValues(string(ev.Origin), "dropped").Inc()
		return
	}
	metrics.EventsTotal.WithLabelValues(string(ev.Origin), "queued").Inc()
}
