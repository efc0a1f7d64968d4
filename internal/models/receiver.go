package models

// Receiver consumes the engine's domain events. Implementations must be safe
// for concurrent use; events of a single device arrive in order.
type Receiver interface {
	// OnLiveness reports a liveness result; rtt is in milliseconds or -1 when unreachable
	OnLiveness(id DeviceID, rtt int64, protocol Protocol)
	// OnProtocolStatus reports the SNMP status code at the end of a walk
	OnProtocolStatus(id DeviceID, code int)
	OnRawSample(id DeviceID, oid, index, value string)
	OnCriticalEvent(ev CriticalEvent)
	OnChange(ev ChangeEvent)
	OnClassification(c Classification)
	OnDiscovery(address, profile string)
}

// Forgetter is implemented by receivers that keep per-device state.
type Forgetter interface {
	Forget(id DeviceID)
}

// NopReceiver discards every event
type NopReceiver struct{}

func (NopReceiver) OnLiveness(DeviceID, int64, Protocol)         {}
func (NopReceiver) OnProtocolStatus(DeviceID, int)               {}
func (NopReceiver) OnRawSample(DeviceID, string, string, string) {}
func (NopReceiver) OnCriticalEvent(CriticalEvent)                {}
func (NopReceiver) OnChange(ChangeEvent)                         {}
func (NopReceiver) OnClassification(Classification)              {}
func (NopReceiver) OnDiscovery(string, string)                   {}
