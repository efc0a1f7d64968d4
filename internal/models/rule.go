package models

// Decode selects how a raw SNMP value is rendered to text
type Decode int

const (
	DecodeRaw Decode = iota
	DecodeText
	DecodeTimeTicks
)

func (d Decode) String() string {
	switch d {
	case DecodeText:
		return "text"
	case DecodeTimeTicks:
		return "timeticks"
	default:
		return "raw"
	}
}

// MetricRule describes how one OID is decoded, stored and alerted on
type MetricRule struct {
	OID             string
	Name            string
	Decode          Decode
	PersistAsSeries bool
	AlertOnChange   bool
}
