package models

// Sample is the latest observation of one metric on one device index.
// Samples are mutated in place; Critical flips only on a detected transition.
type Sample struct {
	// Unix milliseconds
	Timestamp int64  `json:"timestamp"`
	Value     string `json:"value"`
	// Threshold for the derived value; <= 0 means unset
	Limit    int64 `json:"limit"`
	Critical bool  `json:"critical"`
}

// CriticalEvent is raised when a derived value crosses or leaves its threshold
type CriticalEvent struct {
	DeviceID DeviceID
	Index    string
	OID      string
	Critical bool
	Message  string
}

// ChangeEvent is raised when a metric flagged alert-on-change takes a new value
type ChangeEvent struct {
	DeviceID DeviceID
	Index    string
	OID      string
	Previous string
	Current  string
	Level    Level
	Message  string
}

// Classification is the outcome of a one-shot reachability test
type Classification struct {
	DeviceID DeviceID
	Address  string
	Protocol Protocol
	// Name of the credential profile that answered, SNMP only
	Profile string
	Success bool
}

// Max is a per-device maximum produced by a derivation strategy.
// Rate is -1 when the family has no secondary measure.
type Max struct {
	DeviceID DeviceID `json:"device_id"`
	Index    string   `json:"index"`
	Value    int64    `json:"value"`
	Rate     int64    `json:"rate"`
}

// Rank is one entry of a top-N listing; Max is nil for devices without a published value
type Rank struct {
	DeviceID DeviceID `json:"device_id"`
	Max      *Max     `json:"max,omitempty"`
}
