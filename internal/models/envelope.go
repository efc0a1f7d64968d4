package models

import (
	"time"
)

// Envelope wraps an Event with internal metadata for publishing
type Envelope struct {
	// Original event
	Event *Event `json:"event"`

	// Internal processing metadata
	ReceivedAt   time.Time `json:"received_at"`
	Node         string    `json:"node"`
	RetryCount   int       `json:"retry_count"`
	PartitionKey string    `json:"partition_key"`
}

// NewEnvelope creates a new envelope wrapping an event
func NewEnvelope(event *Event, node string) *Envelope {
	return &Envelope{
		Event:        event,
		ReceivedAt:   time.Now().UTC(),
		Node:         node,
		RetryCount:   0,
		PartitionKey: event.DeviceID.String(), // keeps one device's events ordered
	}
}
