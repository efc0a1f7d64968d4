package models

import (
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Origin identifies which part of the engine raised an event
type Origin string

const (
	OriginStatus   Origin = "status"
	OriginSNMP     Origin = "snmp"
	OriginRegister Origin = "register"
	OriginSearch   Origin = "search"
	OriginCritical Origin = "critical"
	OriginChange   Origin = "change"
	OriginSystem   Origin = "system"
)

// Level is the severity attached to a published event
type Level string

const (
	LevelNormal  Level = "normal"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Event is a domain event published to the notification pipeline
type Event struct {
	// Unique identifier for the event
	ID string `json:"id"`

	Origin   Origin   `json:"origin"`
	DeviceID DeviceID `json:"device_id"`
	Level    Level    `json:"level"`
	Message  string   `json:"message"`

	// Optional metric coordinates for critical and change events
	Index string `json:"index,omitempty"`
	OID   string `json:"oid,omitempty"`
	Value string `json:"value,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Validation errors
var (
	ErrEmptyID           = errors.New("event ID cannot be empty")
	ErrInvalidOrigin     = errors.New("invalid event origin")
	ErrInvalidEventLevel = errors.New("invalid event level")
	ErrZeroTimestamp     = errors.New("timestamp cannot be zero")
	ErrFutureTimestamp   = errors.New("timestamp cannot be in the future")
	ErrEmptyMessage      = errors.New("message cannot be empty")
	ErrMessageTooLong    = errors.New("message exceeds maximum length")
)

const MaxMessageLength = 4096

// NewEvent creates an event with a fresh ID and the current time
func NewEvent(origin Origin, id DeviceID, level Level, message string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Origin:    origin,
		DeviceID:  id,
		Level:     level,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// Validate checks if the Event has all required fields and valid values
func (e *Event) Validate() error {
	if e.ID == "" {
		return ErrEmptyID
	}

	if !e.Origin.IsValid() {
		return ErrInvalidOrigin
	}

	if !e.Level.IsValid() {
		return ErrInvalidEventLevel
	}

	if e.Timestamp.IsZero() {
		return ErrZeroTimestamp
	}

	if e.Timestamp.After(time.Now().Add(time.Minute)) {
		return ErrFutureTimestamp
	}

	if e.Message == "" {
		return ErrEmptyMessage
	}

	if len(e.Message) > MaxMessageLength {
		return ErrMessageTooLong
	}

	return nil
}

// IsValid checks if the origin is known
func (o Origin) IsValid() bool {
	switch o {
	case OriginStatus, OriginSNMP, OriginRegister, OriginSearch, OriginCritical, OriginChange, OriginSystem:
		return true
	default:
		return false
	}
}

// IsValid checks if the level is known
func (l Level) IsValid() bool {
	switch l {
	case LevelNormal, LevelWarning, LevelError:
		return true
	default:
		return false
	}
}

// DeviceID is the stable identifier of a monitored device
type DeviceID int64

func (id DeviceID) String() string {
	return strconv.FormatInt(int64(id), 10)
}
