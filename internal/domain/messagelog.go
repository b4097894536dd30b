package domain

import "time"

// Direction enumerates inbound vs outbound message flow.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// LogStatus enumerates a message log entry's lifecycle status.
type LogStatus string

const (
	LogPending LogStatus = "pending"
	LogSuccess LogStatus = "success"
	LogError   LogStatus = "error"
)

// Severity enumerates diagnostic severities.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic is one validation or processing finding attached to a message
// log entry.
type Diagnostic struct {
	Code     string
	Severity Severity
	Segment  string
	Field    int
	Text     string
}

// MessageLogEntry is one wire event record.
type MessageLogEntry struct {
	ID            string
	ControlID     string // unique
	Trigger       string
	Direction     Direction
	CorrelationID string
	Raw           []byte
	Timestamp     time.Time
	Status        LogStatus
	Diagnostics   []Diagnostic
	EndpointID    string
}
