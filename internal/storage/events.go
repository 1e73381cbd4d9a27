package storage

import "time"

// EventWriter is the interface for writing bridge decision events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *DecisionEvent)
	Close()
}

// DecisionEvent records one bridge authorization cycle for auditing.
// Every deny is attributable to exactly one reason.
type DecisionEvent struct {
	RequestID     string
	ClientID      string
	Timestamp     time.Time
	ToolID        string
	UserID        string
	Department    string
	Operation     string
	SourceName    string
	TableName     string
	Decision      string // "allow", "deny" or "error"
	DenyReason    string
	ColumnsAsked  uint32
	ColumnsServed uint32
	ExecutorError bool
	LatencyMs     float32
}
