package domain

import "time"

// EventName enumerates the recognized JSONL event log entries.
type EventName string

const (
	EventFill              EventName = "Fill"
	EventExit              EventName = "Exit"
	EventWatchdogExit      EventName = "WatchdogExit"
	EventAsyncHeartbeat    EventName = "AsyncHeartbeat"
	EventSessionStopped    EventName = "SessionStopped"
	EventCheckpointError   EventName = "CheckpointError"
	EventExecutionTaskErr  EventName = "ExecutionTaskError"
	EventFunding           EventName = "Funding"
)

// Event is one append-only JSONL record. EventID is the content hash of
// Name+Payload (excluding Timestamp), used to suppress duplicate appends.
type Event struct {
	Name      EventName              `json:"event"`
	Timestamp time.Time              `json:"timestamp"`
	EventID   string                 `json:"event_id"`
	Payload   map[string]interface{} `json:"-"`
}
