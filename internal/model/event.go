package model

import "fmt"

// EventType tags the logical kind of an already-serialized event
type EventType int

const (
	EventTypeLog EventType = iota
	EventTypeRUM
	EventTypeCrashLog
	EventTypeSpan
)

// String returns the wire name of the event type
func (t EventType) String() string {
	switch t {
	case EventTypeLog:
		return "log"
	case EventTypeRUM:
		return "rum"
	case EventTypeCrashLog:
		return "crash_log"
	case EventTypeSpan:
		return "span"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// ParseEventType resolves a wire name into an EventType
func ParseEventType(name string) (EventType, error) {
	switch name {
	case "log":
		return EventTypeLog, nil
	case "rum":
		return EventTypeRUM, nil
	case "crash_log":
		return EventTypeCrashLog, nil
	case "span":
		return EventTypeSpan, nil
	default:
		return 0, fmt.Errorf("unknown event type %q", name)
	}
}

// Event is an opaque serialized payload plus its type tag.
// The pipeline only ever manipulates Data as bytes.
type Event struct {
	Type EventType
	Data []byte
}

// FileState is the lifecycle state of a batch file
type FileState string

const (
	FileStateWritable FileState = "writable"
	FileStateReadable FileState = "readable"
	FileStateDeleted  FileState = "deleted"
)
