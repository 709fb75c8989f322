package core

import (
	"sync"
	"time"
)

// LogCategory classifies action log entries.
type LogCategory string

const (
	LogDMX      LogCategory = "dmx"
	LogSound    LogCategory = "sound"
	LogSleep    LogCategory = "sleep"
	LogSequence LogCategory = "sequence"
	LogLoop     LogCategory = "loop"
	LogSystem   LogCategory = "system"
	LogError    LogCategory = "error"
)

// LogEntry is one recorded engine action.
type LogEntry struct {
	Time     time.Time              `json:"time"`
	Category LogCategory            `json:"category"`
	Message  string                 `json:"message"`
	Fields   map[string]interface{} `json:"fields,omitempty"`
}

// ActionLogCapacity is the number of entries the log retains.
const ActionLogCapacity = 100

// ActionLog is a bounded history of engine actions. The engine worker is the
// only writer; any number of readers may take snapshots concurrently.
type ActionLog struct {
	mu      sync.RWMutex
	entries []LogEntry
	bus     *EventBus
}

// NewActionLog creates an empty log. The bus may be nil; when set, every
// append is also published as a LogAppendedEvent.
func NewActionLog(bus *EventBus) *ActionLog {
	return &ActionLog{
		entries: make([]LogEntry, 0, ActionLogCapacity),
		bus:     bus,
	}
}

// Append records one entry, evicting the oldest once the capacity is reached.
func (l *ActionLog) Append(category LogCategory, message string, fields map[string]interface{}) {
	entry := LogEntry{
		Time:     time.Now(),
		Category: category,
		Message:  message,
		Fields:   fields,
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > ActionLogCapacity {
		l.entries = l.entries[len(l.entries)-ActionLogCapacity:]
	}
	l.mu.Unlock()

	if l.bus != nil {
		l.bus.Publish(Event{Type: LogAppendedEvent, Payload: entry})
	}
}

// Recent returns up to n of the most recent entries, oldest first.
func (l *ActionLog) Recent(n int) []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]LogEntry, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

// Len returns the number of stored entries.
func (l *ActionLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Clear empties the log and immediately records a system entry noting the
// clear, so consumers never observe an empty history.
func (l *ActionLog) Clear() {
	l.mu.Lock()
	l.entries = l.entries[:0]
	l.mu.Unlock()

	l.Append(LogSystem, "action log cleared", nil)
}
