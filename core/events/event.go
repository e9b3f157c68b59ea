package events

import (
	"sync"

	"stylustx/core/types"
)

// Event represents a structured state change emitted by the relay engine.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, metrics).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// MultiEmitter fans a single event out to every wrapped emitter in order.
type MultiEmitter []Emitter

// Emit implements the Emitter interface.
func (m MultiEmitter) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Record is a rendered event together with its position in the log.
type Record struct {
	Seq   uint64       `json:"seq"`
	Event *types.Event `json:"event"`
}

// Log is an append-only, in-memory event sink. Entries are never removed or
// rewritten; readers page through them with a sequence cursor.
type Log struct {
	mu      sync.RWMutex
	records []Record
}

// NewLog constructs an empty event log.
func NewLog() *Log {
	return &Log{}
}

// Emit implements the Emitter interface.
func (l *Log) Emit(evt Event) {
	if l == nil || evt == nil {
		return
	}
	rendered := evt.Event()
	if rendered == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, Record{Seq: uint64(len(l.records)), Event: rendered})
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Since returns copies of every record with a sequence number at or after
// cursor, capped at limit entries when limit is positive.
func (l *Log) Since(cursor uint64, limit int) []Record {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if cursor >= uint64(len(l.records)) {
		return []Record{}
	}
	tail := l.records[cursor:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}
	out := make([]Record, len(tail))
	for i, rec := range tail {
		out[i] = Record{Seq: rec.Seq, Event: rec.Event.Clone()}
	}
	return out
}

// Filter returns every recorded event of the supplied type.
func (l *Log) Filter(eventType string) []*types.Event {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*types.Event, 0)
	for _, rec := range l.records {
		if rec.Event.Type == eventType {
			out = append(out, rec.Event.Clone())
		}
	}
	return out
}
