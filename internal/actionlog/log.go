// Package actionlog records every outgoing control command and how it was
// resolved. Records are appended in sequence order and never removed.
package actionlog

import (
	"sync"
	"time"

	"github.com/gogogo1024/screengate/protocol"
)

// Entry is the caller-supplied part of a record.
type Entry struct {
	Command     protocol.ControlMessage
	DeviceName  string
	PointerRect protocol.Rect
}

// Record is one logged command. Identity fields are immutable after Append.
type Record struct {
	// Sequence is the unique key; Timestamp may repeat within a millisecond.
	Sequence    uint64
	Timestamp   int64
	LoggedAt    time.Time
	Command     protocol.ControlMessage
	Type        protocol.ControlType
	Action      int8
	KeyCode     int32
	DeviceName  string
	PointerRect protocol.Rect

	mu         sync.Mutex
	concurrent bool
	resolved   bool
	executed   bool
	done       chan struct{}
}

// Outcome reports the resolution. resolved is false while pending.
func (r *Record) Outcome() (executed bool, resolved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.executed, r.resolved
}

// Executed reports whether the record resolved to executed=true.
func (r *Record) Executed() bool {
	e, ok := r.Outcome()
	return ok && e
}

// Done is closed once the record is resolved.
func (r *Record) Done() <-chan struct{} { return r.done }

// Resolve sets the outcome. Only the first call has an effect; it reports
// whether this call resolved the record.
func (r *Record) Resolve(executed bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return false
	}
	r.resolved = true
	r.executed = executed
	close(r.done)
	return true
}

// SetConcurrent stores the classification made by admission.
func (r *Record) SetConcurrent(v bool) {
	r.mu.Lock()
	r.concurrent = v
	r.mu.Unlock()
}

func (r *Record) Concurrent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.concurrent
}

// IsKeyPress reports whether the record is a key-down event.
func (r *Record) IsKeyPress() bool {
	return r.Type == protocol.ControlKeyCode && r.Action == protocol.ActionDown
}

// Log is the append-only action log of one session. Records live in an
// arena indexed by Sequence-1.
type Log struct {
	mu      sync.RWMutex
	records []*Record
	now     func() time.Time
}

type Option func(*Log)

// WithClock overrides the time source used for Timestamp and LoggedAt.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

func New(opts ...Option) *Log {
	l := &Log{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append logs e and returns the new record with its immediate predecessor,
// nil for the first command of the session.
func (l *Log) Append(e Entry) (rec *Record, prev *Record) {
	action, keyCode := protocol.Fields(e.Command)
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec = &Record{
		Sequence:    uint64(len(l.records)) + 1,
		Timestamp:   now.UnixMilli(),
		LoggedAt:    now,
		Command:     e.Command,
		Type:        e.Command.Type(),
		Action:      action,
		KeyCode:     keyCode,
		DeviceName:  e.DeviceName,
		PointerRect: e.PointerRect,
		done:        make(chan struct{}),
	}
	if n := len(l.records); n > 0 {
		prev = l.records[n-1]
	}
	l.records = append(l.records, rec)
	return rec, prev
}

// Get returns the record with the given sequence.
func (l *Log) Get(seq uint64) (*Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seq == 0 || seq > uint64(len(l.records)) {
		return nil, false
	}
	return l.records[seq-1], true
}

// Previous returns the record logged right before r.
func (l *Log) Previous(r *Record) *Record {
	if r.Sequence <= 1 {
		return nil
	}
	rec, _ := l.Get(r.Sequence - 1)
	return rec
}

// LastExecutedBefore returns the most recent record strictly before r
// that resolved to executed=true.
func (l *Log) LastExecutedBefore(r *Record) *Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := int(r.Sequence) - 2; i >= 0; i-- {
		if l.records[i].Executed() {
			return l.records[i]
		}
	}
	return nil
}

// NonConcurrentAncestor walks back from r through the chain of concurrent
// predecessors and returns the first non-concurrent one.
func (l *Log) NonConcurrentAncestor(r *Record) *Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := int(r.Sequence) - 2; i >= 0; i-- {
		if !l.records[i].Concurrent() {
			return l.records[i]
		}
	}
	return nil
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Records returns a copy of the arena in sequence order.
func (l *Log) Records() []*Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*Record(nil), l.records...)
}
