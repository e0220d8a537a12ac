// Package activity holds the widget's visible, append-only activity log.
package activity

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Severity classifies a log entry for display
type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityError
)

// String returns the display class of the severity
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeveritySuccess:
		return "success"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// DefaultCapacity bounds the number of retained entries when none is configured.
const DefaultCapacity = 200

// Entry is a single line in the activity log
type Entry struct {
	Seq      uint64
	Time     time.Time
	Severity Severity
	Message  string
}

// Log is a bounded ring of entries. The oldest entry is dropped once
// capacity is reached. Every append is mirrored to the diagnostic logger.
type Log struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	seq      uint64
	now      func() time.Time
}

// NewLog creates an activity log holding at most capacity entries.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

func (l *Log) Info(msg string) Entry    { return l.Append(SeverityInfo, msg) }
func (l *Log) Success(msg string) Entry { return l.Append(SeveritySuccess, msg) }
func (l *Log) Error(msg string) Entry   { return l.Append(SeverityError, msg) }

// Append records a message and mirrors it to slog with a matching level.
func (l *Log) Append(sev Severity, msg string) Entry {
	l.mu.Lock()
	l.seq++
	e := Entry{Seq: l.seq, Time: l.now(), Severity: sev, Message: msg}
	if len(l.entries) == l.capacity {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
	}
	l.entries = append(l.entries, e)
	l.mu.Unlock()

	switch sev {
	case SeverityError:
		slog.Error(msg)
	case SeveritySuccess:
		slog.Info("SUCCESS: " + msg)
	default:
		slog.Info(msg)
	}
	return e
}

// Entries returns a copy of the retained entries, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Since returns entries with a sequence number greater than seq.
func (l *Log) Since(seq uint64) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}
