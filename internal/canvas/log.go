// Package canvas holds the authoritative per-room drawing state: the
// ordered log of finalized stroke operations, the in-flight pending
// strokes, and the global undo/redo stacks.
package canvas

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adirajukashyap/drawd/pkg/draw"
)

// Log is the per-room operation log. Authoritative order is the order
// of finalization, not the order strokes were started. An operation
// identity lives in at most one of pending or the finalized sequence.
//
// The history stack records every finalized identity in commit order
// and is never popped, only scanned; undo flips the newest active
// operation inactive and redo reverses that, with any fresh commit
// invalidating the redo stack.
type Log struct {
	mu      sync.RWMutex
	ops     []*draw.Stroke
	index   map[string]int
	pending map[string]*draw.Stroke
	history []string
	redo    []string

	now   func() int64
	newID func() string
}

func NewLog() *Log {
	return &Log{
		index:   make(map[string]int),
		pending: make(map[string]*draw.Stroke),
		now:     func() int64 { return time.Now().UnixMilli() },
		newID:   uuid.NewString,
	}
}

// BeginStroke opens a pending operation and returns its freshly
// allocated identity. Malformed inputs are coerced, never rejected:
// the tool is normalized, the width clamped, and initial points with
// non-numeric coordinates dropped.
func (l *Log) BeginStroke(userID string, tool draw.Tool, color string, width float64, initial []draw.Point) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st := &draw.Stroke{
		OpID:      l.newID(),
		UserID:    userID,
		Tool:      draw.NormalizeTool(string(tool)),
		Color:     color,
		Width:     draw.ClampWidth(width),
		Points:    make([]draw.Point, 0, len(initial)+8),
		Active:    true,
		StartedAt: now,
	}
	for _, p := range initial {
		if p.Finite() {
			st.Points = append(st.Points, stamp(p, now))
		}
	}
	l.pending[st.OpID] = st
	return st.OpID
}

// AppendPoints streams points into a pending operation. It reports
// false if opID has no pending entry (already finalized, never
// existed, or unknown); callers treat that as a no-op.
func (l *Log) AppendPoints(opID string, pts []draw.Point) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.pending[opID]
	if !ok {
		return false
	}
	now := l.now()
	for _, p := range pts {
		if p.Finite() {
			st.Points = append(st.Points, stamp(p, now))
		}
	}
	return true
}

// EndStroke finalizes a pending operation: the optional end point is
// appended, the operation moves to the next position in the
// authoritative sequence, and the redo stack is cleared. Returns nil
// if opID was not pending, in which case nothing changed and the
// caller must not rebroadcast.
func (l *Log) EndStroke(opID string, end *draw.Point) *draw.Stroke {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.pending[opID]
	if !ok {
		return nil
	}
	now := l.now()
	if end != nil && end.Finite() {
		st.Points = append(st.Points, stamp(*end, now))
	}
	st.Active = true
	st.EndedAt = now

	delete(l.pending, opID)
	l.index[opID] = len(l.ops)
	l.ops = append(l.ops, st)
	l.history = append(l.history, opID)
	l.redo = l.redo[:0]

	out := st.Clone()
	return &out
}

// Undo deactivates the most recently committed operation that is
// still active, regardless of which participant created it, and
// makes it redoable. Reports false when no active operation exists.
func (l *Log) Undo() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.history) - 1; i >= 0; i-- {
		opID := l.history[i]
		idx, ok := l.index[opID]
		if !ok {
			continue
		}
		if st := l.ops[idx]; st.Active {
			st.Active = false
			l.redo = append(l.redo, opID)
			return opID, true
		}
	}
	return "", false
}

// Redo reactivates the most recently undone operation. Entries that
// are already active are stale and skipped. Reports false when the
// redo stack holds nothing invertible.
func (l *Log) Redo() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for len(l.redo) > 0 {
		opID := l.redo[len(l.redo)-1]
		l.redo = l.redo[:len(l.redo)-1]
		idx, ok := l.index[opID]
		if !ok {
			continue
		}
		if st := l.ops[idx]; !st.Active {
			st.Active = true
			return opID, true
		}
	}
	return "", false
}

// Clear discards everything: finalized sequence, pending entries, and
// both stacks. No undoable state survives.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ops = l.ops[:0]
	l.index = make(map[string]int)
	l.pending = make(map[string]*draw.Stroke)
	l.history = l.history[:0]
	l.redo = l.redo[:0]
}

// DiscardPendingBy drops every pending operation owned by userID and
// returns how many were dropped. Used when a participant disconnects
// mid-stroke.
func (l *Log) DiscardPendingBy(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for opID, st := range l.pending {
		if st.UserID == userID {
			delete(l.pending, opID)
			n++
		}
	}
	return n
}

// Operations returns a copy of the finalized sequence in authoritative
// order, inactive operations included.
func (l *Log) Operations() []draw.Stroke {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]draw.Stroke, len(l.ops))
	for i, st := range l.ops {
		out[i] = st.Clone()
	}
	return out
}

// ActiveOperations returns copies of the operations that should be
// rendered.
func (l *Log) ActiveOperations() []draw.Stroke {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]draw.Stroke, 0, len(l.ops))
	for _, st := range l.ops {
		if st.Active {
			out = append(out, st.Clone())
		}
	}
	return out
}

func (l *Log) PendingCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pending)
}

func (l *Log) CommittedCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ops)
}

func stamp(p draw.Point, now int64) draw.Point {
	if p.T <= 0 {
		p.T = now
	}
	return p
}
