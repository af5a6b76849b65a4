package wire

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/adirajukashyap/drawd/pkg/draw"
)

// Event is a validated, normalized client request. The concrete type
// identifies the variant.
type Event interface {
	EventType() EventType
}

type CursorEvent struct {
	X, Y float64
}

type StrokeStartEvent struct {
	Tool  draw.Tool
	Color string
	Width float64
	Start *draw.Point
}

type StrokePointsEvent struct {
	OpID   string
	Points []draw.Point
}

type StrokeEndEvent struct {
	OpID string
	End  *draw.Point
}

type UndoEvent struct{}
type RedoEvent struct{}
type ClearEvent struct{}

func (CursorEvent) EventType() EventType       { return EventCursor }
func (StrokeStartEvent) EventType() EventType  { return EventStrokeStart }
func (StrokePointsEvent) EventType() EventType { return EventStrokePoints }
func (StrokeEndEvent) EventType() EventType    { return EventStrokeEnd }
func (UndoEvent) EventType() EventType         { return EventUndo }
func (RedoEvent) EventType() EventType         { return EventRedo }
func (ClearEvent) EventType() EventType        { return EventClear }

// rawPoint decodes leniently so that points with missing or
// non-numeric coordinates can be dropped instead of failing the
// whole message.
type rawPoint struct {
	X *float64
	Y *float64
	T *int64
}

func (p *rawPoint) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		// Not even an object; the point is simply unusable.
		return nil
	}
	if x, ok := m["x"].(float64); ok {
		p.X = &x
	}
	if y, ok := m["y"].(float64); ok {
		p.Y = &y
	}
	if tv, ok := m["t"].(float64); ok {
		t := int64(tv)
		p.T = &t
	}
	return nil
}

func (p *rawPoint) point(now int64) (draw.Point, bool) {
	if p == nil || p.X == nil || p.Y == nil {
		return draw.Point{}, false
	}
	out := draw.Point{X: *p.X, Y: *p.Y, T: now}
	if !out.Finite() {
		return draw.Point{}, false
	}
	if p.T != nil && *p.T > 0 {
		out.T = *p.T
	}
	return out, true
}

func filterPoints(raw []rawPoint, now int64) []draw.Point {
	pts := make([]draw.Point, 0, len(raw))
	for i := range raw {
		if pt, ok := raw[i].point(now); ok {
			pts = append(pts, pt)
		}
	}
	return pts
}

// DecodeClientEvent parses and normalizes one inbound message. The
// returned error marks the message as unusable; callers drop such
// messages without rebroadcasting them. now stamps points that carry
// no timestamp of their own.
func DecodeClientEvent(data []byte, now int64) (Event, error) {
	typ, err := Peek(data)
	if err != nil {
		return nil, err
	}

	switch typ {
	case EventCursor:
		var msg struct {
			X *float64 `json:"x"`
			Y *float64 `json:"y"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("wire: cursor: %w", err)
		}
		if msg.X == nil || msg.Y == nil ||
			math.IsNaN(*msg.X) || math.IsInf(*msg.X, 0) ||
			math.IsNaN(*msg.Y) || math.IsInf(*msg.Y, 0) {
			return nil, fmt.Errorf("wire: cursor: non-numeric position")
		}
		return CursorEvent{X: *msg.X, Y: *msg.Y}, nil

	case EventStrokeStart:
		var msg struct {
			Tool  string    `json:"tool"`
			Color string    `json:"color"`
			Width *float64  `json:"width"`
			Start *rawPoint `json:"start"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("wire: stroke start: %w", err)
		}
		ev := StrokeStartEvent{
			Tool:  draw.NormalizeTool(msg.Tool),
			Color: msg.Color,
			Width: draw.DefaultWidth,
		}
		if msg.Width != nil {
			ev.Width = draw.ClampWidth(*msg.Width)
		}
		if pt, ok := msg.Start.point(now); ok {
			ev.Start = &pt
		}
		return ev, nil

	case EventStrokePoints:
		var msg struct {
			OpID   string     `json:"opId"`
			Points []rawPoint `json:"points"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("wire: stroke points: %w", err)
		}
		if msg.OpID == "" {
			return nil, fmt.Errorf("wire: stroke points: missing opId")
		}
		pts := filterPoints(msg.Points, now)
		if len(pts) == 0 {
			return nil, fmt.Errorf("wire: stroke points: no usable points")
		}
		return StrokePointsEvent{OpID: msg.OpID, Points: pts}, nil

	case EventStrokeEnd:
		var msg struct {
			OpID string    `json:"opId"`
			End  *rawPoint `json:"end"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("wire: stroke end: %w", err)
		}
		if msg.OpID == "" {
			return nil, fmt.Errorf("wire: stroke end: missing opId")
		}
		ev := StrokeEndEvent{OpID: msg.OpID}
		if pt, ok := msg.End.point(now); ok {
			ev.End = &pt
		}
		return ev, nil

	case EventUndo:
		return UndoEvent{}, nil
	case EventRedo:
		return RedoEvent{}, nil
	case EventClear:
		return ClearEvent{}, nil
	}

	return nil, fmt.Errorf("wire: unknown event type %q", typ)
}
