// Package wire is the message contract between participants and the
// authoritative room session. Every message is a flat JSON object with
// a "type" tag; payload fields are fixed per tag.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/adirajukashyap/drawd/pkg/draw"
)

type EventType string

const (
	// Server -> client
	EventRoomState      EventType = "room:state"
	EventRoomOps        EventType = "room:ops"
	EventPresenceJoin   EventType = "presence:join"
	EventPresenceLeave  EventType = "presence:leave"
	EventHistoryApplied EventType = "history:applied"

	// Both directions (echoed to the whole room, including the sender)
	EventCursor       EventType = "cursor:update"
	EventStrokeStart  EventType = "stroke:start"
	EventStrokePoints EventType = "stroke:points"
	EventStrokeEnd    EventType = "stroke:end"

	// Client -> server
	EventUndo  EventType = "history:undo"
	EventRedo  EventType = "history:redo"
	EventClear EventType = "canvas:clear"
)

// RoomState is the full catch-up sent to a joining participant. Ops
// contains finalized operations only; in-flight strokes are invisible
// to late joiners until their end event.
type RoomState struct {
	Type  EventType          `json:"type"`
	Self  draw.Participant   `json:"self"`
	Users []draw.Participant `json:"users"`
	Ops   []draw.Stroke      `json:"ops"`
}

// RoomOps is a full snapshot of the finalized sequence, broadcast
// after undo/redo/clear so every client converges to the same render.
type RoomOps struct {
	Type EventType     `json:"type"`
	Ops  []draw.Stroke `json:"ops"`
}

type PresenceJoin struct {
	Type EventType        `json:"type"`
	User draw.Participant `json:"user"`
}

type PresenceLeave struct {
	Type   EventType `json:"type"`
	UserID string    `json:"userId"`
}

// Cursor carries a presence position. Clients omit UserID; the server
// stamps it on rebroadcast.
type Cursor struct {
	Type   EventType `json:"type"`
	UserID string    `json:"userId,omitempty"`
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
}

// StrokeStart opens a stroke. Clients send it without OpID/UserID; the
// server allocates the operation identity and echoes it to the room.
type StrokeStart struct {
	Type   EventType   `json:"type"`
	OpID   string      `json:"opId,omitempty"`
	UserID string      `json:"userId,omitempty"`
	Tool   draw.Tool   `json:"tool"`
	Color  string      `json:"color,omitempty"`
	Width  float64     `json:"width"`
	Start  *draw.Point `json:"start,omitempty"`
}

type StrokePoints struct {
	Type   EventType    `json:"type"`
	OpID   string       `json:"opId"`
	Points []draw.Point `json:"points"`
}

type StrokeEnd struct {
	Type EventType   `json:"type"`
	OpID string      `json:"opId"`
	End  *draw.Point `json:"end,omitempty"`
}

type HistoryApplied struct {
	Type   EventType `json:"type"`
	Action string    `json:"action"`
	OpID   string    `json:"opId"`
}

// Signal is a payload-free client request: undo, redo, clear.
type Signal struct {
	Type EventType `json:"type"`
}

// Marshal encodes any wire message. It never fails for the types in
// this package; the error return exists for callers that log it.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Peek returns the type tag of a raw message without decoding the
// payload.
func Peek(data []byte) (EventType, error) {
	var env struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("wire: bad envelope: %w", err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("wire: missing type tag")
	}
	return env.Type, nil
}
