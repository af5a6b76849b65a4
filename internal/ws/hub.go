package ws

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/adirajukashyap/drawd/internal/history"
	"github.com/adirajukashyap/drawd/internal/room"
	"github.com/adirajukashyap/drawd/pkg/draw"
	"github.com/adirajukashyap/drawd/pkg/wire"
)

// Hub is the authoritative session process. A single Run goroutine
// consumes every register/unregister/event in arrival order, so no
// two mutations of one room's operation log ever race. Broadcasts go
// out in mutation order, to every participant in the room including
// the originator.
type Hub struct {
	registry *room.Registry
	store    *history.Store // optional

	// Connected clients by room
	rooms map[string]map[*Client]bool
	mu    sync.RWMutex

	register   chan *Client
	unregister chan *Client
	events     chan inboundEvent

	log *logrus.Entry
}

type inboundEvent struct {
	client *Client
	data   []byte
}

// NewHub wires a hub to the room registry and, optionally, the
// history store. A nil store disables audit bookkeeping.
func NewHub(registry *room.Registry, store *history.Store) *Hub {
	return &Hub{
		registry:   registry,
		store:      store,
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan inboundEvent, 256),
		log:        logrus.WithField("component", "hub"),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)
		case client := <-h.unregister:
			h.handleUnregister(client)
		case ev := <-h.events:
			h.handleEvent(ev.client, ev.data)
		}
	}
}

func (h *Hub) handleRegister(c *Client) {
	session := h.registry.GetOrCreate(c.roomID)
	self := session.Join(c.id, c.name)
	c.participant = self

	h.mu.Lock()
	if _, ok := h.rooms[c.roomID]; !ok {
		h.rooms[c.roomID] = make(map[*Client]bool)
	}
	h.rooms[c.roomID][c] = true
	count := len(h.rooms[c.roomID])
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{
		"room": c.roomID, "user": c.id, "clients": count,
	}).Info("Client joined room")

	if h.store != nil {
		if err := h.store.RecordPresence(c.roomID, c.id, self.Name, "join"); err != nil {
			h.log.WithError(err).Warn("Failed to record join")
		}
	}

	// The joiner catches up from finalized operations only; strokes
	// still streaming stay invisible until their end event.
	h.send(c, mustMarshal(wire.RoomState{
		Type:  wire.EventRoomState,
		Self:  self,
		Users: session.Participants(),
		Ops:   session.Log.Operations(),
	}))

	h.broadcast(c.roomID, mustMarshal(wire.PresenceJoin{
		Type: wire.EventPresenceJoin,
		User: self,
	}), c)
}

func (h *Hub) handleUnregister(c *Client) {
	// The client may already be gone from the room map if a full send
	// buffer got it dropped mid-broadcast; participant cleanup still
	// has to happen exactly once, and it happens here.
	h.mu.Lock()
	if clients, ok := h.rooms[c.roomID]; ok {
		if _, member := clients[c]; member {
			delete(clients, c)
			close(c.send)
		}
		if len(clients) == 0 {
			delete(h.rooms, c.roomID)
		}
	}
	h.mu.Unlock()

	if session := h.registry.Get(c.roomID); session != nil {
		// Policy: a disconnecting participant's in-flight strokes are
		// discarded, not auto-finalized.
		if n := session.Log.DiscardPendingBy(c.id); n > 0 {
			h.log.WithFields(logrus.Fields{
				"room": c.roomID, "user": c.id, "strokes": n,
			}).Debug("Discarded pending strokes on disconnect")
		}
	}
	h.registry.RemoveParticipant(c.id)

	h.log.WithFields(logrus.Fields{"room": c.roomID, "user": c.id}).Info("Client left room")

	if h.store != nil {
		if err := h.store.RecordPresence(c.roomID, c.id, c.name, "leave"); err != nil {
			h.log.WithError(err).Warn("Failed to record leave")
		}
	}

	h.broadcast(c.roomID, mustMarshal(wire.PresenceLeave{
		Type:   wire.EventPresenceLeave,
		UserID: c.id,
	}), nil)
}

func (h *Hub) handleEvent(c *Client, data []byte) {
	ev, err := wire.DecodeClientEvent(data, time.Now().UnixMilli())
	if err != nil {
		// Malformed input degrades to "ignore and continue".
		h.log.WithError(err).WithField("user", c.id).Debug("Dropping unusable message")
		return
	}

	session := h.registry.Get(c.roomID)
	if session == nil {
		return
	}

	switch ev := ev.(type) {
	case wire.CursorEvent:
		h.broadcast(c.roomID, mustMarshal(wire.Cursor{
			Type:   wire.EventCursor,
			UserID: c.id,
			X:      ev.X,
			Y:      ev.Y,
		}), nil)

	case wire.StrokeStartEvent:
		color := ev.Color
		if color == "" {
			color = c.participant.Color
		}
		var start []draw.Point
		if ev.Start != nil {
			start = []draw.Point{*ev.Start}
		}
		opID := session.Log.BeginStroke(c.id, ev.Tool, color, ev.Width, start)
		h.broadcast(c.roomID, mustMarshal(wire.StrokeStart{
			Type:   wire.EventStrokeStart,
			OpID:   opID,
			UserID: c.id,
			Tool:   ev.Tool,
			Color:  color,
			Width:  ev.Width,
			Start:  ev.Start,
		}), nil)

	case wire.StrokePointsEvent:
		if !session.Log.AppendPoints(ev.OpID, ev.Points) {
			return
		}
		h.broadcast(c.roomID, mustMarshal(wire.StrokePoints{
			Type:   wire.EventStrokePoints,
			OpID:   ev.OpID,
			Points: ev.Points,
		}), nil)

	case wire.StrokeEndEvent:
		st := session.Log.EndStroke(ev.OpID, ev.End)
		if st == nil {
			return
		}
		h.broadcast(c.roomID, mustMarshal(wire.StrokeEnd{
			Type: wire.EventStrokeEnd,
			OpID: ev.OpID,
			End:  ev.End,
		}), nil)
		if h.store != nil {
			if err := h.store.RecordCommit(c.roomID, st.OpID, st.UserID, string(st.Tool), len(st.Points)); err != nil {
				h.log.WithError(err).Warn("Failed to record commit")
			}
		}

	case wire.UndoEvent:
		opID, ok := session.Log.Undo()
		if !ok {
			return
		}
		h.broadcastHistory(c.roomID, session, "undo", opID)

	case wire.RedoEvent:
		opID, ok := session.Log.Redo()
		if !ok {
			return
		}
		h.broadcastHistory(c.roomID, session, "redo", opID)

	case wire.ClearEvent:
		session.Log.Clear()
		h.broadcast(c.roomID, mustMarshal(wire.RoomOps{
			Type: wire.EventRoomOps,
			Ops:  session.Log.Operations(),
		}), nil)
	}
}

// broadcastHistory emits the applied notice plus a full snapshot so
// every client converges regardless of what it saw before.
func (h *Hub) broadcastHistory(roomID string, session *room.Session, action, opID string) {
	h.broadcast(roomID, mustMarshal(wire.HistoryApplied{
		Type:   wire.EventHistoryApplied,
		Action: action,
		OpID:   opID,
	}), nil)
	h.broadcast(roomID, mustMarshal(wire.RoomOps{
		Type: wire.EventRoomOps,
		Ops:  session.Log.Operations(),
	}), nil)
}

// broadcast delivers data to every client in the room except the one
// passed as except (nil means everyone). Slow clients are dropped
// rather than allowed to stall the room.
func (h *Hub) broadcast(roomID string, data []byte, except *Client) {
	if data == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for client := range clients {
		if client == except {
			continue
		}
		select {
		case client.send <- data:
		default:
			close(client.send)
			delete(clients, client)
		}
	}
}

// send delivers data to one client, dropping it if the client cannot
// keep up.
func (h *Hub) send(c *Client, data []byte) {
	if data == nil {
		return
	}
	select {
	case c.send <- data:
	default:
		h.log.WithField("user", c.id).Warn("Client send buffer full, dropping message")
	}
}

func mustMarshal(v any) []byte {
	data, err := wire.Marshal(v)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal broadcast message")
		return nil
	}
	return data
}

// Stats accessors used by the HTTP API.

func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, clients := range h.rooms {
		count += len(clients)
	}
	return count
}

// GetActiveRooms maps room ID to the number of connected clients.
func (h *Hub) GetActiveRooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]int, len(h.rooms))
	for roomID, clients := range h.rooms {
		out[roomID] = len(clients)
	}
	return out
}
