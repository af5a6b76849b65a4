package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/adirajukashyap/drawd/pkg/draw"
	"github.com/adirajukashyap/drawd/pkg/wire"
)

const defaultFlushInterval = 40 * time.Millisecond

// Handlers are optional callbacks for server events. They run on the
// client's read goroutine, so they must not block.
type Handlers struct {
	OnState        func(self draw.Participant, users []draw.Participant, ops []draw.Stroke)
	OnOps          func(ops []draw.Stroke)
	OnJoin         func(user draw.Participant)
	OnLeave        func(userID string)
	OnCursor       func(userID string, x, y float64)
	OnStrokeStart  func(op draw.Stroke)
	OnStrokePoints func(opID string, pts []draw.Point)
	OnStrokeEnd    func(opID string)
	OnHistory      func(action, opID string)
	OnDisconnect   func(err error)
}

type Options struct {
	Room string
	Name string
	// FlushInterval bounds how often batched points go out.
	FlushInterval time.Duration
	Handlers      Handlers
}

// Client connects to a drawing room and keeps a local mirror of the
// remote operation sequence. Local strokes are predicted immediately:
// points captured before the server assigns the operation identity
// are buffered and flushed once the echoed start arrives.
type Client struct {
	conn     *websocket.Conn
	handlers Handlers

	writeMu sync.Mutex

	mu         sync.Mutex
	self       draw.Participant
	identified bool
	rec        strokeReconciler
	ops        []*draw.Stroke
	index      map[string]int

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to a server ("ws://host:port" or "http://host:port")
// and joins the given room.
func Dial(serverURL string, opts Options) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	q := u.Query()
	if opts.Room != "" {
		q.Set("room", opts.Room)
	}
	if opts.Name != "" {
		q.Set("name", opts.Name)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}

	flushEvery := opts.FlushInterval
	if flushEvery <= 0 {
		flushEvery = defaultFlushInterval
	}

	c := &Client{
		conn:     conn,
		handlers: opts.Handlers,
		index:    make(map[string]int),
		done:     make(chan struct{}),
	}

	go c.readLoop()
	go c.flushLoop(flushEvery)

	return c, nil
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// Self returns the identity the server assigned, once known.
func (c *Client) Self() (draw.Participant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self, c.identified
}

// Ops returns a snapshot of the mirrored operation sequence.
func (c *Client) Ops() []draw.Stroke {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]draw.Stroke, len(c.ops))
	for i, op := range c.ops {
		out[i] = op.Clone()
	}
	return out
}

// StartStroke begins a local stroke. One stroke is in flight at a
// time; points added before the server echo are buffered.
func (c *Client) StartStroke(tool draw.Tool, color string, width float64, start *draw.Point) error {
	c.mu.Lock()
	if !c.rec.begin() {
		c.mu.Unlock()
		return fmt.Errorf("stroke already in progress")
	}
	c.mu.Unlock()

	return c.send(wire.StrokeStart{
		Type:  wire.EventStrokeStart,
		Tool:  tool,
		Color: color,
		Width: width,
		Start: start,
	})
}

// AddPoint records a pointer sample for the in-flight stroke. Samples
// with no stroke in flight are discarded.
func (c *Client) AddPoint(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec.addPoint(draw.Point{X: x, Y: y, T: time.Now().UnixMilli()})
}

// EndStroke finishes the in-flight stroke, with an optional final
// point. If the server identity has not arrived yet the end is queued
// and sent right after it does.
func (c *Client) EndStroke(end *draw.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rec.state == stateIdle || c.rec.ended {
		return fmt.Errorf("no stroke in progress")
	}
	opID, pts, send := c.rec.finish(end)
	if !send {
		return nil
	}
	if len(pts) > 0 {
		if err := c.send(wire.StrokePoints{Type: wire.EventStrokePoints, OpID: opID, Points: pts}); err != nil {
			return err
		}
	}
	return c.send(wire.StrokeEnd{Type: wire.EventStrokeEnd, OpID: opID, End: end})
}

func (c *Client) Cursor(x, y float64) error {
	return c.send(wire.Cursor{Type: wire.EventCursor, X: x, Y: y})
}

func (c *Client) Undo() error {
	return c.send(wire.Signal{Type: wire.EventUndo})
}

func (c *Client) Redo() error {
	return c.send(wire.Signal{Type: wire.EventRedo})
}

func (c *Client) Clear() error {
	return c.send(wire.Signal{Type: wire.EventClear})
}

func (c *Client) send(v any) error {
	data, err := wire.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// flushLoop drains batched points at a bounded rate.
func (c *Client) flushLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			// The send happens under c.mu so a concurrent EndStroke
			// cannot slip the end event in front of this batch.
			c.mu.Lock()
			if opID, pts, ok := c.rec.takeBatch(); ok {
				c.send(wire.StrokePoints{Type: wire.EventStrokePoints, OpID: opID, Points: pts})
			}
			c.mu.Unlock()
		}
	}
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if c.handlers.OnDisconnect != nil {
					c.handlers.OnDisconnect(err)
				}
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	typ, err := wire.Peek(data)
	if err != nil {
		return
	}

	switch typ {
	case wire.EventRoomState:
		var msg wire.RoomState
		if json.Unmarshal(data, &msg) != nil {
			return
		}
		c.mu.Lock()
		c.self = msg.Self
		c.identified = true
		c.replaceOps(msg.Ops)
		c.mu.Unlock()
		if c.handlers.OnState != nil {
			c.handlers.OnState(msg.Self, msg.Users, msg.Ops)
		}

	case wire.EventRoomOps:
		var msg wire.RoomOps
		if json.Unmarshal(data, &msg) != nil {
			return
		}
		c.mu.Lock()
		c.replaceOps(msg.Ops)
		c.mu.Unlock()
		if c.handlers.OnOps != nil {
			c.handlers.OnOps(msg.Ops)
		}

	case wire.EventPresenceJoin:
		var msg wire.PresenceJoin
		if json.Unmarshal(data, &msg) != nil {
			return
		}
		if c.handlers.OnJoin != nil {
			c.handlers.OnJoin(msg.User)
		}

	case wire.EventPresenceLeave:
		var msg wire.PresenceLeave
		if json.Unmarshal(data, &msg) != nil {
			return
		}
		if c.handlers.OnLeave != nil {
			c.handlers.OnLeave(msg.UserID)
		}

	case wire.EventCursor:
		var msg wire.Cursor
		if json.Unmarshal(data, &msg) != nil {
			return
		}
		if c.handlers.OnCursor != nil {
			c.handlers.OnCursor(msg.UserID, msg.X, msg.Y)
		}

	case wire.EventStrokeStart:
		var msg wire.StrokeStart
		if json.Unmarshal(data, &msg) != nil {
			return
		}
		op := draw.Stroke{
			OpID:   msg.OpID,
			UserID: msg.UserID,
			Tool:   msg.Tool,
			Color:  msg.Color,
			Width:  msg.Width,
			Active: true,
		}
		if msg.Start != nil {
			op.Points = []draw.Point{*msg.Start}
		}

		// Everything predicted before the identity arrived goes out
		// now, tagged with the server-assigned id, under c.mu so later
		// batches cannot overtake it. The server echoes these back,
		// which is where the mirror picks them up.
		c.mu.Lock()
		c.appendOp(&op)
		if c.identified && msg.UserID == c.self.ID {
			flushPts, queuedEnd, ended := c.rec.identify(msg.OpID)
			if len(flushPts) > 0 {
				c.send(wire.StrokePoints{Type: wire.EventStrokePoints, OpID: msg.OpID, Points: flushPts})
			}
			if ended {
				c.send(wire.StrokeEnd{Type: wire.EventStrokeEnd, OpID: msg.OpID, End: queuedEnd})
			}
		}
		c.mu.Unlock()

		if c.handlers.OnStrokeStart != nil {
			c.handlers.OnStrokeStart(op)
		}

	case wire.EventStrokePoints:
		var msg wire.StrokePoints
		if json.Unmarshal(data, &msg) != nil {
			return
		}
		c.mu.Lock()
		if i, ok := c.index[msg.OpID]; ok {
			c.ops[i].Points = append(c.ops[i].Points, msg.Points...)
		}
		c.mu.Unlock()
		if c.handlers.OnStrokePoints != nil {
			c.handlers.OnStrokePoints(msg.OpID, msg.Points)
		}

	case wire.EventStrokeEnd:
		var msg wire.StrokeEnd
		if json.Unmarshal(data, &msg) != nil {
			return
		}
		c.mu.Lock()
		if i, ok := c.index[msg.OpID]; ok && msg.End != nil {
			c.ops[i].Points = append(c.ops[i].Points, *msg.End)
		}
		c.mu.Unlock()
		if c.handlers.OnStrokeEnd != nil {
			c.handlers.OnStrokeEnd(msg.OpID)
		}

	case wire.EventHistoryApplied:
		var msg wire.HistoryApplied
		if json.Unmarshal(data, &msg) != nil {
			return
		}
		if c.handlers.OnHistory != nil {
			c.handlers.OnHistory(msg.Action, msg.OpID)
		}
	}
}

// replaceOps resets the mirror from an authoritative snapshot.
// Callers hold c.mu.
func (c *Client) replaceOps(ops []draw.Stroke) {
	c.ops = make([]*draw.Stroke, len(ops))
	c.index = make(map[string]int, len(ops))
	for i := range ops {
		cl := ops[i].Clone()
		c.ops[i] = &cl
		c.index[ops[i].OpID] = i
	}
}

// appendOp adds a streaming operation to the mirror. Callers hold c.mu.
func (c *Client) appendOp(op *draw.Stroke) {
	if _, ok := c.index[op.OpID]; ok {
		return
	}
	cl := op.Clone()
	c.index[op.OpID] = len(c.ops)
	c.ops = append(c.ops, &cl)
}
