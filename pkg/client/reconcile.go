package client

import "github.com/adirajukashyap/drawd/pkg/draw"

type reconcileState int

const (
	// No local stroke in flight.
	stateIdle reconcileState = iota
	// Stroke begun locally, server identity not yet echoed back.
	// Points accumulate in the buffer.
	stateAwaitingIdentity
	// Identity known, points batch under it until the stroke ends.
	stateReconciled
)

// strokeReconciler merges a locally predicted stroke with the server
// echo. The server allocates operation identities, so everything
// captured before the echoed start arrives is buffered and flushed
// under the assigned id. One stroke is in flight at a time.
type strokeReconciler struct {
	state reconcileState
	opID  string
	buf   []draw.Point

	// End requested before the identity arrived.
	ended bool
	end   *draw.Point
}

// begin reports false when a stroke is already in flight.
func (r *strokeReconciler) begin() bool {
	if r.state != stateIdle {
		return false
	}
	r.state = stateAwaitingIdentity
	r.opID = ""
	r.buf = nil
	r.ended = false
	r.end = nil
	return true
}

// addPoint buffers a locally captured point. Points with no stroke in
// flight are discarded.
func (r *strokeReconciler) addPoint(p draw.Point) bool {
	if r.state == stateIdle {
		return false
	}
	r.buf = append(r.buf, p)
	return true
}

// identify accepts the server-assigned identity for the in-flight
// stroke and returns everything buffered so far, plus the queued end
// if the stroke already finished locally. After an already-ended
// stroke the reconciler returns to idle.
func (r *strokeReconciler) identify(opID string) (pts []draw.Point, end *draw.Point, ended bool) {
	if r.state != stateAwaitingIdentity {
		return nil, nil, false
	}
	pts = r.buf
	r.buf = nil
	r.opID = opID

	if r.ended {
		end = r.end
		r.reset()
		return pts, end, true
	}
	r.state = stateReconciled
	return pts, nil, false
}

// takeBatch drains the buffered points for the reconciled stroke.
func (r *strokeReconciler) takeBatch() (opID string, pts []draw.Point, ok bool) {
	if r.state != stateReconciled || len(r.buf) == 0 {
		return "", nil, false
	}
	pts = r.buf
	r.buf = nil
	return r.opID, pts, true
}

// finish ends the local stroke. With the identity known it returns the
// id plus any unsent points so the caller can flush and send the end
// event; before the identity it queues the end for identify to report.
func (r *strokeReconciler) finish(end *draw.Point) (opID string, pts []draw.Point, send bool) {
	switch r.state {
	case stateReconciled:
		opID = r.opID
		pts = r.buf
		r.reset()
		return opID, pts, true
	case stateAwaitingIdentity:
		r.ended = true
		r.end = end
		return "", nil, false
	default:
		return "", nil, false
	}
}

func (r *strokeReconciler) reset() {
	r.state = stateIdle
	r.opID = ""
	r.buf = nil
	r.ended = false
	r.end = nil
}
