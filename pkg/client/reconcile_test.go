package client

import (
	"testing"

	"github.com/adirajukashyap/drawd/pkg/draw"
)

func pt(x, y float64) draw.Point {
	return draw.Point{X: x, Y: y, T: 1}
}

func TestPreIdentityPointsFlushOnEcho(t *testing.T) {
	var r strokeReconciler

	if !r.begin() {
		t.Fatal("begin should succeed from idle")
	}
	r.addPoint(pt(1, 1))
	r.addPoint(pt(2, 2))

	pts, end, ended := r.identify("op-1")
	if len(pts) != 2 {
		t.Fatalf("Expected 2 buffered points, got %d", len(pts))
	}
	if end != nil || ended {
		t.Error("Stroke should still be open")
	}
	if r.state != stateReconciled {
		t.Errorf("Expected reconciled state, got %d", r.state)
	}
}

func TestBatchingAfterIdentity(t *testing.T) {
	var r strokeReconciler

	r.begin()
	r.identify("op-1")

	if _, _, ok := r.takeBatch(); ok {
		t.Error("Empty buffer should yield no batch")
	}

	r.addPoint(pt(3, 3))
	r.addPoint(pt(4, 4))

	opID, pts, ok := r.takeBatch()
	if !ok || opID != "op-1" || len(pts) != 2 {
		t.Fatalf("Unexpected batch: %q %v %v", opID, pts, ok)
	}
	if _, _, ok := r.takeBatch(); ok {
		t.Error("Batch should drain the buffer")
	}
}

func TestEndBeforeIdentityIsQueued(t *testing.T) {
	var r strokeReconciler

	r.begin()
	r.addPoint(pt(1, 1))
	endPoint := pt(9, 9)

	opID, _, send := r.finish(&endPoint)
	if send || opID != "" {
		t.Fatal("End before identity must not send yet")
	}

	pts, end, ended := r.identify("op-7")
	if len(pts) != 1 {
		t.Errorf("Expected buffered point carried through, got %d", len(pts))
	}
	if !ended || end == nil || end.X != 9 {
		t.Errorf("Expected queued end delivered, got %v %v", end, ended)
	}
	if r.state != stateIdle {
		t.Error("Reconciler should be idle after an already-ended stroke")
	}
}

func TestEndAfterIdentityFlushesRemainder(t *testing.T) {
	var r strokeReconciler

	r.begin()
	r.identify("op-2")
	r.addPoint(pt(5, 5))

	opID, pts, send := r.finish(nil)
	if !send || opID != "op-2" || len(pts) != 1 {
		t.Fatalf("Unexpected finish: %q %v %v", opID, pts, send)
	}
	if r.state != stateIdle {
		t.Error("Reconciler should return to idle")
	}
}

func TestOneStrokeInFlight(t *testing.T) {
	var r strokeReconciler

	if !r.begin() {
		t.Fatal("First begin should succeed")
	}
	if r.begin() {
		t.Error("Second begin must be rejected while a stroke is in flight")
	}

	r.identify("op-1")
	if r.begin() {
		t.Error("Begin must still be rejected while reconciled")
	}

	r.finish(nil)
	if !r.begin() {
		t.Error("Begin should succeed after the stroke ends")
	}
}

func TestIdlePointsDiscarded(t *testing.T) {
	var r strokeReconciler

	if r.addPoint(pt(1, 1)) {
		t.Error("Points with no stroke in flight should be discarded")
	}
	if opID, _, send := r.finish(nil); send || opID != "" {
		t.Error("Finish with no stroke in flight is a no-op")
	}
	if pts, _, _ := r.identify("op-1"); pts != nil {
		t.Error("Identify with no stroke in flight is a no-op")
	}
}
