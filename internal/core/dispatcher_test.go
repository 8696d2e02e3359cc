package core

import (
	"testing"

	"github.com/astrotv/astrotv-server/internal/proto"
)

func TestDispatcherToRoomExcludesAndSkipsClosed(t *testing.T) {
	r := NewRegistry(nil)
	d := NewDispatcher(r, nil, nil)

	a := NewClient("a", 4)
	b := NewClient("b", 4)
	closed := NewClient("c", 4)
	r.Join(1, 1, a)
	r.Join(1, 2, b)
	r.Join(1, 3, closed)
	closed.Close()

	if n := d.ToRoom(1, proto.Info{Message: "hi"}, a); n != 1 {
		t.Fatalf("delivered to %d members, want 1", n)
	}
	if got := drain(a); len(got) != 0 {
		t.Fatalf("excluded client received %v", got)
	}
	mustFrame(t, b, proto.OutboundTypeInfo)
}

func TestDispatcherToRoomCountUsesLiveCount(t *testing.T) {
	r := NewRegistry(nil)
	d := NewDispatcher(r, nil, nil)

	a := NewClient("a", 4)
	b := NewClient("b", 4)
	r.Join(1, 1, a)
	r.Join(1, 2, b)

	d.ToRoomCount(1, func(count int) proto.Outbound { return proto.ViewerCountUpdate{Count: count} }, nil)
	if f := mustFrame(t, a, proto.OutboundTypeViewerCountUpdate); f.number("count") != 2 {
		t.Fatalf("unexpected count frame: %v", f)
	}
}

func TestDispatcherToUserAcrossRooms(t *testing.T) {
	r := NewRegistry(nil)
	d := NewDispatcher(r, nil, nil)

	a := NewClient("a", 4)
	r.Join(99, 5, a)
	r.Register(5, a)

	if !d.ToUser(5, proto.Info{Message: "direct"}) {
		t.Fatalf("expected delivery")
	}
	mustFrame(t, a, proto.OutboundTypeInfo)

	if d.ToUser(6, proto.Info{Message: "nobody"}) {
		t.Fatalf("delivery to offline user must report false")
	}
}

func TestDispatcherFullQueueDrops(t *testing.T) {
	r := NewRegistry(nil)
	d := NewDispatcher(r, nil, nil)

	a := NewClient("a", 1)
	if !d.ToClient(a, proto.Info{Message: "one"}) {
		t.Fatalf("first frame must be queued")
	}
	if d.ToClient(a, proto.Info{Message: "two"}) {
		t.Fatalf("second frame must be dropped")
	}
}
