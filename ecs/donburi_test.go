package ecs

import (
	"testing"

	"github.com/phanxgames/arbor"

	"github.com/yohamta/donburi"
)

func TestNewDonburiListener(t *testing.T) {
	world := donburi.NewWorld()
	if NewDonburiListener(world) == nil {
		t.Fatal("NewDonburiListener returned nil")
	}
}

func TestDonburiListener_Publish(t *testing.T) {
	world := donburi.NewWorld()
	listener := NewDonburiListener(world)

	var received []OcclusionEvent
	OcclusionEventType.Subscribe(world, func(w donburi.World, e OcclusionEvent) {
		received = append(received, e)
	})

	a := arbor.MakeNodeID(1, 1)
	b := arbor.MakeNodeID(1, 2)
	listener([]arbor.VisibleSurface{
		{Node: a, Visible: arbor.NewRegion(arbor.RectI{X: 0, Y: 0, Width: 10, Height: 10})},
		{Node: b, Visible: arbor.NewRegion()},
	})
	listener(nil)

	// Events are queued; process them.
	OcclusionEventType.ProcessEvents(world)

	if len(received) != 2 {
		t.Fatalf("expected 2 events, got %d", len(received))
	}
	r, ok := received[0].Visible(a)
	if !ok || r.Area() != 100 {
		t.Errorf("Visible(a) = %v, %v, want area 100", r, ok)
	}
	r, ok = received[0].Visible(b)
	if !ok || !r.IsEmpty() {
		t.Errorf("Visible(b) = %v, %v, want empty", r, ok)
	}
	if _, ok := received[1].Visible(a); ok {
		t.Error("second event should be empty")
	}
}

func TestDonburiListener_MultipleSubscribers(t *testing.T) {
	world := donburi.NewWorld()
	listener := NewDonburiListener(world)

	var count1, count2 int
	OcclusionEventType.Subscribe(world, func(w donburi.World, e OcclusionEvent) {
		count1++
	})
	OcclusionEventType.Subscribe(world, func(w donburi.World, e OcclusionEvent) {
		count2++
	})

	listener(nil)
	OcclusionEventType.ProcessEvents(world)

	if count1 != 1 || count2 != 1 {
		t.Errorf("counts = %d, %d, want 1, 1", count1, count2)
	}
}
