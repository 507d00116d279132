// Package ecs provides ECS adapters for arbor.
package ecs

import (
	"github.com/phanxgames/arbor"

	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/features/events"
)

// OcclusionEvent is published when the visible regions of the surfaces
// change.
type OcclusionEvent struct {
	Surfaces []arbor.VisibleSurface
}

// Visible returns the visible region of surface id and whether the surface
// is in the event.
func (e OcclusionEvent) Visible(id arbor.NodeID) (arbor.Region, bool) {
	for _, s := range e.Surfaces {
		if s.Node == id {
			return s.Visible, true
		}
	}
	return arbor.Region{}, false
}

// OcclusionEventType is the Donburi event type for occlusion changes.
var OcclusionEventType = events.NewEventType[OcclusionEvent]()

// NewDonburiListener returns an occlusion listener that publishes to
// OcclusionEventType in world. Events are queued; consume them with
// ProcessEvents from the goroutine that owns the world.
func NewDonburiListener(world donburi.World) arbor.OcclusionListener {
	return func(visible []arbor.VisibleSurface) {
		OcclusionEventType.Publish(world, OcclusionEvent{Surfaces: visible})
	}
}
