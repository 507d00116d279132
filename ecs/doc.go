// Package ecs provides ECS adapters for arbor's occlusion notifications.
//
// The primary adapter is [NewDonburiListener], which publishes every change
// of the visible surface set into a [Donburi] world as a typed event.
// Subscribe to [OcclusionEventType] in your ECS systems to receive them.
//
// Usage:
//
//	loop.AddOcclusionListener(ecs.NewDonburiListener(world))
//
// [Donburi]: https://github.com/yohamta/donburi
package ecs
