package arbor

import (
	"cmp"
	"slices"
)

// VisibleSurface is one entry of an occlusion result.
type VisibleSurface struct {
	Node    NodeID
	Visible Region
}

// OcclusionListener is told when the set of visible surface regions
// changes. It runs on the main loop goroutine and must not block.
type OcclusionListener func(visible []VisibleSurface)

// occlusionState remembers the previous frame's result.
type occlusionState struct {
	lastCount int
	last      []VisibleSurface
	listeners []OcclusionListener
}

// calcOcclusion computes the visible region of every surface under root,
// topmost first, and notifies listeners when the result differs from the
// previous frame. It reports whether listeners were notified.
func (o *occlusionState) calcOcclusion(root *RenderNode) bool {
	surfaces := root.CollectSurface(nil, false)
	changed := len(surfaces) != o.lastCount
	for _, s := range surfaces {
		if s.props.ZOrderChanged() || s.DstRectChanged() {
			changed = true
		}
		s.props.CleanZOrderChanged()
		s.CleanDstRectChanged()
	}
	o.lastCount = len(surfaces)
	if !changed {
		return false
	}

	var covered Region
	result := make([]VisibleSurface, 0, len(surfaces))
	for _, s := range slices.Backward(surfaces) {
		dst := s.DstRect()
		if dst.IsEmpty() || !s.ShouldPaint() {
			s.SetVisibleRegion(Region{})
			continue
		}
		rect := NewRegion(dst)
		visible := rect.Sub(covered)
		s.SetVisibleRegion(visible)
		result = append(result, VisibleSurface{Node: s.id, Visible: visible})
		if s.props.Alpha() >= 1 && s.ContextAlpha() >= 1 {
			covered = covered.Or(rect)
		}
	}
	slices.SortFunc(result, compareVisibleSurface)
	if slices.EqualFunc(result, o.last, func(a, b VisibleSurface) bool {
		return a.Node == b.Node && a.Visible.Equal(b.Visible)
	}) {
		return false
	}
	o.last = result
	for _, l := range o.listeners {
		l(slices.Clone(result))
	}
	return true
}

// compareVisibleSurface orders results by node id, then area.
func compareVisibleSurface(a, b VisibleSurface) int {
	return cmp.Or(compareNodeID(a.Node, b.Node), a.Visible.Area()-b.Visible.Area())
}
