package arbor

import "slices"

// maxDirtyRects is the number of separate damage rectangles kept before
// they collapse into their bounding rectangle.
const maxDirtyRects = 16

// DirtyRegionType tags why a rectangle was merged. Used for diagnostics only.
type DirtyRegionType uint8

const (
	DirtyRegionUpdate DirtyRegionType = iota
	DirtyRegionOverlay
	DirtyRegionFilter
	DirtyRegionShadow
	DirtyRegionPrepareClip
	DirtyRegionRemoveChild
	dirtyRegionTypeCount
)

var dirtyRegionTypeNames = [dirtyRegionTypeCount]string{
	DirtyRegionUpdate:      "UpdateDirtyRegion",
	DirtyRegionOverlay:     "OverlayRect",
	DirtyRegionFilter:      "FilterRect",
	DirtyRegionShadow:      "ShadowRect",
	DirtyRegionPrepareClip: "PrepareClipRect",
	DirtyRegionRemoveChild: "RemoveChildRect",
}

func (t DirtyRegionType) String() string {
	if t < dirtyRegionTypeCount {
		return dirtyRegionTypeNames[t]
	}
	return "UnknownDirtyRegion"
}

// DirtyRegionInfo is one tagged merge recorded in debug mode.
type DirtyRegionInfo struct {
	Node NodeID
	Kind NodeKind
	Type DirtyRegionType
	Rect RectI
}

// DirtyRegionManager accumulates per-frame damage. Rectangles that overlap
// or touch are merged; past maxDirtyRects the list collapses to the bounding
// rectangle.
type DirtyRegionManager struct {
	dirtyRect   RectI
	rects       []RectI
	surfaceRect RectI

	debug     bool
	debugInfo []DirtyRegionInfo
}

// NewDirtyRegionManager returns an empty manager.
func NewDirtyRegionManager() *DirtyRegionManager {
	return &DirtyRegionManager{}
}

// SetDebug enables per-merge tagging.
func (m *DirtyRegionManager) SetDebug(enabled bool) {
	m.debug = enabled
}

// SetSurfaceSize sets the size of the surface the damage applies to.
func (m *DirtyRegionManager) SetSurfaceSize(w, h int) {
	m.surfaceRect = RectI{0, 0, w, h}
}

// SurfaceRect returns the surface rectangle.
func (m *DirtyRegionManager) SurfaceRect() RectI {
	return m.surfaceRect
}

// MergeDirtyRect adds r to the frame's damage. Empty rectangles are ignored.
// It reports whether r was merged.
func (m *DirtyRegionManager) MergeDirtyRect(r RectI) bool {
	if r.IsEmpty() {
		return false
	}
	m.dirtyRect = m.dirtyRect.Join(r)
	m.mergeRect(r)
	return true
}

func (m *DirtyRegionManager) mergeRect(r RectI) {
	for {
		merged := false
		m.rects = slices.DeleteFunc(m.rects, func(o RectI) bool {
			if o.Touches(r) {
				r = r.Join(o)
				merged = true
				return true
			}
			return false
		})
		if !merged {
			break
		}
	}
	m.rects = append(m.rects, r)
	if len(m.rects) > maxDirtyRects {
		m.rects = append(m.rects[:0], m.dirtyRect)
	}
}

// UpdateDirtyRegionInfo records a tagged merge for diagnostics. It never
// changes the accumulated damage.
func (m *DirtyRegionManager) UpdateDirtyRegionInfo(id NodeID, kind NodeKind, typ DirtyRegionType, r RectI) {
	if !m.debug || r.IsEmpty() {
		return
	}
	m.debugInfo = append(m.debugInfo, DirtyRegionInfo{Node: id, Kind: kind, Type: typ, Rect: r})
}

// DirtyRegionInfos returns the tagged merges of the current frame.
func (m *DirtyRegionManager) DirtyRegionInfos() []DirtyRegionInfo {
	return m.debugInfo
}

// DirtyRegion returns the bounding rectangle of the frame's damage.
func (m *DirtyRegionManager) DirtyRegion() RectI {
	return m.dirtyRect
}

// DirtyRects returns the merged damage rectangles sorted by position.
func (m *DirtyRegionManager) DirtyRects() []RectI {
	out := slices.Clone(m.rects)
	slices.SortFunc(out, compareRect)
	return out
}

// IsDirty reports whether any damage was merged this frame.
func (m *DirtyRegionManager) IsDirty() bool {
	return !m.dirtyRect.IsEmpty()
}

// IntersectDirtyRectWithSurface clips the accumulated damage to the surface.
func (m *DirtyRegionManager) IntersectDirtyRectWithSurface() {
	if m.surfaceRect.IsEmpty() {
		return
	}
	m.dirtyRect = m.dirtyRect.Intersect(m.surfaceRect)
	out := m.rects[:0]
	for _, r := range m.rects {
		if in := r.Intersect(m.surfaceRect); !in.IsEmpty() {
			out = append(out, in)
		}
	}
	m.rects = out
}

// Clear resets the manager for the next frame. The surface size is kept.
func (m *DirtyRegionManager) Clear() {
	m.dirtyRect = RectI{}
	m.rects = m.rects[:0]
	m.debugInfo = m.debugInfo[:0]
}
