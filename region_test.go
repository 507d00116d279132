package arbor

import (
	"testing"
)

// --- Region ---

func TestRegionSubCutsHole(t *testing.T) {
	r := NewRegion(RectI{0, 0, 30, 30}).Sub(NewRegion(RectI{10, 10, 10, 10}))
	if got := r.Area(); got != 800 {
		t.Errorf("Area = %d, want 800", got)
	}
	if got := r.Bounds(); got != (RectI{0, 0, 30, 30}) {
		t.Errorf("Bounds = %v, want {0 0 30 30}", got)
	}
	if !r.And(NewRegion(RectI{10, 10, 10, 10})).IsEmpty() {
		t.Error("hole still covered")
	}
}

func TestRegionOrOverlapCountsOnce(t *testing.T) {
	r := NewRegion(RectI{0, 0, 10, 10}, RectI{5, 0, 10, 10})
	if got := r.Area(); got != 150 {
		t.Errorf("Area = %d, want 150", got)
	}
	for i, a := range r.Rects() {
		for _, b := range r.Rects()[i+1:] {
			if !a.Intersect(b).IsEmpty() {
				t.Errorf("rects %v and %v overlap", a, b)
			}
		}
	}
}

func TestRegionEqualIgnoresConstruction(t *testing.T) {
	a := NewRegion(RectI{0, 0, 10, 5}, RectI{0, 5, 10, 5})
	b := NewRegion(RectI{0, 0, 5, 10}, RectI{5, 0, 5, 10})
	if !a.Equal(b) {
		t.Errorf("%v != %v", a, b)
	}
	if a.Equal(NewRegion(RectI{0, 0, 10, 9})) {
		t.Error("regions of different area compared equal")
	}
}

func TestRegionEmpty(t *testing.T) {
	var r Region
	if !r.IsEmpty() || r.Area() != 0 {
		t.Errorf("zero Region not empty: %v", r)
	}
	if !NewRegion(RectI{0, 0, 0, 5}).IsEmpty() {
		t.Error("zero-width rect produced pixels")
	}
	if got := r.String(); got != "Region{}" {
		t.Errorf("String = %q", got)
	}
}

// --- Dirty regions ---

func TestDirtyManagerMergesTouching(t *testing.T) {
	m := NewDirtyRegionManager()
	m.MergeDirtyRect(RectI{0, 0, 10, 10})
	m.MergeDirtyRect(RectI{10, 0, 10, 10})
	m.MergeDirtyRect(RectI{50, 50, 5, 5})

	rects := m.DirtyRects()
	if len(rects) != 2 {
		t.Fatalf("DirtyRects = %v, want 2 rects", rects)
	}
	if rects[0] != (RectI{0, 0, 20, 10}) {
		t.Errorf("rects[0] = %v, want {0 0 20 10}", rects[0])
	}
	if got := m.DirtyRegion(); got != (RectI{0, 0, 55, 55}) {
		t.Errorf("DirtyRegion = %v, want {0 0 55 55}", got)
	}
}

func TestDirtyManagerIgnoresEmpty(t *testing.T) {
	m := NewDirtyRegionManager()
	if m.MergeDirtyRect(RectI{5, 5, 0, 0}) {
		t.Error("MergeDirtyRect(empty) = true")
	}
	if m.IsDirty() {
		t.Error("IsDirty after empty merge")
	}
}

func TestDirtyManagerCollapsesPastLimit(t *testing.T) {
	m := NewDirtyRegionManager()
	for i := range maxDirtyRects + 1 {
		m.MergeDirtyRect(RectI{i * 10, 0, 5, 5})
	}
	rects := m.DirtyRects()
	if len(rects) != 1 {
		t.Fatalf("len(DirtyRects) = %d, want 1", len(rects))
	}
	if rects[0] != m.DirtyRegion() {
		t.Errorf("collapsed rect = %v, want %v", rects[0], m.DirtyRegion())
	}
}

func TestDirtyManagerClipsToSurface(t *testing.T) {
	m := NewDirtyRegionManager()
	m.SetSurfaceSize(20, 20)
	m.MergeDirtyRect(RectI{10, 10, 30, 30})
	m.MergeDirtyRect(RectI{50, 50, 5, 5})
	m.IntersectDirtyRectWithSurface()
	if got := m.DirtyRegion(); got != (RectI{10, 10, 10, 10}) {
		t.Errorf("DirtyRegion = %v, want {10 10 10 10}", got)
	}
	if got := m.DirtyRects(); len(got) != 1 {
		t.Errorf("DirtyRects = %v, want one rect", got)
	}

	m.Clear()
	if m.IsDirty() || len(m.DirtyRects()) != 0 {
		t.Error("dirty after Clear")
	}
	if m.SurfaceRect() != (RectI{0, 0, 20, 20}) {
		t.Errorf("SurfaceRect after Clear = %v", m.SurfaceRect())
	}
}

func TestDirtyManagerDebugInfo(t *testing.T) {
	m := NewDirtyRegionManager()
	m.UpdateDirtyRegionInfo(MakeNodeID(1, 1), NodeKindCanvas, DirtyRegionShadow, RectI{0, 0, 1, 1})
	if len(m.DirtyRegionInfos()) != 0 {
		t.Error("info recorded without debug")
	}
	m.SetDebug(true)
	m.UpdateDirtyRegionInfo(MakeNodeID(1, 1), NodeKindCanvas, DirtyRegionShadow, RectI{0, 0, 1, 1})
	infos := m.DirtyRegionInfos()
	if len(infos) != 1 || infos[0].Type != DirtyRegionShadow {
		t.Errorf("infos = %+v", infos)
	}
	if m.IsDirty() {
		t.Error("debug info changed the damage")
	}
	if got := DirtyRegionShadow.String(); got != "ShadowRect" {
		t.Errorf("String = %q, want ShadowRect", got)
	}
}
