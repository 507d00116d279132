package arbor

import (
	"fmt"
	"slices"
	"strings"
)

// Region is a set of pixels stored as disjoint rectangles in canonical
// order (by Y, then X). The zero Region is empty.
type Region struct {
	rects []RectI
}

// NewRegion returns a region covering the given rectangles.
func NewRegion(rects ...RectI) Region {
	var r Region
	for _, rc := range rects {
		r = r.Or(Region{rects: []RectI{rc}})
	}
	return r
}

// IsEmpty reports whether the region covers no pixels.
func (r Region) IsEmpty() bool {
	return len(r.rects) == 0
}

// Rects returns the disjoint rectangles. The slice must not be mutated.
func (r Region) Rects() []RectI {
	return r.rects
}

// Bounds returns the bounding rectangle.
func (r Region) Bounds() RectI {
	var b RectI
	for _, rc := range r.rects {
		b = b.Join(rc)
	}
	return b
}

// Area returns the number of covered pixels.
func (r Region) Area() int {
	n := 0
	for _, rc := range r.rects {
		n += rc.Area()
	}
	return n
}

// Sub returns r minus o.
func (r Region) Sub(o Region) Region {
	cur := slices.Clone(r.rects)
	for _, cut := range o.rects {
		var next []RectI
		for _, rc := range cur {
			next = appendRectSub(next, rc, cut)
		}
		cur = next
	}
	return canonical(cur)
}

// Or returns the union of r and o.
func (r Region) Or(o Region) Region {
	if r.IsEmpty() {
		return canonical(filterEmpty(o.rects))
	}
	extra := o.Sub(r)
	return canonical(append(slices.Clone(r.rects), extra.rects...))
}

// And returns the intersection of r and o.
func (r Region) And(o Region) Region {
	var out []RectI
	for _, a := range r.rects {
		for _, b := range o.rects {
			if in := a.Intersect(b); !in.IsEmpty() {
				out = append(out, in)
			}
		}
	}
	return canonical(out)
}

// Equal reports whether both regions cover the same pixels.
func (r Region) Equal(o Region) bool {
	if r.Area() != o.Area() {
		return false
	}
	return r.Sub(o).IsEmpty() && o.Sub(r).IsEmpty()
}

func (r Region) String() string {
	if r.IsEmpty() {
		return "Region{}"
	}
	parts := make([]string, len(r.rects))
	for i, rc := range r.rects {
		parts[i] = fmt.Sprintf("[%d %d %d %d]", rc.X, rc.Y, rc.Width, rc.Height)
	}
	return "Region{" + strings.Join(parts, " ") + "}"
}

// appendRectSub appends the parts of a not covered by cut, as up to four
// disjoint rectangles.
func appendRectSub(dst []RectI, a, cut RectI) []RectI {
	in := a.Intersect(cut)
	if in.IsEmpty() {
		return append(dst, a)
	}
	// top band
	if in.Y > a.Y {
		dst = append(dst, RectI{a.X, a.Y, a.Width, in.Y - a.Y})
	}
	// bottom band
	if in.Bottom() < a.Bottom() {
		dst = append(dst, RectI{a.X, in.Bottom(), a.Width, a.Bottom() - in.Bottom()})
	}
	// left and right of the cut, within its rows
	if in.X > a.X {
		dst = append(dst, RectI{a.X, in.Y, in.X - a.X, in.Height})
	}
	if in.Right() < a.Right() {
		dst = append(dst, RectI{in.Right(), in.Y, a.Right() - in.Right(), in.Height})
	}
	return dst
}

func filterEmpty(rects []RectI) []RectI {
	out := make([]RectI, 0, len(rects))
	for _, rc := range rects {
		if !rc.IsEmpty() {
			out = append(out, rc)
		}
	}
	return out
}

// canonical sorts the rectangles and merges horizontal neighbours that share
// the same rows, so equal pixel sets built the same way compare equal.
func canonical(rects []RectI) Region {
	rects = filterEmpty(rects)
	if len(rects) == 0 {
		return Region{}
	}
	slices.SortFunc(rects, compareRect)
	out := rects[:1]
	for _, rc := range rects[1:] {
		last := &out[len(out)-1]
		if last.Y == rc.Y && last.Height == rc.Height && last.Right() == rc.X {
			last.Width += rc.Width
			continue
		}
		out = append(out, rc)
	}
	return Region{rects: out}
}

func compareRect(a, b RectI) int {
	switch {
	case a.Y != b.Y:
		return a.Y - b.Y
	case a.X != b.X:
		return a.X - b.X
	case a.Height != b.Height:
		return a.Height - b.Height
	}
	return a.Width - b.Width
}
