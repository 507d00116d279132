package arbor

import "math"

// Color represents an RGBA color with components in [0, 1]. Not premultiplied.
type Color struct {
	R, G, B, A float64
}

// ColorTransparent is the zero color.
var ColorTransparent = Color{}

// ColorBlack is opaque black.
var ColorBlack = Color{0, 0, 0, 1}

// ColorWhite is opaque white.
var ColorWhite = Color{1, 1, 1, 1}

// IsTransparent reports whether the color has no visible contribution.
func (c Color) IsTransparent() bool {
	return c.A <= 0
}

// Vec2 is a 2D vector used for positions, offsets, sizes, and pivots.
type Vec2 struct {
	X, Y float64
}

// Rect is an axis-aligned rectangle in float coordinates. The origin is
// top-left with Y increasing downward.
type Rect struct {
	X, Y, Width, Height float64
}

// IsEmpty reports whether the rectangle has no area.
func (r Rect) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Right returns the right edge.
func (r Rect) Right() float64 { return r.X + r.Width }

// Bottom returns the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Contains reports whether the point (x, y) lies inside the rectangle.
// Points on the edge are considered inside.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.Width &&
		y >= r.Y && y <= r.Y+r.Height
}

// Intersects reports whether r and other overlap.
// Adjacent rectangles (sharing only an edge) are considered intersecting.
func (r Rect) Intersects(other Rect) bool {
	return r.X <= other.X+other.Width &&
		r.X+r.Width >= other.X &&
		r.Y <= other.Y+other.Height &&
		r.Y+r.Height >= other.Y
}

// Join returns the smallest rectangle containing both r and other. Empty
// operands are ignored.
func (r Rect) Join(other Rect) Rect {
	if other.IsEmpty() {
		return r
	}
	if r.IsEmpty() {
		return other
	}
	x0 := math.Min(r.X, other.X)
	y0 := math.Min(r.Y, other.Y)
	x1 := math.Max(r.Right(), other.Right())
	y1 := math.Max(r.Bottom(), other.Bottom())
	return Rect{x0, y0, x1 - x0, y1 - y0}
}

// Intersect returns the overlap of r and other, or the zero Rect.
func (r Rect) Intersect(other Rect) Rect {
	x0 := math.Max(r.X, other.X)
	y0 := math.Max(r.Y, other.Y)
	x1 := math.Min(r.Right(), other.Right())
	y1 := math.Min(r.Bottom(), other.Bottom())
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{x0, y0, x1 - x0, y1 - y0}
}

// Outset grows the rectangle by d on every side.
func (r Rect) Outset(d float64) Rect {
	return Rect{r.X - d, r.Y - d, r.Width + 2*d, r.Height + 2*d}
}

// RoundOut returns the smallest integer rectangle covering r.
func (r Rect) RoundOut() RectI {
	if r.IsEmpty() {
		return RectI{}
	}
	x0 := int(math.Floor(r.X))
	y0 := int(math.Floor(r.Y))
	x1 := int(math.Ceil(r.Right()))
	y1 := int(math.Ceil(r.Bottom()))
	return RectI{x0, y0, x1 - x0, y1 - y0}
}

// RectI is an integer rectangle used for damage, occlusion, and layer
// placement.
type RectI struct {
	X, Y, Width, Height int
}

// IsEmpty reports whether the rectangle has no area.
func (r RectI) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Right returns the right edge (exclusive).
func (r RectI) Right() int { return r.X + r.Width }

// Bottom returns the bottom edge (exclusive).
func (r RectI) Bottom() int { return r.Y + r.Height }

// Area returns Width*Height, or 0 for empty rectangles.
func (r RectI) Area() int {
	if r.IsEmpty() {
		return 0
	}
	return r.Width * r.Height
}

// Join returns the smallest rectangle containing both. Empty operands are
// ignored.
func (r RectI) Join(other RectI) RectI {
	if other.IsEmpty() {
		return r
	}
	if r.IsEmpty() {
		return other
	}
	x0 := min(r.X, other.X)
	y0 := min(r.Y, other.Y)
	x1 := max(r.Right(), other.Right())
	y1 := max(r.Bottom(), other.Bottom())
	return RectI{x0, y0, x1 - x0, y1 - y0}
}

// Intersect returns the overlap of r and other, or the zero RectI.
func (r RectI) Intersect(other RectI) RectI {
	x0 := max(r.X, other.X)
	y0 := max(r.Y, other.Y)
	x1 := min(r.Right(), other.Right())
	y1 := min(r.Bottom(), other.Bottom())
	if x1 <= x0 || y1 <= y0 {
		return RectI{}
	}
	return RectI{x0, y0, x1 - x0, y1 - y0}
}

// Intersects reports whether the two rectangles share any area.
func (r RectI) Intersects(other RectI) bool {
	return !r.Intersect(other).IsEmpty()
}

// Touches reports whether the rectangles overlap or share an edge.
func (r RectI) Touches(other RectI) bool {
	return r.X <= other.Right() && other.X <= r.Right() &&
		r.Y <= other.Bottom() && other.Y <= r.Bottom()
}

// ContainsRect reports whether other lies entirely inside r.
func (r RectI) ContainsRect(other RectI) bool {
	return other.X >= r.X && other.Y >= r.Y &&
		other.Right() <= r.Right() && other.Bottom() <= r.Bottom()
}

// ToRect converts to float coordinates.
func (r RectI) ToRect() Rect {
	return Rect{float64(r.X), float64(r.Y), float64(r.Width), float64(r.Height)}
}

// NodeKind distinguishes the behavior of a RenderNode.
type NodeKind uint8

const (
	NodeKindBase          NodeKind = iota // plain tree node with no drawing of its own
	NodeKindCanvas                        // draws recorded command lists
	NodeKindCanvasDrawing                 // canvas node backed by a persistent pixel surface
	NodeKindSurface                       // window surface fed by a producer buffer queue
	NodeKindDisplay                       // one physical or virtual screen
	NodeKindRoot                          // application root attached to a surface
	NodeKindProxy                         // mirrors properties of a target node
)

var nodeKindNames = [...]string{
	NodeKindBase:          "BaseNode",
	NodeKindCanvas:        "CanvasNode",
	NodeKindCanvasDrawing: "CanvasDrawingNode",
	NodeKindSurface:       "SurfaceNode",
	NodeKindDisplay:       "DisplayNode",
	NodeKindRoot:          "RootNode",
	NodeKindProxy:         "ProxyNode",
}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return "UnknownNode"
}

// FollowType selects how a transaction command is buffered on the render
// side.
type FollowType uint8

const (
	FollowNone          FollowType = iota // apply on the next frame
	FollowToParent                        // buffer against the parent surface's buffer timestamp
	FollowToSelf                          // buffer against the node's own buffer timestamp
)

// RenderMode selects the visitor used for Prepare and Process.
type RenderMode uint8

const (
	RenderModeDivided RenderMode = iota // each surface is its own hardware layer
	RenderModeUnified                   // the whole tree is drawn into one framebuffer
)

func (m RenderMode) String() string {
	if m == RenderModeUnified {
		return "unified"
	}
	return "divided"
}

// Gravity positions frame content inside the bounds.
type Gravity uint8

const (
	GravityResize Gravity = iota // stretch to fill
	GravityTopLeft
	GravityCenter
	GravityResizeAspect
)
