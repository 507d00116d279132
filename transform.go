package arbor

import "math"

// Matrix is a 2D affine matrix stored as [a, b, c, d, tx, ty]:
//
//	| a  c  tx |
//	| b  d  ty |
//	| 0  0   1 |
type Matrix [6]float64

// IdentityMatrix is the identity affine matrix.
var IdentityMatrix = Matrix{1, 0, 0, 1, 0, 0}

// TranslateMatrix returns a translation matrix.
func TranslateMatrix(tx, ty float64) Matrix {
	return Matrix{1, 0, 0, 1, tx, ty}
}

// ScaleMatrix returns a scale matrix.
func ScaleMatrix(sx, sy float64) Matrix {
	return Matrix{sx, 0, 0, sy, 0, 0}
}

// RotateMatrix returns a rotation matrix; positive angles rotate clockwise
// with Y pointing down.
func RotateMatrix(radians float64) Matrix {
	sin, cos := math.Sincos(radians)
	return Matrix{cos, sin, -sin, cos, 0, 0}
}

// Multiply returns m * c (c is applied first).
func (m Matrix) Multiply(c Matrix) Matrix {
	return Matrix{
		m[0]*c[0] + m[2]*c[1],
		m[1]*c[0] + m[3]*c[1],
		m[0]*c[2] + m[2]*c[3],
		m[1]*c[2] + m[3]*c[3],
		m[0]*c[4] + m[2]*c[5] + m[4],
		m[1]*c[4] + m[3]*c[5] + m[5],
	}
}

// Invert computes the inverse. Returns the identity matrix if m is singular.
func (m Matrix) Invert() Matrix {
	det := m[0]*m[3] - m[2]*m[1]
	if det > -1e-12 && det < 1e-12 {
		return IdentityMatrix
	}
	invDet := 1.0 / det
	a := m[3] * invDet
	b := -m[1] * invDet
	c := -m[2] * invDet
	d := m[0] * invDet
	return Matrix{
		a, b, c, d,
		-(a*m[4] + c*m[5]),
		-(b*m[4] + d*m[5]),
	}
}

// MapPoint applies m to a point.
func (m Matrix) MapPoint(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// MapRect returns the axis-aligned bounding box of r transformed by m.
func (m Matrix) MapRect(r Rect) Rect {
	if r.IsEmpty() {
		return Rect{}
	}
	x0, y0 := m.MapPoint(r.X, r.Y)
	x1, y1 := m.MapPoint(r.Right(), r.Y)
	x2, y2 := m.MapPoint(r.X, r.Bottom())
	x3, y3 := m.MapPoint(r.Right(), r.Bottom())
	minX := math.Min(math.Min(x0, x1), math.Min(x2, x3))
	minY := math.Min(math.Min(y0, y1), math.Min(y2, y3))
	maxX := math.Max(math.Max(x0, x1), math.Max(x2, x3))
	maxY := math.Max(math.Max(y0, y1), math.Max(y2, y3))
	return Rect{minX, minY, maxX - minX, maxY - minY}
}

// IsIdentity reports whether m is exactly the identity.
func (m Matrix) IsIdentity() bool {
	return m == IdentityMatrix
}

// IsAxisAligned reports whether m maps axis-aligned rectangles to
// axis-aligned rectangles (no rotation or skew).
func (m Matrix) IsAxisAligned() bool {
	return m[1] == 0 && m[2] == 0
}

// Geometry holds a node's local placement (position, size, pivot, scale,
// rotation, translation) and caches the absolute matrix computed from its
// parent chain.
type Geometry struct {
	X, Y          float64
	Width, Height float64
	Z             float64

	// PivotX and PivotY are fractions of the size; 0.5 is the center.
	PivotX, PivotY float64
	ScaleX, ScaleY float64
	// Rotation is in radians, clockwise with Y pointing down.
	Rotation               float64
	TranslateX, TranslateY float64

	matrix    Matrix
	relMatrix Matrix
	absRect   RectI
}

// newGeometry returns a geometry with identity scale and centered pivot.
func newGeometry() *Geometry {
	return &Geometry{
		PivotX: 0.5,
		PivotY: 0.5,
		ScaleX: 1,
		ScaleY: 1,
		matrix:    IdentityMatrix,
		relMatrix: IdentityMatrix,
	}
}

// IsEmpty reports whether the geometry has no area.
func (g *Geometry) IsEmpty() bool {
	return g == nil || g.Width <= 0 || g.Height <= 0
}

// SetRect sets position and size.
func (g *Geometry) SetRect(x, y, w, h float64) {
	g.X, g.Y, g.Width, g.Height = x, y, w, h
}

// Matrix returns the absolute matrix computed by the last UpdateMatrix.
func (g *Geometry) Matrix() Matrix {
	return g.matrix
}

// RelativeMatrix returns the matrix from the node's local space into its
// parent's space, as computed by the last UpdateMatrix.
func (g *Geometry) RelativeMatrix() Matrix {
	return g.relMatrix
}

// AbsRect returns the absolute bounding box of (0, 0, Width, Height).
func (g *Geometry) AbsRect() RectI {
	return g.absRect
}

// localMatrix composes the local transform:
//
//	Translate(X+TranslateX, Y+TranslateY) * Translate(pivot) * Rotate * Scale * Translate(-pivot)
func (g *Geometry) localMatrix() Matrix {
	px := g.PivotX * g.Width
	py := g.PivotY * g.Height
	sin, cos := math.Sincos(g.Rotation)

	// Rotate * Scale
	a := cos * g.ScaleX
	b := sin * g.ScaleX
	c := -sin * g.ScaleY
	d := cos * g.ScaleY

	// Pivot conjugation: p - RS*p.
	tx := px - (a*px + c*py)
	ty := py - (b*px + d*py)

	return Matrix{a, b, c, d, tx + g.X + g.TranslateX, ty + g.Y + g.TranslateY}
}

// UpdateMatrix recomputes the absolute matrix. A nil parent yields a matrix
// relative to the origin; offsetX/offsetY shift the node inside its parent
// (the parent's frame offset).
func (g *Geometry) UpdateMatrix(parent *Geometry, offsetX, offsetY float64) {
	g.relMatrix = TranslateMatrix(offsetX, offsetY).Multiply(g.localMatrix())
	if parent == nil {
		g.matrix = g.relMatrix
	} else {
		g.matrix = parent.matrix.Multiply(g.relMatrix)
	}
	g.absRect = g.MapAbsRect(Rect{0, 0, g.Width, g.Height})
}

// MapAbsRect maps a rectangle in local coordinates to an absolute integer
// rectangle.
func (g *Geometry) MapAbsRect(r Rect) RectI {
	return g.matrix.MapRect(r).RoundOut()
}

// ConcatMatrix post-multiplies the absolute matrix by m and refreshes the
// absolute rectangle.
func (g *Geometry) ConcatMatrix(m Matrix) {
	if m.IsIdentity() {
		return
	}
	g.matrix = g.matrix.Multiply(m)
	g.relMatrix = g.relMatrix.Multiply(m)
	g.absRect = g.MapAbsRect(Rect{0, 0, g.Width, g.Height})
}
