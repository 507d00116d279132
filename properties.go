package arbor

import (
	"fmt"
	"math"
)

// Shadow describes a drop shadow painted under a node's bounds.
type Shadow struct {
	Color     Color
	OffsetX   float64
	OffsetY   float64
	Radius    float64
	Elevation float64
}

// IsValid reports whether the shadow paints anything.
func (s *Shadow) IsValid() bool {
	return s != nil && !s.Color.IsTransparent() && (s.Radius > 0 || s.Elevation > 0)
}

// Filter is a blur applied to a node's content or to what lies behind it.
type Filter struct {
	Radius float64
}

// Insets are per-edge distances; used for pixel stretch.
type Insets struct {
	Left, Top, Right, Bottom float64
}

// IsZero reports whether all insets are zero.
func (i Insets) IsZero() bool {
	return i == Insets{}
}

// Properties is a node's mutable visual state. Every setter marks the store
// dirty; setters that move or resize the node also mark geometry dirty.
type Properties struct {
	boundsGeo *Geometry
	frameGeo  *Geometry
	hasBounds bool

	alpha          float64
	alphaOffscreen bool
	visible        bool

	clipToBounds bool
	clipToFrame  bool
	clipRect     *Rect

	cornerRadius float64
	bgColor      Color
	fgColor      Color
	borderColor  Color
	borderWidth  float64

	shadow           *Shadow
	filter           *Filter
	backgroundFilter *Filter
	pixelStretch     Insets
	frameGravity     Gravity

	overlayBounds RectI

	zOrderChanged bool
	isDirty       bool
	geoDirty      bool
}

// NewProperties returns a property store with default values: opaque,
// visible, identity geometry.
func NewProperties() *Properties {
	p := &Properties{
		boundsGeo: newGeometry(),
		frameGeo:  newGeometry(),
	}
	p.resetValues()
	return p
}

func (p *Properties) resetValues() {
	p.alpha = 1
	p.alphaOffscreen = false
	p.visible = true
	p.clipToBounds = false
	p.clipToFrame = false
	p.clipRect = nil
	p.cornerRadius = 0
	p.bgColor = ColorTransparent
	p.fgColor = ColorTransparent
	p.borderColor = ColorTransparent
	p.borderWidth = 0
	p.shadow = nil
	p.filter = nil
	p.backgroundFilter = nil
	p.pixelStretch = Insets{}
	p.frameGravity = GravityResize
}

// Reset restores every value to its default before modifiers are re-applied.
// The cached absolute matrix survives so an unchanged node stays stable.
func (p *Properties) Reset() {
	p.resetValues()
	if p.boundsGeo != nil {
		g := p.boundsGeo
		m, rel, abs := g.matrix, g.relMatrix, g.absRect
		*g = *newGeometry()
		g.matrix, g.relMatrix, g.absRect = m, rel, abs
	}
	if p.frameGeo != nil {
		*p.frameGeo = *newGeometry()
	}
	p.hasBounds = false
	p.SetDirty()
	p.geoDirty = true
}

// --- Bounds ---

// SetBounds sets the bounds rectangle in parent coordinates.
func (p *Properties) SetBounds(r Rect) {
	p.boundsGeo.SetRect(r.X, r.Y, r.Width, r.Height)
	p.hasBounds = true
	p.markGeoDirty()
}

// SetBoundsSize sets the bounds width and height.
func (p *Properties) SetBoundsSize(w, h float64) {
	p.boundsGeo.Width, p.boundsGeo.Height = w, h
	p.hasBounds = true
	p.markGeoDirty()
}

// SetBoundsPosition sets the bounds origin.
func (p *Properties) SetBoundsPosition(x, y float64) {
	p.boundsGeo.X, p.boundsGeo.Y = x, y
	p.hasBounds = true
	p.markGeoDirty()
}

// Bounds returns the bounds rectangle.
func (p *Properties) Bounds() Rect {
	g := p.boundsGeo
	return Rect{g.X, g.Y, g.Width, g.Height}
}

// BoundsGeometry returns the geometry that carries the absolute matrix.
func (p *Properties) BoundsGeometry() *Geometry {
	return p.boundsGeo
}

// HasBounds reports whether bounds were explicitly set.
func (p *Properties) HasBounds() bool {
	return p.hasBounds
}

// --- Frame ---

// SetFrame sets the frame rectangle (content placement).
func (p *Properties) SetFrame(r Rect) {
	p.frameGeo.SetRect(r.X, r.Y, r.Width, r.Height)
	p.markGeoDirty()
}

// SetFrameSize sets the frame width and height.
func (p *Properties) SetFrameSize(w, h float64) {
	p.frameGeo.Width, p.frameGeo.Height = w, h
	p.markGeoDirty()
}

// SetFramePosition sets the frame origin.
func (p *Properties) SetFramePosition(x, y float64) {
	p.frameGeo.X, p.frameGeo.Y = x, y
	p.markGeoDirty()
}

// Frame returns the frame rectangle.
func (p *Properties) Frame() Rect {
	g := p.frameGeo
	return Rect{g.X, g.Y, g.Width, g.Height}
}

// FrameOffset returns the frame position relative to the bounds position,
// or zero when the frame is empty.
func (p *Properties) FrameOffset() Vec2 {
	if p.frameGeo.IsEmpty() {
		return Vec2{}
	}
	return Vec2{p.frameGeo.X - p.boundsGeo.X, p.frameGeo.Y - p.boundsGeo.Y}
}

// BoundsRect returns the local bounds rectangle, falling back to the frame
// size when the bounds are empty.
func (p *Properties) BoundsRect() Rect {
	if p.boundsGeo.IsEmpty() {
		return Rect{0, 0, p.frameGeo.Width, p.frameGeo.Height}
	}
	return Rect{0, 0, p.boundsGeo.Width, p.boundsGeo.Height}
}

// FrameRect returns the local frame rectangle.
func (p *Properties) FrameRect() Rect {
	return Rect{0, 0, p.frameGeo.Width, p.frameGeo.Height}
}

// --- Transform ---

// SetPivot sets the pivot as fractions of the bounds size.
func (p *Properties) SetPivot(x, y float64) {
	p.boundsGeo.PivotX, p.boundsGeo.PivotY = x, y
	p.markGeoDirty()
}

// Pivot returns the pivot.
func (p *Properties) Pivot() Vec2 {
	return Vec2{p.boundsGeo.PivotX, p.boundsGeo.PivotY}
}

// SetRotation sets the rotation in radians.
func (p *Properties) SetRotation(r float64) {
	p.boundsGeo.Rotation = r
	p.markGeoDirty()
}

// Rotation returns the rotation in radians.
func (p *Properties) Rotation() float64 {
	return p.boundsGeo.Rotation
}

// SetScale sets the scale factors.
func (p *Properties) SetScale(sx, sy float64) {
	p.boundsGeo.ScaleX, p.boundsGeo.ScaleY = sx, sy
	p.markGeoDirty()
}

// Scale returns the scale factors.
func (p *Properties) Scale() Vec2 {
	return Vec2{p.boundsGeo.ScaleX, p.boundsGeo.ScaleY}
}

// SetTranslate sets an extra translation applied after the bounds position.
func (p *Properties) SetTranslate(x, y float64) {
	p.boundsGeo.TranslateX, p.boundsGeo.TranslateY = x, y
	p.markGeoDirty()
}

// Translate returns the extra translation.
func (p *Properties) Translate() Vec2 {
	return Vec2{p.boundsGeo.TranslateX, p.boundsGeo.TranslateY}
}

// SetPositionZ sets the z position used to order siblings and surfaces.
func (p *Properties) SetPositionZ(z float64) {
	if p.boundsGeo.Z != z {
		p.zOrderChanged = true
	}
	p.boundsGeo.Z = z
	p.frameGeo.Z = z
	p.markGeoDirty()
}

// PositionZ returns the z position.
func (p *Properties) PositionZ() float64 {
	return p.boundsGeo.Z
}

// ZOrderChanged reports whether PositionZ changed since CleanZOrderChanged.
func (p *Properties) ZOrderChanged() bool {
	return p.zOrderChanged
}

// CleanZOrderChanged clears the z-order-changed flag.
func (p *Properties) CleanZOrderChanged() {
	p.zOrderChanged = false
}

// --- Appearance ---

// SetAlpha sets the opacity in [0, 1].
func (p *Properties) SetAlpha(a float64) {
	p.alpha = a
	p.SetDirty()
}

// Alpha returns the opacity.
func (p *Properties) Alpha() float64 {
	return p.alpha
}

// SetAlphaOffscreen makes a translucent node with children composite through
// a separate layer instead of multiplying alpha into each child.
func (p *Properties) SetAlphaOffscreen(v bool) {
	p.alphaOffscreen = v
	p.SetDirty()
}

// AlphaOffscreen reports whether offscreen alpha is enabled.
func (p *Properties) AlphaOffscreen() bool {
	return p.alphaOffscreen
}

// SetVisible shows or hides the node.
func (p *Properties) SetVisible(v bool) {
	if p.visible != v {
		p.visible = v
		p.SetDirty()
	}
}

// Visible reports whether the node is visible.
func (p *Properties) Visible() bool {
	return p.visible
}

// SetClipToBounds clips drawing of the node and its children to the bounds.
func (p *Properties) SetClipToBounds(v bool) {
	if p.clipToBounds != v {
		p.clipToBounds = v
		p.SetDirty()
	}
}

// ClipToBounds reports whether clip-to-bounds is set.
func (p *Properties) ClipToBounds() bool {
	return p.clipToBounds
}

// SetClipToFrame clips content drawing to the frame.
func (p *Properties) SetClipToFrame(v bool) {
	if p.clipToFrame != v {
		p.clipToFrame = v
		p.SetDirty()
	}
}

// ClipToFrame reports whether clip-to-frame is set.
func (p *Properties) ClipToFrame() bool {
	return p.clipToFrame
}

// SetClipRect sets an explicit clip rectangle in local coordinates; nil
// removes it.
func (p *Properties) SetClipRect(r *Rect) {
	p.clipRect = r
	p.SetDirty()
}

// ClipRect returns the explicit clip rectangle, or nil.
func (p *Properties) ClipRect() *Rect {
	return p.clipRect
}

// NeedClip reports whether any clip applies.
func (p *Properties) NeedClip() bool {
	return p.clipToBounds || p.clipToFrame || p.clipRect != nil
}

// SetCornerRadius sets the bounds corner radius.
func (p *Properties) SetCornerRadius(r float64) {
	p.cornerRadius = r
	p.SetDirty()
}

// CornerRadius returns the bounds corner radius.
func (p *Properties) CornerRadius() float64 {
	return p.cornerRadius
}

// SetBackgroundColor sets the color filled behind content.
func (p *Properties) SetBackgroundColor(c Color) {
	p.bgColor = c
	p.SetDirty()
}

// BackgroundColor returns the background color.
func (p *Properties) BackgroundColor() Color {
	return p.bgColor
}

// SetForegroundColor sets the color filled over content.
func (p *Properties) SetForegroundColor(c Color) {
	p.fgColor = c
	p.SetDirty()
}

// ForegroundColor returns the foreground color.
func (p *Properties) ForegroundColor() Color {
	return p.fgColor
}

// SetBorder sets the border color and width.
func (p *Properties) SetBorder(c Color, width float64) {
	p.borderColor = c
	p.borderWidth = width
	p.SetDirty()
}

// Border returns the border color and width.
func (p *Properties) Border() (Color, float64) {
	return p.borderColor, p.borderWidth
}

// SetShadow sets the shadow; nil removes it.
func (p *Properties) SetShadow(s *Shadow) {
	p.shadow = s
	p.SetDirty()
}

// Shadow returns the shadow, or nil.
func (p *Properties) Shadow() *Shadow {
	return p.shadow
}

// SetFilter sets the content blur; nil removes it.
func (p *Properties) SetFilter(f *Filter) {
	p.filter = f
	p.SetDirty()
}

// Filter returns the content blur, or nil.
func (p *Properties) Filter() *Filter {
	return p.filter
}

// SetBackgroundFilter sets the blur applied to what lies behind the node.
func (p *Properties) SetBackgroundFilter(f *Filter) {
	p.backgroundFilter = f
	p.SetDirty()
}

// BackgroundFilter returns the background blur, or nil.
func (p *Properties) BackgroundFilter() *Filter {
	return p.backgroundFilter
}

// NeedFilter reports whether any blur applies.
func (p *Properties) NeedFilter() bool {
	return p.filter != nil || p.backgroundFilter != nil
}

// SetPixelStretch stretches the node's edge pixels outward by the insets.
func (p *Properties) SetPixelStretch(i Insets) {
	p.pixelStretch = i
	p.SetDirty()
}

// PixelStretch returns the pixel stretch insets.
func (p *Properties) PixelStretch() Insets {
	return p.pixelStretch
}

// SetFrameGravity sets how content is placed inside the frame.
func (p *Properties) SetFrameGravity(g Gravity) {
	if p.frameGravity != g {
		p.frameGravity = g
		p.SetDirty()
	}
}

// FrameGravity returns the frame gravity.
func (p *Properties) FrameGravity() Gravity {
	return p.frameGravity
}

// SetOverlayBounds records the union of overlay draw-command bounds.
func (p *Properties) SetOverlayBounds(r RectI) {
	p.overlayBounds = r
}

// OverlayBounds returns the union of overlay draw-command bounds.
func (p *Properties) OverlayBounds() RectI {
	return p.overlayBounds
}

// --- Dirty state ---

// SetDirty marks the store dirty.
func (p *Properties) SetDirty() {
	p.isDirty = true
}

func (p *Properties) markGeoDirty() {
	p.geoDirty = true
	p.isDirty = true
}

// IsDirty reports whether any property changed since ResetDirty.
func (p *Properties) IsDirty() bool {
	return p.isDirty
}

// IsGeoDirty reports whether a geometry property changed since ResetDirty.
func (p *Properties) IsGeoDirty() bool {
	return p.geoDirty
}

// ResetDirty clears both dirty flags.
func (p *Properties) ResetDirty() {
	p.isDirty = false
	p.geoDirty = false
}

// UpdateGeometry recomputes the absolute matrix when this store or an
// ancestor is geometry-dirty. Empty bounds adopt the frame first. Reports
// whether the geometry was recomputed.
func (p *Properties) UpdateGeometry(parent *Properties, parentDirty bool, offset Vec2) bool {
	if p.boundsGeo == nil {
		return false
	}
	if p.boundsGeo.IsEmpty() {
		p.boundsGeo.X, p.boundsGeo.Y = p.frameGeo.X, p.frameGeo.Y
		p.boundsGeo.Width, p.boundsGeo.Height = p.frameGeo.Width, p.frameGeo.Height
	}
	if !parentDirty && !p.geoDirty {
		return false
	}
	if parent == nil || parent.boundsGeo == nil {
		p.boundsGeo.UpdateMatrix(nil, offset.X, offset.Y)
	} else {
		p.boundsGeo.UpdateMatrix(parent.boundsGeo, offset.X, offset.Y)
	}
	return true
}

// ResetBounds zeroes frame-driven bounds after a paint pass so that stale
// geometry does not leak into the next frame. Explicit bounds are kept.
func (p *Properties) ResetBounds() {
	if !p.hasBounds && p.boundsGeo != nil {
		p.boundsGeo.SetRect(0, 0, 0, 0)
	}
}

// DirtyRect returns the node's damage contribution in absolute coordinates.
func (p *Properties) DirtyRect() RectI {
	g := p.boundsGeo
	if g == nil {
		return RectI{}
	}
	var dirty RectI
	if p.clipToBounds {
		dirty = g.AbsRect()
	} else {
		off := p.FrameOffset()
		frame := g.MapAbsRect(Rect{off.X, off.Y, p.frameGeo.Width, p.frameGeo.Height})
		dirty = g.AbsRect().Join(frame)
	}
	if p.shadow.IsValid() {
		dirty = dirty.Join(p.ShadowRect())
	}
	if !p.pixelStretch.IsZero() {
		dirty = dirty.Join(p.PixelStretchRect())
	}
	return dirty
}

// DirtyRectClipped returns DirtyRect intersected with a prepare-time clip.
func (p *Properties) DirtyRectClipped(clip RectI) RectI {
	return p.DirtyRect().Intersect(clip)
}

// ShadowRect returns the absolute rectangle touched by the shadow.
func (p *Properties) ShadowRect() RectI {
	if !p.shadow.IsValid() {
		return RectI{}
	}
	s := p.shadow
	r := p.BoundsRect()
	r.X += s.OffsetX
	r.Y += s.OffsetY
	r = r.Outset(math.Max(s.Radius, s.Elevation))
	return p.boundsGeo.MapAbsRect(r)
}

// PixelStretchRect returns the absolute rectangle touched by pixel stretch.
func (p *Properties) PixelStretchRect() RectI {
	st := p.pixelStretch
	r := p.BoundsRect()
	r = Rect{
		r.X - st.Left,
		r.Y - st.Top,
		r.Width + st.Left + st.Right,
		r.Height + st.Top + st.Bottom,
	}
	return p.boundsGeo.MapAbsRect(r)
}

// Dump returns a one-line description used by tree dumps.
func (p *Properties) Dump() string {
	b, f := p.Bounds(), p.Frame()
	return fmt.Sprintf("Bounds[%.1f %.1f %.1f %.1f] Frame[%.1f %.1f %.1f %.1f] Alpha[%.2f] Visible[%t]",
		b.X, b.Y, b.Width, b.Height, f.X, f.Y, f.Width, f.Height, p.alpha, p.visible)
}
