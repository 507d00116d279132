package arbor

import (
	"image"

	"github.com/gogpu/gg"
	"golang.org/x/image/draw"
)

// SoftCanvas is a Canvas that rasterizes on the CPU through gogpu/gg.
type SoftCanvas struct {
	dc    *gg.Context
	stack canvasStack
}

// NewSoftCanvas returns a transparent canvas of the given size.
func NewSoftCanvas(width, height int) *SoftCanvas {
	return &SoftCanvas{
		dc:    gg.NewContext(width, height),
		stack: newCanvasStack(),
	}
}

// Width returns the canvas width.
func (c *SoftCanvas) Width() int { return c.dc.Width() }

// Height returns the canvas height.
func (c *SoftCanvas) Height() int { return c.dc.Height() }

// Image returns a snapshot of the pixels.
func (c *SoftCanvas) Image() image.Image {
	return c.dc.Image()
}

// CopyTo writes the pixels into dst at its origin.
func (c *SoftCanvas) CopyTo(dst *image.RGBA) {
	src := c.dc.Image()
	draw.Draw(dst, dst.Rect, src, src.Bounds().Min, draw.Src)
}

// Close releases the backend context.
func (c *SoftCanvas) Close() error {
	return c.dc.Close()
}

func toGGMatrix(m Matrix) gg.Matrix {
	return gg.Matrix{
		A: m[0], B: m[2], C: m[4],
		D: m[1], E: m[3], F: m[5],
	}
}

func (c *SoftCanvas) Save() int {
	c.dc.Push()
	return c.stack.save()
}

func (c *SoftCanvas) Restore() {
	if c.stack.restore() {
		c.dc.Pop()
	}
}

func (c *SoftCanvas) RestoreToCount(n int) {
	for c.stack.count() > n && c.stack.count() > 1 {
		c.Restore()
	}
}

func (c *SoftCanvas) SaveCount() int { return c.stack.count() }

func (c *SoftCanvas) Translate(dx, dy float64) { c.Concat(TranslateMatrix(dx, dy)) }
func (c *SoftCanvas) Scale(sx, sy float64)     { c.Concat(ScaleMatrix(sx, sy)) }
func (c *SoftCanvas) Rotate(radians float64)   { c.Concat(RotateMatrix(radians)) }

func (c *SoftCanvas) Concat(m Matrix) {
	c.dc.Transform(toGGMatrix(m))
	c.stack.cur.matrix = c.stack.cur.matrix.Multiply(m)
}

func (c *SoftCanvas) TotalMatrix() Matrix { return c.stack.cur.matrix }

func (c *SoftCanvas) ClipRect(r Rect) {
	c.dc.ClipRect(r.X, r.Y, r.Width, r.Height)
}

func (c *SoftCanvas) MultiplyAlpha(a float64) { c.stack.cur.alpha *= a }
func (c *SoftCanvas) Alpha() float64          { return c.stack.cur.alpha }

func (c *SoftCanvas) setColor(col Color) {
	c.dc.SetRGBA(col.R, col.G, col.B, col.A*c.stack.cur.alpha)
}

func (c *SoftCanvas) fill() {
	if err := c.dc.Fill(); err != nil {
		Logger().Debug("soft canvas fill", "err", err)
	}
}

func (c *SoftCanvas) stroke() {
	if err := c.dc.Stroke(); err != nil {
		Logger().Debug("soft canvas stroke", "err", err)
	}
}

func (c *SoftCanvas) DrawRect(r Rect, col Color) {
	if r.IsEmpty() || col.IsTransparent() {
		return
	}
	c.setColor(col)
	c.dc.DrawRectangle(r.X, r.Y, r.Width, r.Height)
	c.fill()
}

func (c *SoftCanvas) DrawRoundRect(r Rect, radius float64, col Color) {
	if radius <= 0 {
		c.DrawRect(r, col)
		return
	}
	if r.IsEmpty() || col.IsTransparent() {
		return
	}
	c.setColor(col)
	c.dc.DrawRoundedRectangle(r.X, r.Y, r.Width, r.Height, radius)
	c.fill()
}

func (c *SoftCanvas) DrawOval(r Rect, col Color) {
	if r.IsEmpty() || col.IsTransparent() {
		return
	}
	c.setColor(col)
	c.dc.DrawEllipse(r.X+r.Width/2, r.Y+r.Height/2, r.Width/2, r.Height/2)
	c.fill()
}

func (c *SoftCanvas) DrawLine(x0, y0, x1, y1, width float64, col Color) {
	if col.IsTransparent() {
		return
	}
	c.setColor(col)
	c.dc.SetLineWidth(width)
	c.dc.DrawLine(x0, y0, x1, y1)
	c.stroke()
}

func (c *SoftCanvas) StrokeRect(r Rect, width float64, col Color) {
	if r.IsEmpty() || width <= 0 || col.IsTransparent() {
		return
	}
	c.setColor(col)
	c.dc.SetLineWidth(width)
	c.dc.DrawRectangle(r.X, r.Y, r.Width, r.Height)
	c.stroke()
}

func (c *SoftCanvas) DrawImage(img image.Image, src, dst Rect) {
	if img == nil || dst.IsEmpty() {
		return
	}
	opts := gg.DrawImageOptions{
		X:         dst.X,
		Y:         dst.Y,
		DstWidth:  dst.Width,
		DstHeight: dst.Height,
		Opacity:   c.stack.cur.alpha,
	}
	if !src.IsEmpty() {
		sr := src.RoundOut()
		opts.SrcRect = &image.Rectangle{
			Min: image.Pt(sr.X, sr.Y),
			Max: image.Pt(sr.Right(), sr.Bottom()),
		}
	}
	c.dc.DrawImageEx(gg.ImageBufFromImage(img), opts)
}

func (c *SoftCanvas) Clear(col Color) {
	c.dc.ClearWithColor(gg.RGBA{R: col.R, G: col.G, B: col.B, A: col.A})
}

// Reset drops all saved state, the transform and the clip, and clears the
// pixels to transparent so the canvas can be reused for another frame.
func (c *SoftCanvas) Reset() {
	c.RestoreToCount(1)
	c.dc.Identity()
	c.dc.ResetClip()
	c.stack = newCanvasStack()
	c.dc.Clear()
}
