package arbor

import "image"

// Canvas is the drawing surface nodes paint into. Save and Restore bracket
// matrix, clip and alpha state so a child's transform or clip never leaks to
// its siblings.
type Canvas interface {
	// Save pushes the current state and returns the save count before the push.
	Save() int
	Restore()
	// RestoreToCount pops states until the save count equals n.
	RestoreToCount(n int)
	SaveCount() int

	Translate(dx, dy float64)
	Scale(sx, sy float64)
	Rotate(radians float64)
	Concat(m Matrix)
	TotalMatrix() Matrix

	// ClipRect intersects the clip with r in the current coordinate space.
	ClipRect(r Rect)
	// MultiplyAlpha scales the alpha applied to subsequent draws.
	MultiplyAlpha(a float64)
	Alpha() float64

	DrawRect(r Rect, c Color)
	DrawRoundRect(r Rect, radius float64, c Color)
	DrawOval(r Rect, c Color)
	DrawLine(x0, y0, x1, y1, width float64, c Color)
	StrokeRect(r Rect, width float64, c Color)
	DrawImage(img image.Image, src, dst Rect)
	Clear(c Color)
}

// canvasState is one entry of a canvas save stack.
type canvasState struct {
	matrix Matrix
	alpha  float64
}

// canvasStack tracks matrix and alpha for canvases whose backend does not
// expose them.
type canvasStack struct {
	cur   canvasState
	saved []canvasState
}

func newCanvasStack() canvasStack {
	return canvasStack{cur: canvasState{matrix: IdentityMatrix, alpha: 1}}
}

func (s *canvasStack) save() int {
	n := len(s.saved) + 1
	s.saved = append(s.saved, s.cur)
	return n
}

func (s *canvasStack) restore() bool {
	if len(s.saved) == 0 {
		return false
	}
	s.cur = s.saved[len(s.saved)-1]
	s.saved = s.saved[:len(s.saved)-1]
	return true
}

func (s *canvasStack) count() int { return len(s.saved) + 1 }

// RecordingCanvas records every call into a DrawCmdList.
type RecordingCanvas struct {
	list  *DrawCmdList
	stack canvasStack
}

// NewRecordingCanvas returns a canvas recording into a new list of the given
// size.
func NewRecordingCanvas(width, height int) *RecordingCanvas {
	return &RecordingCanvas{
		list:  NewDrawCmdList(width, height),
		stack: newCanvasStack(),
	}
}

// Finish returns the recorded list. The canvas keeps recording into the same
// list if used again.
func (c *RecordingCanvas) Finish() *DrawCmdList {
	return c.list
}

func (c *RecordingCanvas) Save() int {
	c.list.AddOp(DrawOp{Code: OpSave})
	return c.stack.save()
}

func (c *RecordingCanvas) Restore() {
	if c.stack.restore() {
		c.list.AddOp(DrawOp{Code: OpRestore})
	}
}

func (c *RecordingCanvas) RestoreToCount(n int) {
	for c.stack.count() > n && c.stack.count() > 1 {
		c.Restore()
	}
}

func (c *RecordingCanvas) SaveCount() int { return c.stack.count() }

func (c *RecordingCanvas) Translate(dx, dy float64) {
	c.list.AddOp(DrawOp{Code: OpTranslate, Args: [4]float64{dx, dy}})
	c.stack.cur.matrix = c.stack.cur.matrix.Multiply(TranslateMatrix(dx, dy))
}

func (c *RecordingCanvas) Scale(sx, sy float64) {
	c.list.AddOp(DrawOp{Code: OpScale, Args: [4]float64{sx, sy}})
	c.stack.cur.matrix = c.stack.cur.matrix.Multiply(ScaleMatrix(sx, sy))
}

func (c *RecordingCanvas) Rotate(radians float64) {
	c.list.AddOp(DrawOp{Code: OpRotate, Value: radians})
	c.stack.cur.matrix = c.stack.cur.matrix.Multiply(RotateMatrix(radians))
}

func (c *RecordingCanvas) Concat(m Matrix) {
	c.list.AddOp(DrawOp{Code: OpConcat, Matrix: m})
	c.stack.cur.matrix = c.stack.cur.matrix.Multiply(m)
}

func (c *RecordingCanvas) TotalMatrix() Matrix { return c.stack.cur.matrix }

func (c *RecordingCanvas) ClipRect(r Rect) {
	c.list.AddOp(DrawOp{Code: OpClipRect, Rect: r})
}

func (c *RecordingCanvas) MultiplyAlpha(a float64) {
	c.list.AddOp(DrawOp{Code: OpAlpha, Value: a})
	c.stack.cur.alpha *= a
}

func (c *RecordingCanvas) Alpha() float64 { return c.stack.cur.alpha }

func (c *RecordingCanvas) DrawRect(r Rect, col Color) {
	c.list.AddOp(DrawOp{Code: OpRect, Rect: r, Color: col})
}

func (c *RecordingCanvas) DrawRoundRect(r Rect, radius float64, col Color) {
	c.list.AddOp(DrawOp{Code: OpRoundRect, Rect: r, Color: col, Value: radius})
}

func (c *RecordingCanvas) DrawOval(r Rect, col Color) {
	c.list.AddOp(DrawOp{Code: OpOval, Rect: r, Color: col})
}

func (c *RecordingCanvas) DrawLine(x0, y0, x1, y1, width float64, col Color) {
	c.list.AddOp(DrawOp{
		Code:  OpLine,
		Args:  [4]float64{x0, y0, x1, y1},
		Value: width,
		Color: col,
	})
}

func (c *RecordingCanvas) StrokeRect(r Rect, width float64, col Color) {
	c.list.AddOp(DrawOp{Code: OpStrokeRect, Rect: r, Color: col, Value: width})
}

func (c *RecordingCanvas) DrawImage(img image.Image, src, dst Rect) {
	c.list.AddOp(DrawOp{Code: OpImage, Rect: dst, Src: src, Image: img})
}

func (c *RecordingCanvas) Clear(col Color) {
	c.list.AddOp(DrawOp{Code: OpClear, Color: col})
}
