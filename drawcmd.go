package arbor

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// OpCode identifies a recorded drawing operation. Values are part of the
// wire format and never change.
type OpCode uint16

const (
	OpNone       OpCode = iota
	OpRect              // fill Rect with Color
	OpRoundRect         // fill Rect with corner radius Value
	OpOval              // fill the ellipse inscribed in Rect
	OpLine              // line Args[0..3] with width Value
	OpImage             // draw Image region Src into Rect
	OpClipRect          // intersect clip with Rect
	OpSave              // push canvas state
	OpRestore           // pop canvas state
	OpTranslate         // translate by Args[0], Args[1]
	OpScale             // scale by Args[0], Args[1]
	OpRotate            // rotate by Value radians
	OpConcat            // concatenate Matrix
	OpAlpha             // multiply alpha by Value
	OpClear             // clear to Color
	OpStrokeRect        // stroke Rect with width Value
	opCount
)

var opCodeNames = [...]string{
	OpNone:       "None",
	OpRect:       "Rect",
	OpRoundRect:  "RoundRect",
	OpOval:       "Oval",
	OpLine:       "Line",
	OpImage:      "Image",
	OpClipRect:   "ClipRect",
	OpSave:       "Save",
	OpRestore:    "Restore",
	OpTranslate:  "Translate",
	OpScale:      "Scale",
	OpRotate:     "Rotate",
	OpConcat:     "Concat",
	OpAlpha:      "Alpha",
	OpClear:      "Clear",
	OpStrokeRect: "StrokeRect",
}

func (c OpCode) String() string {
	if c < opCount {
		return opCodeNames[c]
	}
	return fmt.Sprintf("OpCode(%d)", uint16(c))
}

// DrawOp is a single recorded operation. Which fields are meaningful depends
// on Code; see the OpCode constants.
type DrawOp struct {
	Code   OpCode
	Rect   Rect
	Src    Rect
	Color  Color
	Args   [4]float64
	Value  float64
	Matrix Matrix
	Image  image.Image
}

// isMatrixOp reports whether the op only changes the canvas matrix.
func (op *DrawOp) isMatrixOp() bool {
	switch op.Code {
	case OpTranslate, OpScale, OpRotate, OpConcat:
		return true
	}
	return false
}

// matrix returns the op's transform, or identity for non-matrix ops.
func (op *DrawOp) matrix() Matrix {
	switch op.Code {
	case OpTranslate:
		return TranslateMatrix(op.Args[0], op.Args[1])
	case OpScale:
		return ScaleMatrix(op.Args[0], op.Args[1])
	case OpRotate:
		return RotateMatrix(op.Value)
	case OpConcat:
		return op.Matrix
	}
	return IdentityMatrix
}

// bounds returns the local area the op can touch, or an empty rect.
func (op *DrawOp) bounds() Rect {
	switch op.Code {
	case OpRect, OpRoundRect, OpOval, OpImage:
		return op.Rect
	case OpStrokeRect:
		return op.Rect.Outset(op.Value / 2)
	case OpLine:
		x0, y0 := min(op.Args[0], op.Args[2]), min(op.Args[1], op.Args[3])
		x1, y1 := max(op.Args[0], op.Args[2]), max(op.Args[1], op.Args[3])
		return Rect{x0, y0, x1 - x0, y1 - y0}.Outset(op.Value / 2)
	}
	return Rect{}
}

// DrawCmdList is an ordered list of drawing operations with a nominal size.
// It can be played back any number of times and individual ops can be
// swapped in place without re-recording.
type DrawCmdList struct {
	width, height int
	ops           []DrawOp
	cached        bool
}

// NewDrawCmdList returns an empty list of the given nominal size.
func NewDrawCmdList(width, height int) *DrawCmdList {
	return &DrawCmdList{width: width, height: height}
}

func (l *DrawCmdList) Width() int  { return l.width }
func (l *DrawCmdList) Height() int { return l.height }

// Len returns the number of ops.
func (l *DrawCmdList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.ops)
}

// AddOp appends an op.
func (l *DrawCmdList) AddOp(op DrawOp) {
	l.ops = append(l.ops, op)
}

// Op returns the op at index i.
func (l *DrawCmdList) Op(i int) DrawOp {
	return l.ops[i]
}

// ReplaceOp swaps the op at index i and marks the list as cached. Used to
// substitute an uploaded image or a pre-rendered result for the original op.
func (l *DrawCmdList) ReplaceOp(i int, op DrawOp) error {
	if i < 0 || i >= len(l.ops) {
		return fmt.Errorf("arbor: replace op %d: index out of range [0, %d)", i, len(l.ops))
	}
	l.ops[i] = op
	l.cached = true
	return nil
}

// ClearOps drops every op but keeps the nominal size. Used once ops were
// replayed onto a persistent surface.
func (l *DrawCmdList) ClearOps() {
	clear(l.ops)
	l.ops = l.ops[:0]
}

// IsCached reports whether any op was replaced since recording.
func (l *DrawCmdList) IsCached() bool { return l.cached }

// Snapshot returns a copy that shares image data but not the op slice, so
// later ReplaceOp calls on either list do not affect the other.
func (l *DrawCmdList) Snapshot() *DrawCmdList {
	c := &DrawCmdList{width: l.width, height: l.height, cached: l.cached}
	c.ops = append([]DrawOp(nil), l.ops...)
	return c
}

// Bounds returns the nominal rectangle when the list has a size, otherwise
// the union of every op's area mapped through the recorded matrix ops.
func (l *DrawCmdList) Bounds() Rect {
	if l == nil {
		return Rect{}
	}
	if l.width > 0 && l.height > 0 {
		return Rect{0, 0, float64(l.width), float64(l.height)}
	}
	var out Rect
	m := IdentityMatrix
	var stack []Matrix
	for i := range l.ops {
		op := &l.ops[i]
		switch {
		case op.Code == OpSave:
			stack = append(stack, m)
		case op.Code == OpRestore:
			if len(stack) > 0 {
				m = stack[len(stack)-1]
				stack = stack[:len(stack)-1]
			}
		case op.isMatrixOp():
			m = m.Multiply(op.matrix())
		default:
			out = out.Join(m.MapRect(op.bounds()))
		}
	}
	return out
}

// Matrix folds every matrix op into one transform, ignoring drawing ops and
// save/restore. Used by geometry-transform modifiers.
func (l *DrawCmdList) Matrix() Matrix {
	m := IdentityMatrix
	if l == nil {
		return m
	}
	for i := range l.ops {
		if l.ops[i].isMatrixOp() {
			m = m.Multiply(l.ops[i].matrix())
		}
	}
	return m
}

// Playback replays every op onto c. The canvas save count is restored
// afterwards, so an unbalanced list cannot leak state.
func (l *DrawCmdList) Playback(c Canvas) {
	if l == nil || c == nil {
		return
	}
	l.PlaybackRange(c, 0, len(l.ops))
}

// PlaybackRange replays ops [start, end) onto c with the same save count
// guarantee as Playback. Out-of-range bounds are clamped.
func (l *DrawCmdList) PlaybackRange(c Canvas, start, end int) {
	if l == nil || c == nil {
		return
	}
	start = max(start, 0)
	end = min(end, len(l.ops))
	count := c.SaveCount()
	for i := start; i < end; i++ {
		playOp(c, &l.ops[i])
	}
	c.RestoreToCount(count)
}

func playOp(c Canvas, op *DrawOp) {
	switch op.Code {
	case OpRect:
		c.DrawRect(op.Rect, op.Color)
	case OpRoundRect:
		c.DrawRoundRect(op.Rect, op.Value, op.Color)
	case OpOval:
		c.DrawOval(op.Rect, op.Color)
	case OpLine:
		c.DrawLine(op.Args[0], op.Args[1], op.Args[2], op.Args[3], op.Value, op.Color)
	case OpStrokeRect:
		c.StrokeRect(op.Rect, op.Value, op.Color)
	case OpImage:
		if op.Image != nil {
			c.DrawImage(op.Image, op.Src, op.Rect)
		}
	case OpClipRect:
		c.ClipRect(op.Rect)
	case OpSave:
		c.Save()
	case OpRestore:
		c.Restore()
	case OpTranslate:
		c.Translate(op.Args[0], op.Args[1])
	case OpScale:
		c.Scale(op.Args[0], op.Args[1])
	case OpRotate:
		c.Rotate(op.Value)
	case OpConcat:
		c.Concat(op.Matrix)
	case OpAlpha:
		c.MultiplyAlpha(op.Value)
	case OpClear:
		c.Clear(op.Color)
	}
}

// Marshal appends the list to p.
func (l *DrawCmdList) Marshal(p *Parcel) {
	p.WriteInt32(int32(l.width))
	p.WriteInt32(int32(l.height))
	p.WriteUint32(uint32(len(l.ops)))
	for i := range l.ops {
		marshalOp(p, &l.ops[i])
	}
}

// UnmarshalDrawCmdList reads a list written by Marshal.
func UnmarshalDrawCmdList(p *Parcel) (*DrawCmdList, error) {
	w := int(p.ReadInt32())
	h := int(p.ReadInt32())
	n := p.ReadUint32()
	if err := p.Err(); err != nil {
		return nil, err
	}
	// Every op occupies at least its opcode.
	if int(n)*2 > p.Remaining() {
		return nil, fmt.Errorf("draw list of %d ops: %w", n, ErrMalformedTransaction)
	}
	l := &DrawCmdList{width: w, height: h, ops: make([]DrawOp, 0, n)}
	for range n {
		op, err := unmarshalOp(p)
		if err != nil {
			return nil, err
		}
		l.ops = append(l.ops, op)
	}
	return l, p.Err()
}

func marshalOp(p *Parcel, op *DrawOp) {
	p.WriteUint16(uint16(op.Code))
	switch op.Code {
	case OpRect, OpOval, OpClipRect:
		p.WriteRect(op.Rect)
		p.WriteColor(op.Color)
	case OpRoundRect, OpStrokeRect:
		p.WriteRect(op.Rect)
		p.WriteColor(op.Color)
		p.WriteFloat64(op.Value)
	case OpLine:
		for _, v := range op.Args {
			p.WriteFloat64(v)
		}
		p.WriteFloat64(op.Value)
		p.WriteColor(op.Color)
	case OpImage:
		p.WriteRect(op.Rect)
		p.WriteRect(op.Src)
		writeImage(p, op.Image)
	case OpTranslate, OpScale:
		p.WriteFloat64(op.Args[0])
		p.WriteFloat64(op.Args[1])
	case OpRotate, OpAlpha:
		p.WriteFloat64(op.Value)
	case OpConcat:
		p.WriteMatrix(op.Matrix)
	case OpClear:
		p.WriteColor(op.Color)
	}
}

func unmarshalOp(p *Parcel) (DrawOp, error) {
	op := DrawOp{Code: OpCode(p.ReadUint16())}
	switch op.Code {
	case OpRect, OpOval, OpClipRect:
		op.Rect = p.ReadRect()
		op.Color = p.ReadColor()
	case OpRoundRect, OpStrokeRect:
		op.Rect = p.ReadRect()
		op.Color = p.ReadColor()
		op.Value = p.ReadFloat64()
	case OpLine:
		for i := range op.Args {
			op.Args[i] = p.ReadFloat64()
		}
		op.Value = p.ReadFloat64()
		op.Color = p.ReadColor()
	case OpImage:
		op.Rect = p.ReadRect()
		op.Src = p.ReadRect()
		op.Image = readImage(p)
	case OpTranslate, OpScale:
		op.Args[0] = p.ReadFloat64()
		op.Args[1] = p.ReadFloat64()
	case OpRotate, OpAlpha:
		op.Value = p.ReadFloat64()
	case OpConcat:
		op.Matrix = p.ReadMatrix()
	case OpClear:
		op.Color = p.ReadColor()
	case OpSave, OpRestore:
	default:
		if p.Err() == nil {
			return op, fmt.Errorf("draw op %v: %w", op.Code, ErrMalformedTransaction)
		}
	}
	return op, p.Err()
}

// writeImage stores an image as straight RGBA pixels. A nil image is written
// with zero size.
func writeImage(p *Parcel, img image.Image) {
	if img == nil {
		p.WriteInt32(0)
		p.WriteInt32(0)
		p.WriteBytes(nil)
		return
	}
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Rect.Min != (image.Point{}) || rgba.Stride != 4*b.Dx() {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	}
	p.WriteInt32(int32(b.Dx()))
	p.WriteInt32(int32(b.Dy()))
	p.WriteBytes(rgba.Pix)
}

func readImage(p *Parcel) image.Image {
	w := int(p.ReadInt32())
	h := int(p.ReadInt32())
	pix := p.ReadBytes()
	if p.Err() != nil || w <= 0 || h <= 0 {
		return nil
	}
	if len(pix) != 4*w*h {
		p.err = ErrMalformedTransaction
		return nil
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, pix)
	return img
}
