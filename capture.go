package arbor

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"math"

	xdraw "golang.org/x/image/draw"
)

// CaptureVisitor draws a subtree into an offscreen canvas. It never makes
// display layers, and security layers are left out.
type CaptureVisitor struct {
	treeDrawer
}

func newCaptureVisitor(engine *RenderEngine, c Canvas) *CaptureVisitor {
	v := &CaptureVisitor{}
	v.treeDrawer = treeDrawer{self: v, engine: engine, canvas: c}
	return v
}

func (v *CaptureVisitor) PrepareBaseRenderNode(*RenderNode)    {}
func (v *CaptureVisitor) PrepareCanvasRenderNode(*RenderNode)  {}
func (v *CaptureVisitor) PrepareSurfaceRenderNode(*RenderNode) {}
func (v *CaptureVisitor) PrepareDisplayRenderNode(*RenderNode) {}
func (v *CaptureVisitor) PrepareRootRenderNode(*RenderNode)    {}
func (v *CaptureVisitor) PrepareProxyRenderNode(*RenderNode)   {}

func (v *CaptureVisitor) ProcessBaseRenderNode(n *RenderNode)    { v.drawNode(n) }
func (v *CaptureVisitor) ProcessCanvasRenderNode(n *RenderNode)  { v.drawNode(n) }
func (v *CaptureVisitor) ProcessRootRenderNode(n *RenderNode)    { v.drawRoot(n) }
func (v *CaptureVisitor) ProcessProxyRenderNode(n *RenderNode)   { n.ProcessChildren(v) }
func (v *CaptureVisitor) ProcessSurfaceRenderNode(n *RenderNode) { v.drawSurface(n) }

func (v *CaptureVisitor) ProcessDisplayRenderNode(n *RenderNode) {
	count := v.canvas.Save()
	ox, oy := n.DisplayOffset()
	v.canvas.Translate(float64(ox), float64(oy))
	n.ProcessChildren(v)
	v.canvas.RestoreToCount(count)
}

// captureNode renders n's subtree at full size, then scales the result by
// scaleX and scaleY. A surface is drawn from its own origin, ignoring where
// it sits on screen.
func captureNode(engine *RenderEngine, n *RenderNode, scaleX, scaleY float64) (*image.RGBA, error) {
	var w, h int
	if n.display != nil {
		w, h = n.DisplaySize()
	} else {
		b := n.props.BoundsRect()
		w, h = int(math.Ceil(b.Width)), int(math.Ceil(b.Height))
	}
	if w <= 0 || h <= 0 || scaleX <= 0 || scaleY <= 0 {
		return nil, fmt.Errorf("capture %s: %w", n.id, ErrEmptyCapture)
	}

	c := engine.acquireCanvas(w, h)
	defer engine.releaseCanvas(c)
	c.Clear(Color{})
	v := newCaptureVisitor(engine, c)
	switch n.kind {
	case NodeKindDisplay:
		n.Process(v)
	default:
		// Draw in the node's local space: undo its placement, keep the rest.
		count := c.Save()
		c.Concat(n.props.boundsGeo.RelativeMatrix().Invert())
		n.Process(v)
		c.RestoreToCount(count)
	}

	full := image.NewRGBA(image.Rect(0, 0, w, h))
	c.CopyTo(full)
	if scaleX == 1 && scaleY == 1 {
		return full, nil
	}
	dw := max(1, int(math.Round(float64(w)*scaleX)))
	dh := max(1, int(math.Round(float64(h)*scaleY)))
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), full, full.Bounds(), xdraw.Src, nil)
	return dst, nil
}

// WritePNG encodes a capture as PNG, converting premultiplied pixels to
// straight alpha first.
func WritePNG(w io.Writer, img *image.RGBA) error {
	b := img.Bounds()
	out := image.NewNRGBA(b)
	for i := 0; i+3 < len(img.Pix); i += 4 {
		r, g, bl, a := img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3]
		if a > 0 && a < 255 {
			r = uint8(min(int(r)*255/int(a), 255))
			g = uint8(min(int(g)*255/int(a), 255))
			bl = uint8(min(int(bl)*255/int(a), 255))
		}
		out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = r, g, bl, a
	}
	if err := png.Encode(w, out); err != nil {
		return fmt.Errorf("encode capture: %w", err)
	}
	return nil
}
