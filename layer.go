package arbor

import (
	"math"
	"slices"
	"sync"
)

// LayerInfo is one layer handed to the display for a frame: a buffer plus
// where and how to show it.
type LayerInfo struct {
	// Node is the surface or display node the buffer came from.
	Node     NodeID
	Consumer *BufferQueue

	Buffer       *Buffer
	AcquireFence *Fence
	// PreBuffer is the buffer this layer showed last frame. It goes back to
	// Consumer with the display's release fence after the commit.
	PreBuffer *Buffer

	ZOrder          uint32
	Alpha           LayerAlpha
	SrcRect         RectI
	DstRect         RectI
	VisibleRegion   []RectI
	DirtyRegion     RectI
	Transform       TransformType
	CompositionType CompositionType
	BlendType       BlendType
	ColorSpace      ColorSpace
	MetaData        []HDRMetaData
	PreMulti        bool

	// Matrix, Bounds and Opacity place the buffer when the render engine
	// draws the layer into the framebuffer. Bounds is in the space Matrix
	// maps from.
	Matrix  Matrix
	Bounds  Rect
	Opacity float64
	Clip    *Rect

	presentType      PresentTimestampType
	presentTimestamp PresentTimestamp
}

// IsSupportedPresentTimestamp reports whether the display reports present
// times for the layer.
func (l *LayerInfo) IsSupportedPresentTimestamp() bool {
	return l.presentType != PresentTimestampUnsupported
}

// PresentTimestamp returns the present time read after the last commit.
func (l *LayerInfo) PresentTimestamp() PresentTimestamp { return l.presentTimestamp }

// newSurfaceLayer builds the layer for a surface node. The surface's
// previous buffer moves to the layer, so the hardware goroutine releases it
// after the commit instead of the loop.
func newSurfaceLayer(n *RenderNode, z uint32, comp CompositionType) *LayerInfo {
	s := n.surface
	l := &LayerInfo{
		Node:            n.id,
		Consumer:        s.consumer,
		Buffer:          s.buffer,
		AcquireFence:    s.acquireFence,
		ZOrder:          z,
		SrcRect:         s.srcRect,
		DstRect:         s.dstRect,
		DirtyRegion:     s.damage,
		CompositionType: comp,
		BlendType:       s.blendType,
		ColorSpace:      s.colorSpace,
		MetaData:        s.metadata,
		PreMulti:        true,
		Matrix:          n.props.boundsGeo.Matrix(),
		Bounds:          n.props.BoundsRect(),
		Opacity:         n.props.Alpha() * s.contextAlpha,
		Clip:            s.contextClip,
	}
	if s.contextMatrix != nil {
		l.Matrix = s.contextMatrix.Multiply(l.Matrix)
	}
	l.Alpha = layerAlpha(l.Opacity)
	if vr := n.visibleRegion; !vr.IsEmpty() {
		l.VisibleRegion = vr.Rects()
	} else {
		l.VisibleRegion = []RectI{s.dstRect}
	}
	if s.preBuffer != nil {
		l.PreBuffer = s.preBuffer
		s.preBuffer, s.preFence = nil, nil
	}
	return l
}

func layerAlpha(a float64) LayerAlpha {
	a = max(0, min(1, a))
	return LayerAlpha{
		EnGlobalAlpha: a < 1,
		EnPixelAlpha:  true,
		GlobalAlpha:   uint8(math.Round(a * 255)),
	}
}

// HdiOutput is the composition state of one screen: its device layers and
// the framebuffer the render engine draws client layers into.
//
// An output is only touched by the hardware goroutine once it is handed to
// HardwareThread.
type HdiOutput struct {
	screen *Screen
	width  int
	height int

	layers   []*LayerInfo
	layerIDs map[NodeID]uint32

	framebuffer  *BufferQueue
	fbBuffer     *Buffer
	fbPreBuffer  *Buffer
	needFlush    bool
	clientLayers []*LayerInfo
}

// NewHdiOutput returns the output of screen, with a framebuffer of the
// given size.
func NewHdiOutput(screen *Screen, width, height int) *HdiOutput {
	return &HdiOutput{
		screen:      screen,
		width:       width,
		height:      height,
		layerIDs:    make(map[NodeID]uint32),
		framebuffer: NewBufferQueue("framebuffer", width, height, 3),
	}
}

// ScreenID returns the screen id.
func (o *HdiOutput) ScreenID() uint32 { return o.screen.id }

// Size returns the framebuffer size.
func (o *HdiOutput) Size() (int, int) { return o.width, o.height }

// SetLayerInfo replaces the layers shown on the next Repaint.
func (o *HdiOutput) SetLayerInfo(layers []*LayerInfo) {
	o.layers = layers
}

// Layers returns the layers of the last Repaint.
func (o *HdiOutput) Layers() []*LayerInfo { return o.layers }

// ClientLayers returns the layers the last Repaint drew into the
// framebuffer.
func (o *HdiOutput) ClientLayers() []*LayerInfo { return o.clientLayers }

// LayerID returns the device layer id allocated for node.
func (o *HdiOutput) LayerID(node NodeID) (uint32, bool) {
	id, ok := o.layerIDs[node]
	return id, ok
}

// Framebuffer returns the queue client composition draws into.
func (o *HdiOutput) Framebuffer() *BufferQueue { return o.framebuffer }

// HdiBackend drives a Device: it pushes layer state, asks the device what
// it can compose, redraws the rest through the render engine and commits.
type HdiBackend struct {
	device *Device
	engine *RenderEngine

	mu      sync.Mutex
	outputs map[uint32]*HdiOutput
}

// NewHdiBackend returns a backend for device. Client composition draws
// through engine.
func NewHdiBackend(device *Device, engine *RenderEngine) *HdiBackend {
	if engine == nil {
		engine = NewRenderEngine()
	}
	return &HdiBackend{device: device, engine: engine, outputs: make(map[uint32]*HdiOutput)}
}

// Device returns the wrapped device.
func (b *HdiBackend) Device() *Device { return b.device }

// Output returns the output of screenID, creating it at the given size on
// first use.
func (b *HdiBackend) Output(screenID uint32, width, height int) *HdiOutput {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.outputs[screenID]; ok {
		return o
	}
	o := NewHdiOutput(NewScreen(screenID, b.device), width, height)
	b.outputs[screenID] = o
	return o
}

// Repaint shows output's layers: it creates and configures device layers,
// closes layers that went away, lets the device decide composition, draws
// client layers into the framebuffer and commits. Device errors are returned
// to the caller, which retries on the next vsync.
func (b *HdiBackend) Repaint(o *HdiOutput) error {
	sid := o.screen.id
	if err := b.updateLayers(o); err != nil {
		return err
	}
	needFlush, err := b.device.PrepareScreenLayers(sid)
	if err != nil {
		Logger().Error("prepare screen layers", "screen", sid, "err", err)
		return err
	}
	if err := b.applyCompChange(o); err != nil {
		return err
	}
	o.clientLayers = o.clientLayers[:0]
	for _, l := range o.layers {
		if l.CompositionType == CompositionClient {
			o.clientLayers = append(o.clientLayers, l)
		}
	}
	o.needFlush = needFlush || len(o.clientLayers) > 0
	if o.needFlush {
		if err := b.flushFramebuffer(o); err != nil {
			Logger().Warn("client composition skipped", "screen", sid, "err", err)
		}
	}
	fence, err := b.device.Commit(sid)
	if err != nil {
		Logger().Error("commit", "screen", sid, "err", err)
		return err
	}
	if o.fbPreBuffer != nil {
		if err := o.framebuffer.ReleaseBuffer(o.fbPreBuffer, fence); err != nil {
			Logger().Debug("release framebuffer", "screen", sid, "err", err)
		}
		o.fbPreBuffer = nil
	}
	b.readPresentTimestamps(o)
	return nil
}

func (b *HdiBackend) updateLayers(o *HdiOutput) error {
	sid := o.screen.id
	live := make(map[NodeID]bool, len(o.layers))
	for _, l := range o.layers {
		live[l.Node] = true
		id, ok := o.layerIDs[l.Node]
		if !ok {
			var err error
			id, err = b.device.CreateLayer(sid, LayerAlloc{Width: l.DstRect.Width, Height: l.DstRect.Height, Format: bufferFormat(l.Buffer)})
			if err != nil {
				Logger().Error("create layer", "screen", sid, "node", l.Node, "err", err)
				return err
			}
			o.layerIDs[l.Node] = id
		}
		if err := b.setLayer(sid, id, l); err != nil {
			Logger().Error("set layer", "screen", sid, "node", l.Node, "err", err)
			return err
		}
	}
	for _, node := range sortedLayerNodes(o.layerIDs) {
		if live[node] {
			continue
		}
		if err := b.device.CloseLayer(sid, o.layerIDs[node]); err != nil {
			Logger().Warn("close layer", "screen", sid, "node", node, "err", err)
		}
		delete(o.layerIDs, node)
	}
	return nil
}

func (b *HdiBackend) setLayer(sid, id uint32, l *LayerInfo) error {
	d := b.device
	steps := []func() error{
		func() error { return d.SetLayerAlpha(sid, id, l.Alpha) },
		func() error { return d.SetLayerSize(sid, id, l.DstRect) },
		func() error { return d.SetTransformMode(sid, id, l.Transform) },
		func() error { return d.SetLayerVisibleRegion(sid, id, l.VisibleRegion) },
		func() error { return d.SetLayerDirtyRegion(sid, id, l.DirtyRegion) },
		func() error { return d.SetLayerBuffer(sid, id, l.Buffer, l.AcquireFence) },
		func() error { return d.SetLayerCompositionType(sid, id, l.CompositionType) },
		func() error { return d.SetLayerBlendType(sid, id, l.BlendType) },
		func() error { return d.SetLayerCrop(sid, id, l.SrcRect) },
		func() error { return d.SetLayerZorder(sid, id, l.ZOrder) },
		func() error { return d.SetLayerPreMulti(sid, id, l.PreMulti) },
		func() error { return d.SetLayerColorDataSpace(sid, id, l.ColorSpace) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	if len(l.MetaData) > 0 {
		if err := d.SetLayerMetaData(sid, id, l.MetaData); err != nil {
			return err
		}
	}
	t, err := d.GetSupportedPresentTimestamp(sid, id)
	if err != nil {
		t = PresentTimestampUnsupported
	}
	l.presentType = t
	return nil
}

// applyCompChange moves layers the device refused to compose to client
// composition.
func (b *HdiBackend) applyCompChange(o *HdiOutput) error {
	ids, types, err := b.device.GetScreenCompChange(o.screen.id)
	if err != nil {
		Logger().Error("get composition change", "screen", o.screen.id, "err", err)
		return err
	}
	for i, id := range ids {
		for _, l := range o.layers {
			if lid, ok := o.layerIDs[l.Node]; ok && lid == id {
				l.CompositionType = types[i]
			}
		}
	}
	return nil
}

// flushFramebuffer redraws the client layers into a framebuffer buffer and
// hands it to the device.
func (b *HdiBackend) flushFramebuffer(o *HdiOutput) error {
	frame, err := b.engine.RequestFrame(o.framebuffer)
	if err != nil {
		return err
	}
	b.engine.DrawLayers(frame.Canvas(), o.clientLayers)
	if err := frame.Flush(RectI{}); err != nil {
		return err
	}
	ab, err := o.framebuffer.AcquireBuffer()
	if err != nil {
		return err
	}
	if err := b.device.SetScreenClientBuffer(o.screen.id, ab.Buffer, ab.Fence); err != nil {
		if rerr := o.framebuffer.ReleaseBuffer(ab.Buffer, SignaledFence()); rerr != nil {
			Logger().Debug("release framebuffer", "err", rerr)
		}
		return err
	}
	o.fbPreBuffer, o.fbBuffer = o.fbBuffer, ab.Buffer
	return nil
}

func (b *HdiBackend) readPresentTimestamps(o *HdiOutput) {
	for _, l := range o.layers {
		if !l.IsSupportedPresentTimestamp() {
			continue
		}
		id, ok := o.layerIDs[l.Node]
		if !ok {
			continue
		}
		ts, err := b.device.GetPresentTimestamp(o.screen.id, id)
		if err != nil {
			Logger().Debug("get present timestamp", "node", l.Node, "err", err)
			continue
		}
		l.presentTimestamp = ts
	}
}

// LayersReleaseFence returns, per layer of the last Repaint, the fence the
// device signals when it stops reading the layer's previous buffer. Layers
// the device reported no fence for get a signalled one.
func (b *HdiBackend) LayersReleaseFence(o *HdiOutput) map[*LayerInfo]*Fence {
	out := make(map[*LayerInfo]*Fence, len(o.layers))
	for _, l := range o.layers {
		out[l] = SignaledFence()
	}
	ids, fences, err := b.device.GetScreenReleaseFence(o.screen.id)
	if err != nil {
		Logger().Debug("get release fence", "screen", o.screen.id, "err", err)
		return out
	}
	for i, id := range ids {
		for _, l := range o.layers {
			if lid, ok := o.layerIDs[l.Node]; ok && lid == id && fences[i] != nil {
				out[l] = fences[i]
			}
		}
	}
	return out
}

func bufferFormat(b *Buffer) PixelFormat {
	if b == nil {
		return PixelFormatRGBA8888
	}
	return b.Format()
}

func sortedLayerNodes(m map[NodeID]uint32) []NodeID {
	ids := make([]NodeID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, compareNodeID)
	return ids
}
