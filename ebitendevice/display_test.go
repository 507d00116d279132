package ebitendevice

import (
	"testing"

	"github.com/phanxgames/arbor"
)

func newBackend(t *testing.T, d *Display) *arbor.HdiBackend {
	t.Helper()
	dev, err := arbor.NewDevice(d.Funcs())
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	return arbor.NewHdiBackend(dev, nil)
}

func filledBuffer(t *testing.T, name string, w, h int) (*arbor.BufferQueue, arbor.AcquiredBuffer) {
	t.Helper()
	q := arbor.NewBufferQueue(name, w, h, 2)
	b, _, err := q.RequestBuffer()
	if err != nil {
		t.Fatalf("RequestBuffer: %v", err)
	}
	pix := b.Image().Pix
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+3] = 0xff, 0xff
	}
	if err := q.FlushBuffer(b, arbor.SignaledFence(), 0, arbor.RectI{}); err != nil {
		t.Fatalf("FlushBuffer: %v", err)
	}
	ab, err := q.AcquireBuffer()
	if err != nil {
		t.Fatalf("AcquireBuffer: %v", err)
	}
	return q, ab
}

func deviceLayer(node uint32, q *arbor.BufferQueue, ab arbor.AcquiredBuffer, z uint32, dst arbor.RectI) *arbor.LayerInfo {
	return &arbor.LayerInfo{
		Node:            arbor.NodeID{Pid: 1, Local: node},
		Consumer:        q,
		Buffer:          ab.Buffer,
		AcquireFence:    ab.Fence,
		ZOrder:          z,
		Alpha:           arbor.LayerAlpha{EnPixelAlpha: true, GlobalAlpha: 255},
		SrcRect:         arbor.RectI{Width: ab.Buffer.Width(), Height: ab.Buffer.Height()},
		DstRect:         dst,
		VisibleRegion:   []arbor.RectI{dst},
		CompositionType: arbor.CompositionDevice,
		BlendType:       arbor.BlendSrcOver,
		PreMulti:        true,
		Matrix:          arbor.IdentityMatrix,
		Bounds:          dst.ToRect(),
		Opacity:         1,
	}
}

func TestRepaintScansOutDeviceLayers(t *testing.T) {
	d := New(32, 32)
	b := newBackend(t, d)
	o := b.Output(ScreenID, 32, 32)

	qa, a := filledBuffer(t, "a", 4, 4)
	qb, bb := filledBuffer(t, "b", 8, 8)
	o.SetLayerInfo([]*arbor.LayerInfo{
		deviceLayer(1, qa, a, 1, arbor.RectI{X: 2, Y: 2, Width: 8, Height: 8}),
		deviceLayer(2, qb, bb, 0, arbor.RectI{Width: 8, Height: 8}),
	})
	if err := b.Repaint(o); err != nil {
		t.Fatalf("Repaint: %v", err)
	}

	planes := d.Planes()
	if len(planes) != 2 {
		t.Fatalf("len(planes) = %d, want 2", len(planes))
	}
	if planes[0].Z != 0 || planes[1].Z != 1 {
		t.Errorf("plane z = %d, %d, want 0, 1", planes[0].Z, planes[1].Z)
	}
	if got := planes[1].Dst; got != (arbor.RectI{X: 2, Y: 2, Width: 8, Height: 8}) {
		t.Errorf("top plane dst = %v, want {2 2 8 8}", got)
	}
	for _, p := range planes {
		if p.Client {
			t.Errorf("plane %d is client, want device", p.Layer)
		}
	}
	if d.Commits() != 1 {
		t.Errorf("Commits = %d, want 1", d.Commits())
	}
}

func TestRotatedLayerFallsBackToClient(t *testing.T) {
	d := New(16, 16)
	b := newBackend(t, d)
	o := b.Output(ScreenID, 16, 16)

	q, ab := filledBuffer(t, "rot", 4, 4)
	l := deviceLayer(7, q, ab, 3, arbor.RectI{Width: 4, Height: 4})
	l.Transform = arbor.TransformRotate90
	o.SetLayerInfo([]*arbor.LayerInfo{l})
	if err := b.Repaint(o); err != nil {
		t.Fatalf("Repaint: %v", err)
	}

	if l.CompositionType != arbor.CompositionClient {
		t.Errorf("CompositionType = %v, want client", l.CompositionType)
	}
	planes := d.Planes()
	if len(planes) != 1 || !planes[0].Client {
		t.Fatalf("planes = %+v, want one client plane", planes)
	}
	if planes[0].Z != 3 {
		t.Errorf("client plane z = %d, want 3", planes[0].Z)
	}
	if got := planes[0].Dst; got != (arbor.RectI{Width: 16, Height: 16}) {
		t.Errorf("client plane dst = %v, want full screen", got)
	}
}

func TestUpdateDeliversVBlank(t *testing.T) {
	d := New(8, 8)
	dev, err := arbor.NewDevice(d.Funcs())
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	vs := arbor.NewManualVSync()
	fired := 0
	vs.RequestNextVSync(func(int64) { fired++ })

	if err := d.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if fired != 0 {
		t.Fatalf("fired before Init = %d, want 0", fired)
	}

	if err := arbor.NewScreen(ScreenID, dev).Init(vs.OnVBlank); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := d.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
	// Nothing armed: the next vblank is dropped.
	_ = d.Update()
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
}

func TestPowerOffStopsVBlank(t *testing.T) {
	d := New(8, 8)
	f := d.Funcs()
	calls := 0
	f.RegScreenVBlankCallback(ScreenID, func(uint32, int64) { calls++ })
	f.SetScreenVsyncEnabled(ScreenID, true)
	if e := f.SetScreenPowerStatus(ScreenID, arbor.PowerStatusOff); e != arbor.DisplaySuccess {
		t.Fatalf("SetScreenPowerStatus = %v, want success", e)
	}
	_ = d.Update()
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestUnknownScreenAndLayer(t *testing.T) {
	d := New(8, 8)
	f := d.Funcs()
	if _, e := f.CreateLayer(5, arbor.LayerAlloc{Width: 1, Height: 1}); e != arbor.DisplayParamErr {
		t.Errorf("CreateLayer(5) = %v, want %v", e, arbor.DisplayParamErr)
	}
	if e := f.SetLayerZorder(ScreenID, 42, 1); e != arbor.DisplayParamErr {
		t.Errorf("SetLayerZorder(42) = %v, want %v", e, arbor.DisplayParamErr)
	}
	if e := f.SetScreenMode(ScreenID, 9); e != arbor.DisplayParamErr {
		t.Errorf("SetScreenMode(9) = %v, want %v", e, arbor.DisplayParamErr)
	}
	if e := f.SetScreenBacklight(ScreenID, 1000); e != arbor.DisplaySuccess {
		t.Fatalf("SetScreenBacklight = %v, want success", e)
	}
	if l, _ := f.GetScreenBacklight(ScreenID); l != 255 {
		t.Errorf("backlight = %d, want 255", l)
	}
}
