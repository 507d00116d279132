package arbor

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

// fakeDevice is a device table that accepts everything and records the
// calls tests care about.
type fakeDevice struct {
	nextLayer    uint32
	closed       []uint32
	clientBufs   int
	commits      int
	compChange   map[uint32]CompositionType
	releaseFence *Fence
}

func (f *fakeDevice) funcs() *DeviceFuncs {
	ok := DisplaySuccess
	return &DeviceFuncs{
		RegScreenVBlankCallback: func(uint32, VBlankCallback) DisplayError { return ok },
		SetScreenVsyncEnabled:   func(uint32, bool) DisplayError { return ok },
		GetScreenSupportedModes: func(uint32) ([]ScreenMode, DisplayError) {
			return []ScreenMode{{ID: 0, Width: 64, Height: 64, RefreshRate: 60}, {ID: 1, Width: 32, Height: 32, RefreshRate: 120}}, ok
		},
		GetScreenMode:       func(uint32) (uint32, DisplayError) { return 1, ok },
		PrepareScreenLayers: func(uint32) (bool, DisplayError) { return false, ok },
		GetScreenCompChange: func(uint32) ([]uint32, []CompositionType, DisplayError) {
			var ids []uint32
			var types []CompositionType
			for id, t := range f.compChange {
				ids = append(ids, id)
				types = append(types, t)
			}
			return ids, types, ok
		},
		SetScreenClientBuffer: func(uint32, *Buffer, *Fence) DisplayError {
			f.clientBufs++
			return ok
		},
		GetScreenReleaseFence: func(uint32) ([]uint32, []*Fence, DisplayError) {
			if f.releaseFence == nil {
				return nil, nil, ok
			}
			return []uint32{1}, []*Fence{f.releaseFence}, ok
		},
		Commit: func(uint32) (*Fence, DisplayError) {
			f.commits++
			return SignaledFence(), ok
		},
		CreateLayer: func(uint32, LayerAlloc) (uint32, DisplayError) {
			f.nextLayer++
			return f.nextLayer, ok
		},
		CloseLayer: func(_, id uint32) DisplayError {
			f.closed = append(f.closed, id)
			return ok
		},
		SetLayerAlpha:           func(uint32, uint32, LayerAlpha) DisplayError { return ok },
		SetLayerSize:            func(uint32, uint32, RectI) DisplayError { return ok },
		SetTransformMode:        func(uint32, uint32, TransformType) DisplayError { return ok },
		SetLayerVisibleRegion:   func(uint32, uint32, []RectI) DisplayError { return ok },
		SetLayerDirtyRegion:     func(uint32, uint32, RectI) DisplayError { return ok },
		SetLayerBuffer:          func(uint32, uint32, *Buffer, *Fence) DisplayError { return ok },
		SetLayerCompositionType: func(uint32, uint32, CompositionType) DisplayError { return ok },
		SetLayerBlendType:       func(uint32, uint32, BlendType) DisplayError { return ok },
		SetLayerCrop:            func(uint32, uint32, RectI) DisplayError { return ok },
		SetLayerZorder:          func(uint32, uint32, uint32) DisplayError { return ok },
		SetLayerPreMulti:        func(uint32, uint32, bool) DisplayError { return ok },
		SetLayerColorDataSpace:  func(uint32, uint32, ColorSpace) DisplayError { return ok },
	}
}

func newFakeBackend(t *testing.T, f *fakeDevice) *HdiBackend {
	t.Helper()
	dev, err := NewDevice(f.funcs())
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	return NewHdiBackend(dev, nil)
}

func testLayer(t *testing.T, node uint32, z uint32) (*LayerInfo, *BufferQueue) {
	t.Helper()
	q := NewBufferQueue("layer", 4, 4, 3)
	flushAt(t, q, 0)
	ab, err := q.AcquireBuffer()
	if err != nil {
		t.Fatalf("AcquireBuffer: %v", err)
	}
	dst := RectI{0, 0, 4, 4}
	return &LayerInfo{
		Node:            MakeNodeID(1, node),
		Consumer:        q,
		Buffer:          ab.Buffer,
		AcquireFence:    ab.Fence,
		ZOrder:          z,
		Alpha:           layerAlpha(1),
		SrcRect:         dst,
		DstRect:         dst,
		VisibleRegion:   []RectI{dst},
		CompositionType: CompositionDevice,
		Matrix:          IdentityMatrix,
		Bounds:          dst.ToRect(),
		Opacity:         1,
	}, q
}

// --- Device wrapper ---

func TestNewDeviceNilIsSticky(t *testing.T) {
	t.Cleanup(resetDeviceInit)
	if _, err := NewDevice(nil); !errors.Is(err, ErrDeviceNotInit) {
		t.Fatalf("NewDevice(nil) err = %v, want ErrDeviceNotInit", err)
	}
	if _, err := NewDevice(&DeviceFuncs{}); !errors.Is(err, ErrDeviceNotInit) {
		t.Errorf("NewDevice after failure err = %v, want ErrDeviceNotInit", err)
	}
}

func TestDeviceMissingFunc(t *testing.T) {
	d, err := NewDevice(&DeviceFuncs{})
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	if _, err := d.Commit(0); !errors.Is(err, DisplayNullPtr) {
		t.Errorf("Commit err = %v, want DisplayNullPtr", err)
	}
	if err := d.SetLayerZorder(0, 1, 2); !errors.Is(err, DisplayNullPtr) {
		t.Errorf("SetLayerZorder err = %v, want DisplayNullPtr", err)
	}
}

func TestDeviceErrorNotRetried(t *testing.T) {
	calls := 0
	d, _ := NewDevice(&DeviceFuncs{
		SetScreenMode: func(uint32, uint32) DisplayError {
			calls++
			return DisplaySysBusy
		},
	})
	err := d.SetScreenMode(0, 1)
	if !errors.Is(err, DisplaySysBusy) {
		t.Errorf("err = %v, want DisplaySysBusy", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if got := DisplaySysBusy.Error(); got != "display: system busy (-7)" {
		t.Errorf("Error = %q", got)
	}
}

func TestScreenActiveMode(t *testing.T) {
	f := &fakeDevice{}
	dev, _ := NewDevice(f.funcs())
	m, err := NewScreen(0, dev).ActiveMode()
	if err != nil {
		t.Fatalf("ActiveMode: %v", err)
	}
	if m.ID != 1 || m.RefreshRate != 120 {
		t.Errorf("ActiveMode = %+v, want mode 1 at 120 Hz", m)
	}

	if _, err := NewScreen(0, nil).Backlight(); !errors.Is(err, DisplayNullPtr) {
		t.Errorf("Backlight on nil device err = %v, want DisplayNullPtr", err)
	}
}

// --- Backend ---

func TestRepaintClosesVanishedLayers(t *testing.T) {
	f := &fakeDevice{}
	b := newFakeBackend(t, f)
	o := b.Output(0, 16, 16)

	la, _ := testLayer(t, 1, 0)
	lb, _ := testLayer(t, 2, 1)
	o.SetLayerInfo([]*LayerInfo{la, lb})
	if err := b.Repaint(o); err != nil {
		t.Fatalf("Repaint: %v", err)
	}
	idA, _ := o.LayerID(la.Node)

	o.SetLayerInfo([]*LayerInfo{lb})
	if err := b.Repaint(o); err != nil {
		t.Fatalf("Repaint: %v", err)
	}
	if !slices.Equal(f.closed, []uint32{idA}) {
		t.Errorf("closed = %v, want [%d]", f.closed, idA)
	}
	if _, ok := o.LayerID(la.Node); ok {
		t.Error("vanished layer still has an id")
	}
	if f.commits != 2 {
		t.Errorf("commits = %d, want 2", f.commits)
	}
	if f.clientBufs != 0 {
		t.Errorf("client buffers = %d, want 0", f.clientBufs)
	}
}

func TestRepaintClientCompositionFlushesFramebuffer(t *testing.T) {
	f := &fakeDevice{compChange: map[uint32]CompositionType{1: CompositionClient}}
	b := newFakeBackend(t, f)
	o := b.Output(0, 16, 16)

	l, _ := testLayer(t, 1, 0)
	o.SetLayerInfo([]*LayerInfo{l})
	if err := b.Repaint(o); err != nil {
		t.Fatalf("Repaint: %v", err)
	}
	if l.CompositionType != CompositionClient {
		t.Errorf("CompositionType = %v, want client", l.CompositionType)
	}
	if len(o.ClientLayers()) != 1 {
		t.Errorf("ClientLayers = %d, want 1", len(o.ClientLayers()))
	}
	if f.clientBufs != 1 {
		t.Errorf("client buffers = %d, want 1", f.clientBufs)
	}
}

// --- Hardware thread ---

func TestHardwareThreadReleasesPreBuffer(t *testing.T) {
	f := &fakeDevice{}
	committed := make(chan struct{}, 1)
	hw := NewHardwareThread(newFakeBackend(t, f), WithCommitHook(func(uint32, *Fence) {
		committed <- struct{}{}
	}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hw.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	l, q := testLayer(t, 1, 0)
	pre, _, err := q.RequestBuffer()
	if err != nil {
		t.Fatalf("RequestBuffer: %v", err)
	}
	l.PreBuffer = pre
	hw.CommitAndReleaseLayers(hw.Output(0, 16, 16), []*LayerInfo{l})

	select {
	case <-committed:
	case <-time.After(2 * time.Second):
		t.Fatal("commit hook not called")
	}
	if l.PreBuffer != nil {
		t.Error("PreBuffer still set after commit")
	}
	got, _, err := q.RequestBuffer()
	if err != nil || got != pre {
		t.Errorf("RequestBuffer = %v, %v, want the released pre-buffer", got, err)
	}
}

func TestHardwareThreadStoppedReleasesImmediately(t *testing.T) {
	hw := NewHardwareThread(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := hw.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	l, q := testLayer(t, 1, 0)
	pre, _, _ := q.RequestBuffer()
	l.PreBuffer = pre
	hw.CommitAndReleaseLayers(nil, []*LayerInfo{l})
	if got, _, err := q.RequestBuffer(); err != nil || got != pre {
		t.Errorf("RequestBuffer = %v, %v, want the released pre-buffer", got, err)
	}
	if err := hw.PostTask(func() {}); !errors.Is(err, ErrStopped) {
		t.Errorf("PostTask err = %v, want ErrStopped", err)
	}
}
