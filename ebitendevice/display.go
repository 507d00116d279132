// Package ebitendevice is a display device that shows committed layers in
// an ebiten window. The window is screen 0.
//
// Display implements both sides: Funcs returns the device function table
// the compositor commits through, and Display itself is the ebiten.Game
// that scans the last commit out every tick.
package ebitendevice

import (
	"context"
	"image"
	"image/color"
	"slices"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/phanxgames/arbor"
)

// ScreenID is the only screen a Display has.
const ScreenID uint32 = 0

// fenceTimeout bounds how long Commit waits for a producer's acquire fence.
const fenceTimeout = 100 * time.Millisecond

type layer struct {
	alloc     arbor.LayerAlloc
	alpha     arbor.LayerAlpha
	dst       arbor.RectI
	crop      arbor.RectI
	buffer    *arbor.Buffer
	fence     *arbor.Fence
	comp      arbor.CompositionType
	blend     arbor.BlendType
	transform arbor.TransformType
	z         uint32
}

// Plane is one layer of a commit as the window shows it.
type Plane struct {
	Layer uint32
	Z     uint32
	Src   arbor.RectI
	Dst   arbor.RectI
	Alpha float32
	// Client is set for the framebuffer the compositor drew client layers
	// into.
	Client bool

	pix  []byte
	w, h int
	gen  uint64
}

// Display is an ebiten-backed screen. The zero value is not usable; create
// one with New.
type Display struct {
	width, height int
	bg            color.RGBA

	mu        sync.Mutex
	modes     []arbor.ScreenMode
	mode      uint32
	power     arbor.PowerStatus
	backlight uint32
	vblank    arbor.VBlankCallback
	vsyncOn   bool
	seq       uint32

	layers    map[uint32]*layer
	nextLayer uint32
	changed   []uint32
	client    *arbor.Buffer
	clientFen *arbor.Fence
	damage    []arbor.RectI
	planes    []Plane
	released  []uint32
	gen       uint64
	presented int64
	commits   uint64

	done bool

	// images is only touched by Draw.
	images map[uint32]*planeImage
}

type planeImage struct {
	img  *ebiten.Image
	gen  uint64
	w, h int
}

// Option configures a Display.
type Option func(*Display)

// WithBackground sets the color shown where no layer covers the window.
func WithBackground(c color.Color) Option {
	return func(d *Display) {
		d.bg = color.RGBAModel.Convert(c).(color.RGBA)
	}
}

// WithRefreshRate sets the refresh rate the screen reports in its mode.
// The window itself ticks at ebiten's TPS.
func WithRefreshRate(hz uint32) Option {
	return func(d *Display) {
		d.modes[0].RefreshRate = hz
	}
}

// New returns a width x height display.
func New(width, height int, opts ...Option) *Display {
	d := &Display{
		width:     width,
		height:    height,
		bg:        color.RGBA{A: 0xff},
		modes:     []arbor.ScreenMode{{ID: 0, Width: width, Height: height, RefreshRate: 60}},
		backlight: 255,
		layers:    make(map[uint32]*layer),
		nextLayer: 1,
		images:    make(map[uint32]*planeImage),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Size returns the screen size in pixels.
func (d *Display) Size() (int, int) { return d.width, d.height }

// Planes returns the planes of the last commit in z order.
func (d *Display) Planes() []Plane {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.planes)
}

// Commits returns how many commits the display has accepted.
func (d *Display) Commits() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commits
}

// Run opens the window and shows commits until ctx is done or the window
// is closed.
func (d *Display) Run(ctx context.Context, title string) error {
	ebiten.SetWindowSize(d.width, d.height)
	ebiten.SetWindowTitle(title)
	stop := context.AfterFunc(ctx, func() {
		d.mu.Lock()
		d.done = true
		d.mu.Unlock()
	})
	defer stop()
	return ebiten.RunGame(d)
}

// Update delivers a vertical blank to the registered callback while vsync
// is enabled.
func (d *Display) Update() error {
	d.mu.Lock()
	if d.done {
		d.mu.Unlock()
		return ebiten.Termination
	}
	cb := d.vblank
	on := d.vsyncOn && d.power == arbor.PowerStatusOn
	d.seq++
	seq := d.seq
	d.mu.Unlock()
	if on && cb != nil {
		cb(seq, time.Now().UnixNano())
	}
	return nil
}

// Draw scans out the last commit.
func (d *Display) Draw(screen *ebiten.Image) {
	d.mu.Lock()
	planes := slices.Clone(d.planes)
	power := d.power
	bl := d.backlight
	d.presented = time.Now().UnixNano()
	d.mu.Unlock()

	screen.Fill(d.bg)
	if power != arbor.PowerStatusOn {
		return
	}
	live := make(map[uint32]bool, len(planes))
	for _, p := range planes {
		live[p.Layer] = true
		img := d.planeImage(p)
		src := img.SubImage(image.Rect(p.Src.X, p.Src.Y, p.Src.Right(), p.Src.Bottom())).(*ebiten.Image)
		op := &ebiten.DrawImageOptions{}
		op.GeoM.Scale(float64(p.Dst.Width)/float64(p.Src.Width), float64(p.Dst.Height)/float64(p.Src.Height))
		op.GeoM.Translate(float64(p.Dst.X), float64(p.Dst.Y))
		op.ColorScale.ScaleAlpha(p.Alpha)
		if bl < 255 {
			op.ColorScale.Scale(float32(bl)/255, float32(bl)/255, float32(bl)/255, 1)
		}
		op.Filter = ebiten.FilterLinear
		screen.DrawImage(src, op)
	}
	for id, pi := range d.images {
		if !live[id] {
			pi.img.Deallocate()
			delete(d.images, id)
		}
	}
}

func (d *Display) planeImage(p Plane) *ebiten.Image {
	pi, ok := d.images[p.Layer]
	if ok && (pi.w != p.w || pi.h != p.h) {
		pi.img.Deallocate()
		ok = false
	}
	if !ok {
		pi = &planeImage{img: ebiten.NewImage(p.w, p.h), w: p.w, h: p.h}
		d.images[p.Layer] = pi
	}
	if pi.gen != p.gen {
		pi.img.WritePixels(p.pix)
		pi.gen = p.gen
	}
	return pi.img
}

// Layout keeps the screen at its native size.
func (d *Display) Layout(_, _ int) (int, int) {
	return d.width, d.height
}
