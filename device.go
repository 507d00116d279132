package arbor

import "sync"

// ColorSpace is the color data space of a layer's pixels.
type ColorSpace uint8

const (
	ColorSpaceUnknown ColorSpace = iota
	ColorSpaceSRGB
	ColorSpaceDisplayP3
	ColorSpaceBT2020
)

// HDRMetaData is one HDR metadata key/value pair attached to a layer.
type HDRMetaData struct {
	Key   uint32
	Value float32
}

// BlendType is how a layer blends with what is below it.
type BlendType uint8

const (
	BlendNone BlendType = iota
	BlendClear
	BlendSrc
	BlendSrcOver
	BlendDstOver
)

// CompositionType says who composes a layer: the display hardware directly
// (Device) or the render engine into the framebuffer (Client).
type CompositionType uint8

const (
	CompositionClient CompositionType = iota
	CompositionDevice
	CompositionCursor
	CompositionVideo
)

func (t CompositionType) String() string {
	switch t {
	case CompositionClient:
		return "client"
	case CompositionDevice:
		return "device"
	case CompositionCursor:
		return "cursor"
	case CompositionVideo:
		return "video"
	}
	return "unknown"
}

// TransformType is a layer rotation or flip applied by the display.
type TransformType uint8

const (
	TransformNone TransformType = iota
	TransformRotate90
	TransformRotate180
	TransformRotate270
	TransformFlipH
	TransformFlipV
)

// PresentTimestampType is the kind of present time a layer can report.
type PresentTimestampType uint8

const (
	PresentTimestampUnsupported PresentTimestampType = iota
	PresentTimestampDelay
	PresentTimestampTimestamp
)

// PresentTimestamp is the time the display showed a buffer.
type PresentTimestamp struct {
	Type PresentTimestampType
	Time int64
}

// LayerAlpha is per-layer alpha: a global alpha and whether pixel alpha is
// honored.
type LayerAlpha struct {
	EnGlobalAlpha bool
	EnPixelAlpha  bool
	GlobalAlpha   uint8
}

// LayerAlloc describes a layer to create on a screen.
type LayerAlloc struct {
	Width  int
	Height int
	Format PixelFormat
}

// ScreenCapability is what a screen reports about itself.
type ScreenCapability struct {
	Name             string
	PhyWidth         uint32
	PhyHeight        uint32
	SupportLayers    uint32
	VirtualDispCount uint32
	SupportWriteBack bool
}

// ScreenMode is one display mode a screen supports.
type ScreenMode struct {
	ID          uint32
	Width       int
	Height      int
	RefreshRate uint32
}

// PowerStatus is a screen power state.
type PowerStatus uint8

const (
	PowerStatusOn PowerStatus = iota
	PowerStatusStandby
	PowerStatusSuspend
	PowerStatusOff
)

// VBlankCallback is invoked by the device at every vertical blank of a
// screen, with a sequence number and a timestamp in nanoseconds.
type VBlankCallback func(sequence uint32, timestamp int64)

// DeviceFuncs is the function table of a display device. Implementations
// fill the functions they support; the Device wrapper turns a missing
// function into DisplayNullPtr.
type DeviceFuncs struct {
	RegScreenVBlankCallback func(screenID uint32, cb VBlankCallback) DisplayError
	SetScreenVsyncEnabled   func(screenID uint32, enabled bool) DisplayError
	GetScreenCapability     func(screenID uint32) (ScreenCapability, DisplayError)
	GetScreenSupportedModes func(screenID uint32) ([]ScreenMode, DisplayError)
	GetScreenMode           func(screenID uint32) (uint32, DisplayError)
	SetScreenMode           func(screenID, modeID uint32) DisplayError
	GetScreenPowerStatus    func(screenID uint32) (PowerStatus, DisplayError)
	SetScreenPowerStatus    func(screenID uint32, status PowerStatus) DisplayError
	GetScreenBacklight      func(screenID uint32) (uint32, DisplayError)
	SetScreenBacklight      func(screenID uint32, level uint32) DisplayError

	// PrepareScreenLayers validates the layers set on a screen and reports
	// whether the client framebuffer needs to be drawn.
	PrepareScreenLayers   func(screenID uint32) (needFlush bool, err DisplayError)
	GetScreenCompChange   func(screenID uint32) (layers []uint32, types []CompositionType, err DisplayError)
	SetScreenClientBuffer func(screenID uint32, b *Buffer, fence *Fence) DisplayError
	SetScreenClientDamage func(screenID uint32, damage []RectI) DisplayError
	GetScreenReleaseFence func(screenID uint32) (layers []uint32, fences []*Fence, err DisplayError)
	Commit                func(screenID uint32) (*Fence, DisplayError)

	CreateLayer             func(screenID uint32, alloc LayerAlloc) (uint32, DisplayError)
	CloseLayer              func(screenID, layerID uint32) DisplayError
	SetLayerAlpha           func(screenID, layerID uint32, alpha LayerAlpha) DisplayError
	SetLayerSize            func(screenID, layerID uint32, r RectI) DisplayError
	SetTransformMode        func(screenID, layerID uint32, t TransformType) DisplayError
	SetLayerVisibleRegion   func(screenID, layerID uint32, rects []RectI) DisplayError
	SetLayerDirtyRegion     func(screenID, layerID uint32, r RectI) DisplayError
	SetLayerBuffer          func(screenID, layerID uint32, b *Buffer, fence *Fence) DisplayError
	SetLayerCompositionType func(screenID, layerID uint32, t CompositionType) DisplayError
	SetLayerBlendType       func(screenID, layerID uint32, t BlendType) DisplayError
	SetLayerCrop            func(screenID, layerID uint32, r RectI) DisplayError
	SetLayerZorder          func(screenID, layerID uint32, z uint32) DisplayError
	SetLayerPreMulti        func(screenID, layerID uint32, preMulti bool) DisplayError
	SetLayerColorDataSpace  func(screenID, layerID uint32, cs ColorSpace) DisplayError
	SetLayerMetaData        func(screenID, layerID uint32, md []HDRMetaData) DisplayError

	GetSupportedPresentTimestamp func(screenID, layerID uint32) (PresentTimestampType, DisplayError)
	GetPresentTimestamp          func(screenID, layerID uint32) (PresentTimestamp, DisplayError)
}

// Device wraps a DeviceFuncs table. Every method returns DisplayNullPtr
// when the function it needs is missing; device errors are returned as
// DisplayError values and never retried here.
//
// Device is safe for concurrent use if the functions are.
type Device struct {
	funcs *DeviceFuncs
}

var (
	deviceMu      sync.Mutex
	deviceInitErr error
)

// NewDevice wraps funcs. A nil table is an unrecoverable initialization
// failure: it returns ErrDeviceNotInit, and every later NewDevice call in
// the process fails the same way so the hardware path stays off.
func NewDevice(funcs *DeviceFuncs) (*Device, error) {
	deviceMu.Lock()
	defer deviceMu.Unlock()
	if deviceInitErr != nil {
		return nil, deviceInitErr
	}
	if funcs == nil {
		deviceInitErr = ErrDeviceNotInit
		Logger().Error("display device initialization failed, hardware composition disabled")
		return nil, deviceInitErr
	}
	return &Device{funcs: funcs}, nil
}

// resetDeviceInit clears the sticky init failure. Tests only.
func resetDeviceInit() {
	deviceMu.Lock()
	deviceInitErr = nil
	deviceMu.Unlock()
}

func nullFunc(name string) error {
	Logger().Debug("can not find device func", "func", name)
	return DisplayNullPtr
}

func (d *Device) RegScreenVBlankCallback(screenID uint32, cb VBlankCallback) error {
	if d == nil || d.funcs.RegScreenVBlankCallback == nil {
		return nullFunc("RegScreenVBlankCallback")
	}
	return d.funcs.RegScreenVBlankCallback(screenID, cb).Err()
}

func (d *Device) SetScreenVsyncEnabled(screenID uint32, enabled bool) error {
	if d == nil || d.funcs.SetScreenVsyncEnabled == nil {
		return nullFunc("SetScreenVsyncEnabled")
	}
	return d.funcs.SetScreenVsyncEnabled(screenID, enabled).Err()
}

func (d *Device) GetScreenCapability(screenID uint32) (ScreenCapability, error) {
	if d == nil || d.funcs.GetScreenCapability == nil {
		return ScreenCapability{}, nullFunc("GetScreenCapability")
	}
	c, e := d.funcs.GetScreenCapability(screenID)
	return c, e.Err()
}

func (d *Device) GetScreenSupportedModes(screenID uint32) ([]ScreenMode, error) {
	if d == nil || d.funcs.GetScreenSupportedModes == nil {
		return nil, nullFunc("GetScreenSupportedModes")
	}
	m, e := d.funcs.GetScreenSupportedModes(screenID)
	return m, e.Err()
}

func (d *Device) GetScreenMode(screenID uint32) (uint32, error) {
	if d == nil || d.funcs.GetScreenMode == nil {
		return 0, nullFunc("GetScreenMode")
	}
	m, e := d.funcs.GetScreenMode(screenID)
	return m, e.Err()
}

func (d *Device) SetScreenMode(screenID, modeID uint32) error {
	if d == nil || d.funcs.SetScreenMode == nil {
		return nullFunc("SetScreenMode")
	}
	return d.funcs.SetScreenMode(screenID, modeID).Err()
}

func (d *Device) GetScreenPowerStatus(screenID uint32) (PowerStatus, error) {
	if d == nil || d.funcs.GetScreenPowerStatus == nil {
		return PowerStatusOff, nullFunc("GetScreenPowerStatus")
	}
	s, e := d.funcs.GetScreenPowerStatus(screenID)
	return s, e.Err()
}

func (d *Device) SetScreenPowerStatus(screenID uint32, status PowerStatus) error {
	if d == nil || d.funcs.SetScreenPowerStatus == nil {
		return nullFunc("SetScreenPowerStatus")
	}
	return d.funcs.SetScreenPowerStatus(screenID, status).Err()
}

func (d *Device) GetScreenBacklight(screenID uint32) (uint32, error) {
	if d == nil || d.funcs.GetScreenBacklight == nil {
		return 0, nullFunc("GetScreenBacklight")
	}
	l, e := d.funcs.GetScreenBacklight(screenID)
	return l, e.Err()
}

func (d *Device) SetScreenBacklight(screenID, level uint32) error {
	if d == nil || d.funcs.SetScreenBacklight == nil {
		return nullFunc("SetScreenBacklight")
	}
	return d.funcs.SetScreenBacklight(screenID, level).Err()
}

func (d *Device) PrepareScreenLayers(screenID uint32) (bool, error) {
	if d == nil || d.funcs.PrepareScreenLayers == nil {
		return false, nullFunc("PrepareScreenLayers")
	}
	need, e := d.funcs.PrepareScreenLayers(screenID)
	return need, e.Err()
}

func (d *Device) GetScreenCompChange(screenID uint32) ([]uint32, []CompositionType, error) {
	if d == nil || d.funcs.GetScreenCompChange == nil {
		return nil, nil, nullFunc("GetScreenCompChange")
	}
	layers, types, e := d.funcs.GetScreenCompChange(screenID)
	if e == DisplaySuccess && len(layers) != len(types) {
		return nil, nil, DisplayFailure
	}
	return layers, types, e.Err()
}

func (d *Device) SetScreenClientBuffer(screenID uint32, b *Buffer, fence *Fence) error {
	if d == nil || d.funcs.SetScreenClientBuffer == nil {
		return nullFunc("SetScreenClientBuffer")
	}
	if b == nil {
		return DisplayNullPtr
	}
	return d.funcs.SetScreenClientBuffer(screenID, b, fence).Err()
}

func (d *Device) SetScreenClientDamage(screenID uint32, damage []RectI) error {
	if d == nil || d.funcs.SetScreenClientDamage == nil {
		return nullFunc("SetScreenClientDamage")
	}
	return d.funcs.SetScreenClientDamage(screenID, damage).Err()
}

func (d *Device) GetScreenReleaseFence(screenID uint32) ([]uint32, []*Fence, error) {
	if d == nil || d.funcs.GetScreenReleaseFence == nil {
		return nil, nil, nullFunc("GetScreenReleaseFence")
	}
	layers, fences, e := d.funcs.GetScreenReleaseFence(screenID)
	if e == DisplaySuccess && len(layers) != len(fences) {
		return nil, nil, DisplayFailure
	}
	return layers, fences, e.Err()
}

// Commit presents the screen's layers and returns the fence signalled when
// the frame is on screen.
func (d *Device) Commit(screenID uint32) (*Fence, error) {
	if d == nil || d.funcs.Commit == nil {
		return nil, nullFunc("Commit")
	}
	f, e := d.funcs.Commit(screenID)
	if f == nil {
		f = SignaledFence()
	}
	return f, e.Err()
}

func (d *Device) CreateLayer(screenID uint32, alloc LayerAlloc) (uint32, error) {
	if d == nil || d.funcs.CreateLayer == nil {
		return 0, nullFunc("CreateLayer")
	}
	id, e := d.funcs.CreateLayer(screenID, alloc)
	return id, e.Err()
}

func (d *Device) CloseLayer(screenID, layerID uint32) error {
	if d == nil || d.funcs.CloseLayer == nil {
		return nullFunc("CloseLayer")
	}
	return d.funcs.CloseLayer(screenID, layerID).Err()
}

func (d *Device) SetLayerAlpha(screenID, layerID uint32, alpha LayerAlpha) error {
	if d == nil || d.funcs.SetLayerAlpha == nil {
		return nullFunc("SetLayerAlpha")
	}
	return d.funcs.SetLayerAlpha(screenID, layerID, alpha).Err()
}

func (d *Device) SetLayerSize(screenID, layerID uint32, r RectI) error {
	if d == nil || d.funcs.SetLayerSize == nil {
		return nullFunc("SetLayerSize")
	}
	return d.funcs.SetLayerSize(screenID, layerID, r).Err()
}

func (d *Device) SetTransformMode(screenID, layerID uint32, t TransformType) error {
	if d == nil || d.funcs.SetTransformMode == nil {
		return nullFunc("SetTransformMode")
	}
	return d.funcs.SetTransformMode(screenID, layerID, t).Err()
}

func (d *Device) SetLayerVisibleRegion(screenID, layerID uint32, rects []RectI) error {
	if d == nil || d.funcs.SetLayerVisibleRegion == nil {
		return nullFunc("SetLayerVisibleRegion")
	}
	return d.funcs.SetLayerVisibleRegion(screenID, layerID, rects).Err()
}

func (d *Device) SetLayerDirtyRegion(screenID, layerID uint32, r RectI) error {
	if d == nil || d.funcs.SetLayerDirtyRegion == nil {
		return nullFunc("SetLayerDirtyRegion")
	}
	return d.funcs.SetLayerDirtyRegion(screenID, layerID, r).Err()
}

func (d *Device) SetLayerBuffer(screenID, layerID uint32, b *Buffer, fence *Fence) error {
	if d == nil || d.funcs.SetLayerBuffer == nil {
		return nullFunc("SetLayerBuffer")
	}
	if b == nil {
		return DisplayNullPtr
	}
	return d.funcs.SetLayerBuffer(screenID, layerID, b, fence).Err()
}

func (d *Device) SetLayerCompositionType(screenID, layerID uint32, t CompositionType) error {
	if d == nil || d.funcs.SetLayerCompositionType == nil {
		return nullFunc("SetLayerCompositionType")
	}
	return d.funcs.SetLayerCompositionType(screenID, layerID, t).Err()
}

func (d *Device) SetLayerBlendType(screenID, layerID uint32, t BlendType) error {
	if d == nil || d.funcs.SetLayerBlendType == nil {
		return nullFunc("SetLayerBlendType")
	}
	return d.funcs.SetLayerBlendType(screenID, layerID, t).Err()
}

func (d *Device) SetLayerCrop(screenID, layerID uint32, r RectI) error {
	if d == nil || d.funcs.SetLayerCrop == nil {
		return nullFunc("SetLayerCrop")
	}
	return d.funcs.SetLayerCrop(screenID, layerID, r).Err()
}

func (d *Device) SetLayerZorder(screenID, layerID, z uint32) error {
	if d == nil || d.funcs.SetLayerZorder == nil {
		return nullFunc("SetLayerZorder")
	}
	return d.funcs.SetLayerZorder(screenID, layerID, z).Err()
}

func (d *Device) SetLayerPreMulti(screenID, layerID uint32, preMulti bool) error {
	if d == nil || d.funcs.SetLayerPreMulti == nil {
		return nullFunc("SetLayerPreMulti")
	}
	return d.funcs.SetLayerPreMulti(screenID, layerID, preMulti).Err()
}

func (d *Device) SetLayerColorDataSpace(screenID, layerID uint32, cs ColorSpace) error {
	if d == nil || d.funcs.SetLayerColorDataSpace == nil {
		return nullFunc("SetLayerColorDataSpace")
	}
	return d.funcs.SetLayerColorDataSpace(screenID, layerID, cs).Err()
}

func (d *Device) SetLayerMetaData(screenID, layerID uint32, md []HDRMetaData) error {
	if d == nil || d.funcs.SetLayerMetaData == nil {
		return nullFunc("SetLayerMetaData")
	}
	return d.funcs.SetLayerMetaData(screenID, layerID, md).Err()
}

func (d *Device) GetSupportedPresentTimestamp(screenID, layerID uint32) (PresentTimestampType, error) {
	if d == nil || d.funcs.GetSupportedPresentTimestamp == nil {
		return PresentTimestampUnsupported, nullFunc("GetSupportedPresentTimestamp")
	}
	t, e := d.funcs.GetSupportedPresentTimestamp(screenID, layerID)
	return t, e.Err()
}

func (d *Device) GetPresentTimestamp(screenID, layerID uint32) (PresentTimestamp, error) {
	if d == nil || d.funcs.GetPresentTimestamp == nil {
		return PresentTimestamp{}, nullFunc("GetPresentTimestamp")
	}
	ts, e := d.funcs.GetPresentTimestamp(screenID, layerID)
	return ts, e.Err()
}

// Screen is one screen of a Device.
type Screen struct {
	id     uint32
	device *Device
}

// NewScreen returns screen id of device. A nil device is allowed; every
// query then returns DisplayNullPtr.
func NewScreen(id uint32, device *Device) *Screen {
	return &Screen{id: id, device: device}
}

// ID returns the screen id.
func (s *Screen) ID() uint32 { return s.id }

// Init registers onVBlank for the screen's vertical blanks and turns vsync
// on.
func (s *Screen) Init(onVBlank VBlankCallback) error {
	if s.device == nil {
		return DisplayNullPtr
	}
	if err := s.device.RegScreenVBlankCallback(s.id, onVBlank); err != nil {
		Logger().Error("register vblank callback", "screen", s.id, "err", err)
		return err
	}
	if err := s.device.SetScreenVsyncEnabled(s.id, true); err != nil {
		Logger().Error("enable screen vsync", "screen", s.id, "err", err)
		return err
	}
	Logger().Info("screen initialized", "screen", s.id)
	return nil
}

// Capability queries the screen's capability.
func (s *Screen) Capability() (ScreenCapability, error) {
	if s.device == nil {
		return ScreenCapability{}, DisplayNullPtr
	}
	return s.device.GetScreenCapability(s.id)
}

// SupportedModes lists the modes the screen supports.
func (s *Screen) SupportedModes() ([]ScreenMode, error) {
	if s.device == nil {
		return nil, DisplayNullPtr
	}
	return s.device.GetScreenSupportedModes(s.id)
}

// ActiveMode returns the mode the screen is in.
func (s *Screen) ActiveMode() (ScreenMode, error) {
	if s.device == nil {
		return ScreenMode{}, DisplayNullPtr
	}
	id, err := s.device.GetScreenMode(s.id)
	if err != nil {
		return ScreenMode{}, err
	}
	modes, err := s.device.GetScreenSupportedModes(s.id)
	if err != nil {
		return ScreenMode{}, err
	}
	for _, m := range modes {
		if m.ID == id {
			return m, nil
		}
	}
	return ScreenMode{}, DisplayParamErr
}

// SetMode switches the screen to modeID.
func (s *Screen) SetMode(modeID uint32) error {
	if s.device == nil {
		return DisplayNullPtr
	}
	return s.device.SetScreenMode(s.id, modeID)
}

// PowerStatus returns the screen's power state.
func (s *Screen) PowerStatus() (PowerStatus, error) {
	if s.device == nil {
		return PowerStatusOff, DisplayNullPtr
	}
	return s.device.GetScreenPowerStatus(s.id)
}

// SetPowerStatus changes the screen's power state.
func (s *Screen) SetPowerStatus(status PowerStatus) error {
	if s.device == nil {
		return DisplayNullPtr
	}
	return s.device.SetScreenPowerStatus(s.id, status)
}

// Backlight returns the backlight level.
func (s *Screen) Backlight() (uint32, error) {
	if s.device == nil {
		return 0, DisplayNullPtr
	}
	return s.device.GetScreenBacklight(s.id)
}

// SetBacklight changes the backlight level.
func (s *Screen) SetBacklight(level uint32) error {
	if s.device == nil {
		return DisplayNullPtr
	}
	return s.device.SetScreenBacklight(s.id, level)
}
