package ebitendevice

import (
	"cmp"
	"context"
	"slices"

	"github.com/phanxgames/arbor"
)

// clientLayer is the plane id of the client framebuffer.
const clientLayer uint32 = 0

// Funcs returns the device function table of d. Every entry is set.
func (d *Display) Funcs() *arbor.DeviceFuncs {
	return &arbor.DeviceFuncs{
		RegScreenVBlankCallback: d.regVBlank,
		SetScreenVsyncEnabled:   d.setVsyncEnabled,
		GetScreenCapability:     d.capability,
		GetScreenSupportedModes: d.supportedModes,
		GetScreenMode:           d.getMode,
		SetScreenMode:           d.setMode,
		GetScreenPowerStatus:    d.getPower,
		SetScreenPowerStatus:    d.setPower,
		GetScreenBacklight:      d.getBacklight,
		SetScreenBacklight:      d.setBacklight,

		PrepareScreenLayers:   d.prepare,
		GetScreenCompChange:   d.compChange,
		SetScreenClientBuffer: d.setClientBuffer,
		SetScreenClientDamage: d.setClientDamage,
		GetScreenReleaseFence: d.releaseFence,
		Commit:                d.commit,

		CreateLayer: d.createLayer,
		CloseLayer:  d.closeLayer,
		SetLayerAlpha: func(sid, id uint32, a arbor.LayerAlpha) arbor.DisplayError {
			return d.withLayer(sid, id, func(l *layer) { l.alpha = a })
		},
		SetLayerSize: func(sid, id uint32, r arbor.RectI) arbor.DisplayError {
			return d.withLayer(sid, id, func(l *layer) { l.dst = r })
		},
		SetTransformMode: func(sid, id uint32, t arbor.TransformType) arbor.DisplayError {
			return d.withLayer(sid, id, func(l *layer) { l.transform = t })
		},
		SetLayerVisibleRegion: func(sid, id uint32, _ []arbor.RectI) arbor.DisplayError {
			return d.withLayer(sid, id, func(*layer) {})
		},
		SetLayerDirtyRegion: func(sid, id uint32, _ arbor.RectI) arbor.DisplayError {
			return d.withLayer(sid, id, func(*layer) {})
		},
		SetLayerBuffer: func(sid, id uint32, b *arbor.Buffer, f *arbor.Fence) arbor.DisplayError {
			return d.withLayer(sid, id, func(l *layer) { l.buffer, l.fence = b, f })
		},
		SetLayerCompositionType: func(sid, id uint32, t arbor.CompositionType) arbor.DisplayError {
			return d.withLayer(sid, id, func(l *layer) { l.comp = t })
		},
		SetLayerBlendType: func(sid, id uint32, t arbor.BlendType) arbor.DisplayError {
			return d.withLayer(sid, id, func(l *layer) { l.blend = t })
		},
		SetLayerCrop: func(sid, id uint32, r arbor.RectI) arbor.DisplayError {
			return d.withLayer(sid, id, func(l *layer) { l.crop = r })
		},
		SetLayerZorder: func(sid, id uint32, z uint32) arbor.DisplayError {
			return d.withLayer(sid, id, func(l *layer) { l.z = z })
		},
		SetLayerPreMulti: func(sid, id uint32, _ bool) arbor.DisplayError {
			return d.withLayer(sid, id, func(*layer) {})
		},
		SetLayerColorDataSpace: func(sid, id uint32, _ arbor.ColorSpace) arbor.DisplayError {
			return d.withLayer(sid, id, func(*layer) {})
		},
		SetLayerMetaData: func(sid, id uint32, _ []arbor.HDRMetaData) arbor.DisplayError {
			return d.withLayer(sid, id, func(*layer) {})
		},

		GetSupportedPresentTimestamp: func(sid, id uint32) (arbor.PresentTimestampType, arbor.DisplayError) {
			if e := d.withLayer(sid, id, func(*layer) {}); e != arbor.DisplaySuccess {
				return arbor.PresentTimestampUnsupported, e
			}
			return arbor.PresentTimestampTimestamp, arbor.DisplaySuccess
		},
		GetPresentTimestamp: d.presentTimestamp,
	}
}

func (d *Display) regVBlank(sid uint32, cb arbor.VBlankCallback) arbor.DisplayError {
	if sid != ScreenID {
		return arbor.DisplayParamErr
	}
	if cb == nil {
		return arbor.DisplayNullPtr
	}
	d.mu.Lock()
	d.vblank = cb
	d.mu.Unlock()
	return arbor.DisplaySuccess
}

func (d *Display) setVsyncEnabled(sid uint32, on bool) arbor.DisplayError {
	if sid != ScreenID {
		return arbor.DisplayParamErr
	}
	d.mu.Lock()
	d.vsyncOn = on
	d.mu.Unlock()
	return arbor.DisplaySuccess
}

func (d *Display) capability(sid uint32) (arbor.ScreenCapability, arbor.DisplayError) {
	if sid != ScreenID {
		return arbor.ScreenCapability{}, arbor.DisplayParamErr
	}
	return arbor.ScreenCapability{
		Name:          "ebiten",
		PhyWidth:      uint32(d.width),
		PhyHeight:     uint32(d.height),
		SupportLayers: 16,
	}, arbor.DisplaySuccess
}

func (d *Display) supportedModes(sid uint32) ([]arbor.ScreenMode, arbor.DisplayError) {
	if sid != ScreenID {
		return nil, arbor.DisplayParamErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.modes), arbor.DisplaySuccess
}

func (d *Display) getMode(sid uint32) (uint32, arbor.DisplayError) {
	if sid != ScreenID {
		return 0, arbor.DisplayParamErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode, arbor.DisplaySuccess
}

func (d *Display) setMode(sid, mode uint32) arbor.DisplayError {
	if sid != ScreenID {
		return arbor.DisplayParamErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.modes {
		if m.ID == mode {
			d.mode = mode
			return arbor.DisplaySuccess
		}
	}
	return arbor.DisplayParamErr
}

func (d *Display) getPower(sid uint32) (arbor.PowerStatus, arbor.DisplayError) {
	if sid != ScreenID {
		return 0, arbor.DisplayParamErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.power, arbor.DisplaySuccess
}

func (d *Display) setPower(sid uint32, s arbor.PowerStatus) arbor.DisplayError {
	if sid != ScreenID {
		return arbor.DisplayParamErr
	}
	if s > arbor.PowerStatusOff {
		return arbor.DisplayParamErr
	}
	d.mu.Lock()
	d.power = s
	d.mu.Unlock()
	return arbor.DisplaySuccess
}

func (d *Display) getBacklight(sid uint32) (uint32, arbor.DisplayError) {
	if sid != ScreenID {
		return 0, arbor.DisplayParamErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.backlight, arbor.DisplaySuccess
}

func (d *Display) setBacklight(sid, level uint32) arbor.DisplayError {
	if sid != ScreenID {
		return arbor.DisplayParamErr
	}
	d.mu.Lock()
	d.backlight = min(level, 255)
	d.mu.Unlock()
	return arbor.DisplaySuccess
}

func (d *Display) createLayer(sid uint32, alloc arbor.LayerAlloc) (uint32, arbor.DisplayError) {
	if sid != ScreenID {
		return 0, arbor.DisplayParamErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextLayer
	d.nextLayer++
	d.layers[id] = &layer{alloc: alloc, comp: arbor.CompositionDevice}
	return id, arbor.DisplaySuccess
}

func (d *Display) closeLayer(sid, id uint32) arbor.DisplayError {
	if sid != ScreenID {
		return arbor.DisplayParamErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.layers[id]; !ok {
		return arbor.DisplayParamErr
	}
	delete(d.layers, id)
	return arbor.DisplaySuccess
}

func (d *Display) withLayer(sid, id uint32, fn func(*layer)) arbor.DisplayError {
	if sid != ScreenID {
		return arbor.DisplayParamErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.layers[id]
	if !ok {
		return arbor.DisplayParamErr
	}
	fn(l)
	return arbor.DisplaySuccess
}

// scanout reports whether the window can show l as its own plane: it
// cannot rotate or flip, and needs a buffer to read.
func scanout(l *layer) bool {
	return l.buffer != nil && l.transform == arbor.TransformNone && !l.dst.IsEmpty()
}

// prepare moves device layers the window cannot scan out to client
// composition and reports whether the client framebuffer is needed.
func (d *Display) prepare(sid uint32) (bool, arbor.DisplayError) {
	if sid != ScreenID {
		return false, arbor.DisplayParamErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changed = d.changed[:0]
	needFlush := false
	for _, id := range sortedIDs(d.layers) {
		l := d.layers[id]
		if l.comp == arbor.CompositionDevice && !scanout(l) {
			l.comp = arbor.CompositionClient
			d.changed = append(d.changed, id)
		}
		if l.comp == arbor.CompositionClient {
			needFlush = true
		}
	}
	return needFlush, arbor.DisplaySuccess
}

func (d *Display) compChange(sid uint32) ([]uint32, []arbor.CompositionType, arbor.DisplayError) {
	if sid != ScreenID {
		return nil, nil, arbor.DisplayParamErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := slices.Clone(d.changed)
	types := make([]arbor.CompositionType, len(ids))
	for i := range types {
		types[i] = arbor.CompositionClient
	}
	return ids, types, arbor.DisplaySuccess
}

func (d *Display) setClientBuffer(sid uint32, b *arbor.Buffer, f *arbor.Fence) arbor.DisplayError {
	if sid != ScreenID {
		return arbor.DisplayParamErr
	}
	if b == nil {
		return arbor.DisplayNullPtr
	}
	d.mu.Lock()
	d.client, d.clientFen = b, f
	d.mu.Unlock()
	return arbor.DisplaySuccess
}

func (d *Display) setClientDamage(sid uint32, damage []arbor.RectI) arbor.DisplayError {
	if sid != ScreenID {
		return arbor.DisplayParamErr
	}
	d.mu.Lock()
	d.damage = slices.Clone(damage)
	d.mu.Unlock()
	return arbor.DisplaySuccess
}

// releaseFence reports a signalled fence for every layer holding a buffer.
// Commit copies pixels out, so nothing is read after it returns.
func (d *Display) releaseFence(sid uint32) ([]uint32, []*arbor.Fence, arbor.DisplayError) {
	if sid != ScreenID {
		return nil, nil, arbor.DisplayParamErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fences := make([]*arbor.Fence, len(d.released))
	for i := range fences {
		fences[i] = arbor.SignaledFence()
	}
	return slices.Clone(d.released), fences, arbor.DisplaySuccess
}

// commit snapshots the device layers and the client framebuffer into
// planes for Draw. The client framebuffer sits at the z of the lowest
// client layer.
func (d *Display) commit(sid uint32) (*arbor.Fence, arbor.DisplayError) {
	if sid != ScreenID {
		return nil, arbor.DisplayParamErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	planes := make([]Plane, 0, len(d.layers)+1)
	released := make([]uint32, 0, len(d.layers))
	clientZ, hasClient := uint32(0), false
	for _, id := range sortedIDs(d.layers) {
		l := d.layers[id]
		if l.buffer != nil {
			released = append(released, id)
		}
		if l.comp == arbor.CompositionClient {
			if !hasClient || l.z < clientZ {
				clientZ = l.z
			}
			hasClient = true
			continue
		}
		if !scanout(l) {
			continue
		}
		if !waitFence(l.fence) {
			arbor.Logger().Warn("layer acquire fence timed out", "layer", id)
		}
		p, ok := d.plane(id, l.buffer, l.crop, l.dst, l.z, alphaOf(l.alpha))
		if ok {
			planes = append(planes, p)
		}
	}
	if hasClient && d.client != nil {
		if !waitFence(d.clientFen) {
			arbor.Logger().Warn("client buffer acquire fence timed out")
		}
		full := arbor.RectI{Width: d.width, Height: d.height}
		if p, ok := d.plane(clientLayer, d.client, full, full, clientZ, 1); ok {
			p.Client = true
			planes = append(planes, p)
		}
	}
	slices.SortStableFunc(planes, func(a, b Plane) int {
		return cmp.Or(cmp.Compare(a.Z, b.Z), boolRank(b.Client)-boolRank(a.Client))
	})
	d.planes = planes
	d.released = released
	d.commits++
	return arbor.SignaledFence(), arbor.DisplaySuccess
}

// plane copies b's pixels. src is clamped to the buffer.
func (d *Display) plane(id uint32, b *arbor.Buffer, src, dst arbor.RectI, z uint32, alpha float32) (Plane, bool) {
	img := b.Image()
	bounds := arbor.RectI{Width: b.Width(), Height: b.Height()}
	if src.IsEmpty() {
		src = bounds
	}
	src = src.Intersect(bounds)
	if src.IsEmpty() || dst.IsEmpty() {
		return Plane{}, false
	}
	return Plane{
		Layer: id,
		Z:     z,
		Src:   src,
		Dst:   dst,
		Alpha: alpha,
		pix:   slices.Clone(img.Pix),
		w:     bounds.Width,
		h:     bounds.Height,
		gen:   d.gen,
	}, true
}

func (d *Display) presentTimestamp(sid, id uint32) (arbor.PresentTimestamp, arbor.DisplayError) {
	if e := d.withLayer(sid, id, func(*layer) {}); e != arbor.DisplaySuccess {
		return arbor.PresentTimestamp{}, e
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return arbor.PresentTimestamp{Type: arbor.PresentTimestampTimestamp, Time: d.presented}, arbor.DisplaySuccess
}

func alphaOf(a arbor.LayerAlpha) float32 {
	if !a.EnGlobalAlpha {
		return 1
	}
	return float32(a.GlobalAlpha) / 255
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func waitFence(f *arbor.Fence) bool {
	if f == nil || f.Signaled() {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), fenceTimeout)
	defer cancel()
	return f.Wait(ctx) == nil
}

func sortedIDs(m map[uint32]*layer) []uint32 {
	ids := make([]uint32, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
