package arbor

import (
	"image"
	"math"
	"sync"
)

// --- Render target pool ---

// renderTargetPool manages reusable RGBA images keyed by power-of-two
// dimensions. Buffer queues and render engine frames draw from it so steady
// state frames allocate nothing. Safe for concurrent use; the loop and the
// hardware goroutine both acquire targets.
type renderTargetPool struct {
	mu      sync.Mutex
	buckets map[uint64][]*image.RGBA
}

// poolKey packs power-of-two width and height into a single uint64.
func poolKey(w, h int) uint64 {
	return uint64(w)<<32 | uint64(h)
}

// Acquire returns a cleared image of exactly (w, h) pixels whose backing
// store has power-of-two dimensions.
func (p *renderTargetPool) Acquire(w, h int) *image.RGBA {
	pw := nextPowerOfTwo(w)
	ph := nextPowerOfTwo(h)
	key := poolKey(pw, ph)

	p.mu.Lock()
	if p.buckets != nil {
		if stack := p.buckets[key]; len(stack) > 0 {
			img := stack[len(stack)-1]
			p.buckets[key] = stack[:len(stack)-1]
			p.mu.Unlock()
			img = img.SubImage(image.Rect(0, 0, w, h)).(*image.RGBA)
			clearRGBA(img)
			return img
		}
	}
	p.mu.Unlock()

	full := image.NewRGBA(image.Rect(0, 0, pw, ph))
	return full.SubImage(image.Rect(0, 0, w, h)).(*image.RGBA)
}

// Release returns an image to the pool. The image is cleared on the next
// Acquire, not here.
func (p *renderTargetPool) Release(img *image.RGBA) {
	if img == nil {
		return
	}
	// Recover the full power-of-two backing image.
	pw := img.Stride / 4
	ph := len(img.Pix) / img.Stride
	if pw != nextPowerOfTwo(pw) || ph != nextPowerOfTwo(ph) {
		return
	}
	full := &image.RGBA{Pix: img.Pix[:pw*ph*4], Stride: img.Stride, Rect: image.Rect(0, 0, pw, ph)}
	key := poolKey(pw, ph)

	p.mu.Lock()
	if p.buckets == nil {
		p.buckets = make(map[uint64][]*image.RGBA)
	}
	p.buckets[key] = append(p.buckets[key], full)
	p.mu.Unlock()
}

// clearRGBA zeroes the visible rows of img.
func clearRGBA(img *image.RGBA) {
	w := img.Rect.Dx() * 4
	for y := 0; y < img.Rect.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		clear(row)
	}
}

// nextPowerOfTwo returns the smallest power of two >= n (minimum 1).
func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << int(math.Ceil(math.Log2(float64(n))))
}
