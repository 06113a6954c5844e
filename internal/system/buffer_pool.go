package system

import (
	"image"
	"sync"
)

// ImagePool reuses *image.RGBA canvases to reduce GC pressure while the
// generator and refiner churn through frame buffers. It is constructed
// per run (or shared across runs by the caller) and passed in explicitly;
// there is no process-wide pool.
type ImagePool struct {
	pools map[string]*sync.Pool
	mu    sync.RWMutex
}

func NewImagePool() *ImagePool {
	return &ImagePool{pools: make(map[string]*sync.Pool)}
}

// Get returns a cleared *image.RGBA for rect, recycling a previous
// canvas of the same geometry when one is available.
func (p *ImagePool) Get(rect image.Rectangle) *image.RGBA {
	key := rect.String()
	p.mu.RLock()
	pool, exists := p.pools[key]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		// Double check
		pool, exists = p.pools[key]
		if !exists {
			pool = &sync.Pool{
				New: func() interface{} {
					return image.NewRGBA(rect)
				},
			}
			p.pools[key] = pool
		}
		p.mu.Unlock()
	}

	img := pool.Get().(*image.RGBA)
	clear(img.Pix)
	return img
}

// Put returns a canvas to the pool for reuse. The caller must not touch
// img afterwards.
func (p *ImagePool) Put(img *image.RGBA) {
	if img == nil {
		return
	}
	key := img.Rect.String()
	p.mu.RLock()
	pool, exists := p.pools[key]
	p.mu.RUnlock()

	if exists {
		pool.Put(img)
	}
}
