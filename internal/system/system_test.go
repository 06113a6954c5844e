package system

import (
	"image"
	"testing"
)

func TestImagePoolReturnsClearedCanvas(t *testing.T) {
	pool := NewImagePool()
	rect := image.Rect(0, 0, 32, 32)

	img := pool.Get(rect)
	if img.Bounds() != rect {
		t.Fatalf("bounds = %v, want %v", img.Bounds(), rect)
	}
	img.Pix[0] = 255
	pool.Put(img)

	again := pool.Get(rect)
	for i, v := range again.Pix {
		if v != 0 {
			t.Fatalf("recycled canvas not cleared at offset %d", i)
		}
	}
}

func TestImagePoolSeparatesGeometries(t *testing.T) {
	pool := NewImagePool()

	small := pool.Get(image.Rect(0, 0, 16, 16))
	large := pool.Get(image.Rect(0, 0, 64, 64))
	pool.Put(small)
	pool.Put(large)

	got := pool.Get(image.Rect(0, 0, 64, 64))
	if got.Bounds().Dx() != 64 {
		t.Fatalf("got %v canvas from the 64x64 pool", got.Bounds())
	}
}

func TestImagePoolPutNil(t *testing.T) {
	pool := NewImagePool()
	pool.Put(nil)
}

func TestRecommendedWorkersBounds(t *testing.T) {
	workers := RecommendedWorkers()
	if workers < 1 || workers > 8 {
		t.Fatalf("workers = %d, want within [1,8]", workers)
	}
	t.Logf("recommended workers: %d", workers)
}
