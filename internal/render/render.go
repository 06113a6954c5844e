package render

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
	"honnef.co/go/curve"

	"github.com/ivlev/inbetween/internal/extract"
	"github.com/ivlev/inbetween/internal/system"
)

// Canvas returns the frame rectangle covering both keyframes: the
// larger of the two along each axis, anchored at the origin.
func Canvas(a, b image.Rectangle) image.Rectangle {
	w := a.Dx()
	if b.Dx() > w {
		w = b.Dx()
	}
	h := a.Dy()
	if b.Dy() > h {
		h = b.Dy()
	}
	return image.Rect(0, 0, w, h)
}

// Fit rescales img to the canvas rectangle. Images already at the
// canvas size are returned unchanged.
func Fit(img *image.RGBA, canvas image.Rectangle) *image.RGBA {
	if img.Bounds().Dx() == canvas.Dx() && img.Bounds().Dy() == canvas.Dy() {
		return img
	}
	dst := image.NewRGBA(canvas)
	xdraw.CatmullRom.Scale(dst, canvas, img, img.Bounds(), xdraw.Over, nil)
	return dst
}

// Synthesize renders one intermediate frame: the start object's
// silhouette, filled with the color lerped between the two objects,
// placed at the lerped centroid (or at pos when the plan supplies an
// arc position). Both objects must have been extracted from keyframes
// already fitted to the canvas.
//
// At t=0 the silhouette sits exactly on the start centroid and carries
// the start color; at t=1, the end centroid and color.
func Synthesize(start, end *extract.Object, canvas image.Rectangle, t float64, pos *curve.Point, pool *system.ImagePool) *image.RGBA {
	w, h := canvas.Dx(), canvas.Dy()

	target := start.Centroid.Lerp(end.Centroid, t)
	if pos != nil {
		target = *pos
	}

	offX := int(math.Round(target.X*float64(w) - start.Centroid.X*float64(w)))
	offY := int(math.Round(target.Y*float64(h) - start.Centroid.Y*float64(h)))

	r := lerpChannel(start.Color.R, end.Color.R, t)
	g := lerpChannel(start.Color.G, end.Color.G, t)
	b := lerpChannel(start.Color.B, end.Color.B, t)

	frame := pool.Get(canvas)
	stride := start.Stride
	for i, on := range start.Mask {
		if !on {
			continue
		}
		x := i%stride + offX
		y := i/stride + offY
		if x < 0 || x >= w || y < 0 || y >= h {
			continue
		}
		off := frame.PixOffset(x, y)
		frame.Pix[off] = r
		frame.Pix[off+1] = g
		frame.Pix[off+2] = b
		frame.Pix[off+3] = 255
	}

	return frame
}

func lerpChannel(a, b uint8, t float64) uint8 {
	v := (1-t)*float64(a) + t*float64(b)
	return uint8(math.Round(math.Min(255, math.Max(0, v))))
}
