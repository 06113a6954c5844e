package extract

import (
	"errors"
	"image"
	"image/color"

	"honnef.co/go/curve"
)

// ErrNoObject is returned when no connected component clears the minimum
// area fraction. Interpolation is meaningless without a tracked object,
// so callers must treat this as fatal for the job.
var ErrNoObject = errors.New("no foreground object found")

// minAreaFrac is the smallest component size, as a fraction of the image
// area, still considered a trackable object.
const minAreaFrac = 0.005

// alphaThreshold separates foreground from transparent background.
const alphaThreshold = 10

// Object is the dominant foreground object of one keyframe. Produced
// fresh per Extract call and never mutated afterwards.
type Object struct {
	// Centroid is area-weighted and normalized to [0,1]x[0,1].
	Centroid curve.Point
	// Color is the mean color over the object's pixels, full alpha.
	Color color.NRGBA
	// Mask marks object pixels in row-major order, Stride per row.
	Mask   []bool
	Stride int
	// Contour lists the object's border pixels in image coordinates.
	Contour []image.Point
	Bounds  image.Rectangle
	// Area is the component's pixel count.
	Area int
}

// Extract reduces an RGBA keyframe to its single dominant foreground
// object: alpha-thresholded mask minus near-white background, cleaned by
// a morphological close and open, then the largest 4-connected component.
func Extract(img *image.RGBA) (*Object, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, ErrNoObject
	}

	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			r, g, b, a := img.Pix[off], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3]
			if a <= alphaThreshold {
				continue
			}
			// Near-white pixels count as paper, not object.
			if r > 240 && g > 240 && b > 240 {
				continue
			}
			mask[y*w+x] = true
		}
	}

	// Close fills pinholes, open drops speckle noise.
	mask = dilateMask(mask, w, h)
	mask = erodeMask(mask, w, h)
	mask = erodeMask(mask, w, h)
	mask = dilateMask(mask, w, h)

	comp, area := largestComponent(mask, w, h)
	if float64(area) < minAreaFrac*float64(w*h) {
		return nil, ErrNoObject
	}

	obj := &Object{
		Mask:   comp,
		Stride: w,
		Area:   area,
	}

	var sumX, sumY int64
	var sumR, sumG, sumB int64
	minX, minY, maxX, maxY := w, h, -1, -1
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !comp[y*w+x] {
				continue
			}
			sumX += int64(x)
			sumY += int64(y)
			off := img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			sumR += int64(img.Pix[off])
			sumG += int64(img.Pix[off+1])
			sumB += int64(img.Pix[off+2])
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
			if isBorder(comp, w, h, x, y) {
				obj.Contour = append(obj.Contour, image.Point{X: x, Y: y})
			}
		}
	}

	n := int64(area)
	obj.Centroid = curve.Pt(
		(float64(sumX)/float64(n))/float64(w),
		(float64(sumY)/float64(n))/float64(h),
	)
	obj.Color = color.NRGBA{
		R: uint8(sumR / n),
		G: uint8(sumG / n),
		B: uint8(sumB / n),
		A: 255,
	}
	obj.Bounds = image.Rect(minX, minY, maxX+1, maxY+1)

	return obj, nil
}

// PixelCentroid returns the centroid in pixel coordinates of the given
// canvas size.
func (o *Object) PixelCentroid(w, h int) curve.Point {
	return curve.Pt(o.Centroid.X*float64(w), o.Centroid.Y*float64(h))
}

func isBorder(mask []bool, w, h, x, y int) bool {
	if x == 0 || x == w-1 || y == 0 || y == h-1 {
		return true
	}
	return !mask[y*w+x-1] || !mask[y*w+x+1] || !mask[(y-1)*w+x] || !mask[(y+1)*w+x]
}

func dilateMask(mask []bool, w, h int) []bool {
	out := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mask[y*w+x] {
				out[y*w+x] = true
				continue
			}
			for ky := -1; ky <= 1 && !out[y*w+x]; ky++ {
				for kx := -1; kx <= 1; kx++ {
					nx, ny := x+kx, y+ky
					if nx >= 0 && nx < w && ny >= 0 && ny < h && mask[ny*w+nx] {
						out[y*w+x] = true
						break
					}
				}
			}
		}
	}
	return out
}

func erodeMask(mask []bool, w, h int) []bool {
	out := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !mask[y*w+x] {
				continue
			}
			keep := true
			for ky := -1; ky <= 1 && keep; ky++ {
				for kx := -1; kx <= 1; kx++ {
					nx, ny := x+kx, y+ky
					if nx < 0 || nx >= w || ny < 0 || ny >= h || !mask[ny*w+nx] {
						keep = false
						break
					}
				}
			}
			out[y*w+x] = keep
		}
	}
	return out
}

// largestComponent flood-fills 4-connected regions of mask and returns
// the biggest one along with its pixel count.
func largestComponent(mask []bool, w, h int) ([]bool, int) {
	visited := make([]bool, len(mask))
	best := make([]bool, len(mask))
	bestArea := 0

	current := make([]bool, len(mask))
	var stack []image.Point

	for sy := 0; sy < h; sy++ {
		for sx := 0; sx < w; sx++ {
			if !mask[sy*w+sx] || visited[sy*w+sx] {
				continue
			}

			clear(current)
			area := 0
			stack = append(stack[:0], image.Point{X: sx, Y: sy})

			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]

				if p.X < 0 || p.X >= w || p.Y < 0 || p.Y >= h {
					continue
				}
				i := p.Y*w + p.X
				if visited[i] || !mask[i] {
					continue
				}
				visited[i] = true
				current[i] = true
				area++

				stack = append(stack,
					image.Point{X: p.X + 1, Y: p.Y},
					image.Point{X: p.X - 1, Y: p.Y},
					image.Point{X: p.X, Y: p.Y + 1},
					image.Point{X: p.X, Y: p.Y - 1},
				)
			}

			if area > bestArea {
				bestArea = area
				copy(best, current)
			}
		}
	}

	return best, bestArea
}
