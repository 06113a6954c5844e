package refine

import (
	"image"
	"log/slog"

	"github.com/ivlev/inbetween/internal/collab"
	"github.com/ivlev/inbetween/internal/extract"
	"github.com/ivlev/inbetween/internal/generate"
	"github.com/ivlev/inbetween/internal/plan"
	"github.com/ivlev/inbetween/internal/system"
)

// Sub-scores below this trigger the matching correction pass.
const refineThreshold = 7.0

// smoothRadius is the temporal kernel radius. Radius 1 blends each
// frame with its immediate neighbors using triangular weights 1:2:1.
const smoothRadius = 1

// Refiner applies targeted corrections to a generated sequence based on
// the validator's sub-scores. Each pass is independent and only runs
// when its score falls below the threshold.
type Refiner struct {
	log  *slog.Logger
	pool *system.ImagePool
}

func New(log *slog.Logger, pool *system.ImagePool) *Refiner {
	return &Refiner{log: log, pool: pool}
}

// Refine returns a corrected copy of seq. The input sequence is left
// untouched so a replan can still reuse it. Frame count and canvas
// geometry never change; the first and last frames are exempt from
// temporal smoothing so keyframes stay exact.
func (r *Refiner) Refine(seq *generate.Sequence, p *plan.Plan, report *collab.ValidationReport, startObj, endObj *extract.Object) *generate.Sequence {
	out := &generate.Sequence{
		Frames:     make([]*image.RGBA, len(seq.Frames)),
		Provenance: seq.Provenance,
	}
	for i, f := range seq.Frames {
		out.Frames[i] = r.clone(f)
	}

	if report.Scores.Smoothness < refineThreshold {
		r.log.Debug("refine: temporal smoothing", "smoothness", report.Scores.Smoothness)
		r.smoothTemporal(out.Frames)
	}
	if report.Scores.Artifacts < refineThreshold {
		r.log.Debug("refine: alpha cleanup", "artifacts", report.Scores.Artifacts)
		for _, f := range out.Frames {
			cleanAlpha(f)
		}
	}
	if report.Scores.Style < refineThreshold && startObj != nil && endObj != nil {
		r.log.Debug("refine: color normalization", "style", report.Scores.Style)
		r.normalizeColor(out.Frames, p, startObj, endObj)
	}

	return out
}

// smoothTemporal blends each interior frame with its neighbors using a
// triangular kernel. Only pixels that are non-transparent in the center
// frame are touched, so smoothing never bleeds the object onto empty
// canvas.
func (r *Refiner) smoothTemporal(frames []*image.RGBA) {
	if len(frames) < 3 {
		return
	}

	// Blend against the pre-pass originals, not already-smoothed
	// neighbors.
	originals := make([]*image.RGBA, len(frames))
	for i, f := range frames {
		originals[i] = r.clone(f)
	}
	defer func() {
		for _, f := range originals {
			r.pool.Put(f)
		}
	}()

	for i := 1; i < len(frames)-1; i++ {
		prev, cur, next := originals[i-1], originals[i], originals[i+1]
		dst := frames[i]
		for off := 0; off < len(dst.Pix); off += 4 {
			if cur.Pix[off+3] == 0 {
				continue
			}
			for c := 0; c < 4; c++ {
				sum := uint32(prev.Pix[off+c]) + 2*uint32(cur.Pix[off+c]) + uint32(next.Pix[off+c])
				dst.Pix[off+c] = uint8(sum / 4)
			}
		}
	}
}

// cleanAlpha suppresses fringe artifacts: box-blur the alpha channel,
// re-threshold it, then close single-pixel holes with erode+dilate.
func cleanAlpha(img *image.RGBA) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	alpha := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			alpha[y*w+x] = img.Pix[img.PixOffset(b.Min.X+x, b.Min.Y+y)+3]
		}
	}

	blurred := boxBlur(alpha, w, h)
	mask := make([]bool, w*h)
	for i, a := range blurred {
		mask[i] = a >= 128
	}
	mask = dilate(erode(mask, w, h), w, h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			if mask[y*w+x] {
				img.Pix[off+3] = 255
			} else {
				img.Pix[off] = 0
				img.Pix[off+1] = 0
				img.Pix[off+2] = 0
				img.Pix[off+3] = 0
			}
		}
	}
}

// normalizeColor pulls every object pixel halfway toward the expected
// keyframe-color lerp at that frame's eased time.
func (r *Refiner) normalizeColor(frames []*image.RGBA, p *plan.Plan, startObj, endObj *extract.Object) {
	if len(frames) != len(p.Schedule) {
		return
	}
	sc, ec := startObj.Color, endObj.Color

	for i, f := range frames {
		t := p.Schedule[i].TEased
		if t == 0 || t == 1 {
			continue
		}
		wr := lerp8(sc.R, ec.R, t)
		wg := lerp8(sc.G, ec.G, t)
		wb := lerp8(sc.B, ec.B, t)
		for off := 0; off < len(f.Pix); off += 4 {
			if f.Pix[off+3] == 0 {
				continue
			}
			f.Pix[off] = mid(f.Pix[off], wr)
			f.Pix[off+1] = mid(f.Pix[off+1], wg)
			f.Pix[off+2] = mid(f.Pix[off+2], wb)
		}
	}
}

func (r *Refiner) clone(img *image.RGBA) *image.RGBA {
	dst := r.pool.Get(img.Bounds())
	copy(dst.Pix, img.Pix)
	return dst
}

func boxBlur(src []uint8, w, h int) []uint8 {
	dst := make([]uint8, len(src))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum, n int
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					ny, nx := y+dy, x+dx
					if ny < 0 || ny >= h || nx < 0 || nx >= w {
						continue
					}
					sum += int(src[ny*w+nx])
					n++
				}
			}
			dst[y*w+x] = uint8(sum / n)
		}
	}
	return dst
}

func erode(mask []bool, w, h int) []bool {
	out := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			keep := mask[y*w+x]
			for dy := -1; dy <= 1 && keep; dy++ {
				for dx := -1; dx <= 1 && keep; dx++ {
					ny, nx := y+dy, x+dx
					if ny < 0 || ny >= h || nx < 0 || nx >= w || !mask[ny*w+nx] {
						keep = false
					}
				}
			}
			out[y*w+x] = keep
		}
	}
	return out
}

func dilate(mask []bool, w, h int) []bool {
	out := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			hit := false
			for dy := -1; dy <= 1 && !hit; dy++ {
				for dx := -1; dx <= 1 && !hit; dx++ {
					ny, nx := y+dy, x+dx
					if ny >= 0 && ny < h && nx >= 0 && nx < w && mask[ny*w+nx] {
						hit = true
					}
				}
			}
			out[y*w+x] = hit
		}
	}
	return out
}

func lerp8(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t)
}

func mid(a, b uint8) uint8 {
	return uint8((uint16(a) + uint16(b)) / 2)
}
