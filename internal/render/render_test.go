package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"

	"honnef.co/go/curve"

	"github.com/ivlev/inbetween/internal/extract"
	"github.com/ivlev/inbetween/internal/system"
)

func keyframe(t *testing.T, x0, y0 int, c color.NRGBA) (*image.RGBA, *extract.Object) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	draw.Draw(img, image.Rect(x0, y0, x0+20, y0+20), image.NewUniform(c), image.Point{}, draw.Src)
	obj, err := extract.Extract(img)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	return img, obj
}

func frameCentroid(frame *image.RGBA) (float64, float64) {
	var sx, sy, n float64
	b := frame.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if frame.RGBAAt(x, y).A > 0 {
				sx += float64(x)
				sy += float64(y)
				n++
			}
		}
	}
	if n == 0 {
		return -1, -1
	}
	return sx / n, sy / n
}

func TestSynthesizeMidpointCentroid(t *testing.T) {
	// Scenario: linear timing, no arc. The middle frame's object must sit
	// exactly between the two keyframe centroids.
	_, a := keyframe(t, 10, 10, color.NRGBA{R: 255, A: 255})
	_, b := keyframe(t, 70, 70, color.NRGBA{B: 255, A: 255})

	pool := system.NewImagePool()
	frame := Synthesize(a, b, image.Rect(0, 0, 100, 100), 0.5, nil, pool)

	cx, cy := frameCentroid(frame)
	wantX := (a.Centroid.X + b.Centroid.X) / 2 * 100
	wantY := (a.Centroid.Y + b.Centroid.Y) / 2 * 100

	if math.Abs(cx-wantX) > 1.0 || math.Abs(cy-wantY) > 1.0 {
		t.Errorf("midpoint centroid = (%.2f, %.2f), want (%.2f, %.2f)", cx, cy, wantX, wantY)
	}
}

func TestSynthesizeEndpoints(t *testing.T) {
	_, a := keyframe(t, 10, 10, color.NRGBA{R: 255, A: 255})
	_, b := keyframe(t, 70, 70, color.NRGBA{B: 255, A: 255})

	pool := system.NewImagePool()

	f0 := Synthesize(a, b, image.Rect(0, 0, 100, 100), 0, nil, pool)
	cx, cy := frameCentroid(f0)
	if math.Abs(cx-a.Centroid.X*100) > 1.0 || math.Abs(cy-a.Centroid.Y*100) > 1.0 {
		t.Errorf("t=0 centroid = (%.2f, %.2f), want start centroid (%.2f, %.2f)",
			cx, cy, a.Centroid.X*100, a.Centroid.Y*100)
	}
	if got := f0.RGBAAt(int(cx), int(cy)); got.R < 250 || got.B > 5 {
		t.Errorf("t=0 color = %v, want start color", got)
	}

	f1 := Synthesize(a, b, image.Rect(0, 0, 100, 100), 1, nil, pool)
	cx, cy = frameCentroid(f1)
	if math.Abs(cx-b.Centroid.X*100) > 1.0 || math.Abs(cy-b.Centroid.Y*100) > 1.0 {
		t.Errorf("t=1 centroid = (%.2f, %.2f), want end centroid (%.2f, %.2f)",
			cx, cy, b.Centroid.X*100, b.Centroid.Y*100)
	}
	if got := f1.RGBAAt(int(cx), int(cy)); got.B < 250 || got.R > 5 {
		t.Errorf("t=1 color = %v, want end color", got)
	}
}

func TestSynthesizeArcPosition(t *testing.T) {
	_, a := keyframe(t, 10, 40, color.NRGBA{R: 255, A: 255})
	_, b := keyframe(t, 70, 40, color.NRGBA{R: 255, A: 255})

	pool := system.NewImagePool()
	pos := curve.Pt(0.5, 0.3)
	frame := Synthesize(a, b, image.Rect(0, 0, 100, 100), 0.5, &pos, pool)

	cx, cy := frameCentroid(frame)
	if math.Abs(cx-50) > 1.0 || math.Abs(cy-30) > 1.0 {
		t.Errorf("arc centroid = (%.2f, %.2f), want (50, 30)", cx, cy)
	}
}

func TestCanvas(t *testing.T) {
	got := Canvas(image.Rect(0, 0, 100, 80), image.Rect(0, 0, 60, 120))
	want := image.Rect(0, 0, 100, 120)
	if got != want {
		t.Errorf("Canvas = %v, want %v", got, want)
	}
}

func TestFit(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 50, 50))
	draw.Draw(src, src.Bounds(), image.NewUniform(color.NRGBA{G: 200, A: 255}), image.Point{}, draw.Src)

	dst := Fit(src, image.Rect(0, 0, 100, 100))
	if dst.Bounds().Dx() != 100 || dst.Bounds().Dy() != 100 {
		t.Errorf("Fit bounds = %v, want 100x100", dst.Bounds())
	}
	if c := dst.RGBAAt(50, 50); c.G < 150 {
		t.Errorf("Fit center = %v, want green", c)
	}

	same := Fit(dst, image.Rect(0, 0, 100, 100))
	if same != dst {
		t.Error("Fit should return the image unchanged when already at canvas size")
	}
}
