package source

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestImageFileLoad(t *testing.T) {
	dir := t.TempDir()
	path := writePNG(t, dir, "frame.png", 64, 48)

	src := NewImageFile(path)
	defer src.Close()

	img, err := src.Load()
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 64, 48), img.Bounds())
}

func TestImageFileMissing(t *testing.T) {
	src := NewImageFile(filepath.Join(t.TempDir(), "nope.png"))
	_, err := src.Load()
	require.Error(t, err)
}

func TestLoadPair(t *testing.T) {
	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", 32, 32)
	b := writePNG(t, dir, "b.png", 48, 48)

	start, end, err := LoadPair(Ref{Path: a}, Ref{Path: b}, 0)
	require.NoError(t, err)
	require.Equal(t, 32, start.Bounds().Dx())
	require.Equal(t, 48, end.Bounds().Dx())
}

func TestLoadPairMissingEnd(t *testing.T) {
	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", 32, 32)

	_, _, err := LoadPair(Ref{Path: a}, Ref{Path: filepath.Join(dir, "missing.png")}, 0)
	require.Error(t, err)
	require.ErrorContains(t, err, "end keyframe")
}

func TestRefIsPDF(t *testing.T) {
	require.True(t, Ref{Path: "doc.pdf"}.IsPDF())
	require.True(t, Ref{Path: "DOC.PDF"}.IsPDF())
	require.False(t, Ref{Path: "frame.png"}.IsPDF())
	require.False(t, Ref{Path: "frame"}.IsPDF())
}
