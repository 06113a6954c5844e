package source

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// ImageFile loads a PNG or JPEG keyframe from disk.
type ImageFile struct {
	path string
}

func NewImageFile(path string) *ImageFile {
	return &ImageFile{path: path}
}

func (s *ImageFile) Load() (*image.RGBA, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return toRGBA(img), nil
}

func (s *ImageFile) Close() error {
	return nil
}
