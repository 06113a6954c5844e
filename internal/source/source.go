package source

import (
	"fmt"
	"image"
	"image/draw"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// Source yields one keyframe image. Implementations own any underlying
// file handles until Close.
type Source interface {
	Load() (*image.RGBA, error)
	Close() error
}

// Ref names a keyframe: an image file path, or a PDF path plus a
// zero-based page index.
type Ref struct {
	Path string
	Page int
}

// IsPDF reports whether the ref points at a PDF document.
func (r Ref) IsPDF() bool {
	return strings.EqualFold(filepath.Ext(r.Path), ".pdf")
}

// Open picks the implementation from the file extension.
func Open(ref Ref, dpi int) (Source, error) {
	if ref.IsPDF() {
		return NewPDFPage(ref.Path, ref.Page, dpi)
	}
	return NewImageFile(ref.Path), nil
}

// LoadPair loads both keyframes and verifies neither is empty.
func LoadPair(start, end Ref, dpi int) (*image.RGBA, *image.RGBA, error) {
	a, err := loadOne(start, dpi)
	if err != nil {
		return nil, nil, fmt.Errorf("start keyframe %s: %w", start.Path, err)
	}
	b, err := loadOne(end, dpi)
	if err != nil {
		return nil, nil, fmt.Errorf("end keyframe %s: %w", end.Path, err)
	}
	return a, b, nil
}

func loadOne(ref Ref, dpi int) (*image.RGBA, error) {
	src, err := Open(ref, dpi)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	img, err := src.Load()
	if err != nil {
		return nil, err
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}
	return img, nil
}

// PDFPage renders a single page of a PDF document via MuPDF.
type PDFPage struct {
	doc  *fitz.Document
	page int
	dpi  int
}

func NewPDFPage(path string, page int, dpi int) (*PDFPage, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	if page < 0 || page >= doc.NumPage() {
		doc.Close()
		return nil, fmt.Errorf("page %d out of range, document has %d pages", page, doc.NumPage())
	}
	if dpi <= 0 {
		dpi = 150
	}
	return &PDFPage{doc: doc, page: page, dpi: dpi}, nil
}

func (p *PDFPage) Load() (*image.RGBA, error) {
	img, err := p.doc.ImageDPI(p.page, float64(p.dpi))
	if err != nil {
		return nil, err
	}
	return toRGBA(img), nil
}

func (p *PDFPage) Close() error {
	return p.doc.Close()
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	dst := image.NewRGBA(img.Bounds())
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	return dst
}
