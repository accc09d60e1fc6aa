// Package overlay draws prediction labels onto frames.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	// OriginX and OriginY are the baseline start of the label text.
	OriginX = 10
	OriginY = 30

	FontSize  = 24
	Thickness = 2
)

// Annotator renders label text. Faces keep glyph caches, so drawing is serialized.
type Annotator struct {
	face font.Face
	mu   sync.Mutex
}

// New builds an Annotator with the bundled Go Regular font.
func New() (*Annotator, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}

	return &Annotator{face: face}, nil
}

// Annotate draws text at the fixed label position in color c.
func (a *Annotator) Annotate(dst draw.Image, text string, c color.Color) {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: a.face,
	}

	for dy := 0; dy < Thickness; dy++ {
		for dx := 0; dx < Thickness; dx++ {
			d.Dot = fixed.P(dst.Bounds().Min.X+OriginX+dx, dst.Bounds().Min.Y+OriginY+dy)
			d.DrawString(text)
		}
	}
}

// Close releases the font face.
func (a *Annotator) Close() error {
	return a.face.Close()
}
