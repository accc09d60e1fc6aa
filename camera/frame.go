package camera

import (
	"image"
	"image/draw"
)

// ColorOrder is the channel layout of a Frame's pixels.
type ColorOrder int

const (
	// BGR is the native order of OpenCV capture devices.
	BGR ColorOrder = iota
	RGB
)

func (o ColorOrder) String() string {
	if o == RGB {
		return "RGB"
	}
	return "BGR"
}

// Frame is one captured image: 3 interleaved 8-bit channels, row-major, no padding.
type Frame struct {
	Width  int
	Height int
	Order  ColorOrder
	Pix    []byte
}

// Valid reports whether the pixel buffer matches the declared dimensions.
func (f Frame) Valid() bool {
	return f.Width > 0 && f.Height > 0 && len(f.Pix) == f.Width*f.Height*3
}

// RGB returns a copy of the frame converted to RGB order.
func (f Frame) RGB() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	ri, bi := 0, 2
	if f.Order == BGR {
		ri, bi = 2, 0
	}

	for y := 0; y < f.Height; y++ {
		src := f.Pix[y*f.Width*3 : (y+1)*f.Width*3]
		dst := img.Pix[y*img.Stride : y*img.Stride+f.Width*4]
		for x := 0; x < f.Width; x++ {
			dst[x*4] = src[x*3+ri]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+bi]
			dst[x*4+3] = 0xff
		}
	}

	return img
}

// FromImage builds an RGB frame from a decoded image.
func FromImage(img image.Image) Frame {
	b := img.Bounds()
	rgba, ok := img.(*image.NRGBA)
	if !ok || b.Min != (image.Point{}) {
		rgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}

	w, h := b.Dx(), b.Dy()
	pix := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < w; x++ {
			copy(pix[(y*w+x)*3:(y*w+x)*3+3], row[x*4:x*4+3])
		}
	}

	return Frame{Width: w, Height: h, Order: RGB, Pix: pix}
}
