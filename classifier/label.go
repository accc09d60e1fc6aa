package classifier

import (
	"image/color"

	"github.com/Tutortoise/mask-stream/models"
)

var (
	maskColor   = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	noMaskColor = color.RGBA{R: 255, G: 0, B: 0, A: 255}
)

// LabelFor maps a probability to a label. Only values strictly above the threshold are "Mask".
func LabelFor(p float32) models.Label {
	if p > MaskThreshold {
		return models.LabelMask
	}
	return models.LabelNoMask
}

// LabelColor is the overlay color for a label: green for Mask, red otherwise.
func LabelColor(l models.Label) color.RGBA {
	if l == models.LabelMask {
		return maskColor
	}
	return noMaskColor
}
