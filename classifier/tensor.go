package classifier

import (
	"image"
	"runtime"
	"sync"

	"github.com/Tutortoise/mask-stream/camera"
	"github.com/disintegration/imaging"
)

// Layout is the dimension order a model expects.
type Layout int

const (
	NHWC Layout = iota
	NCHW
)

// Tensor is a batch of one normalized RGB image, stored NHWC.
type Tensor struct {
	Shape [4]int
	Data  []float32
}

func newTensor() *Tensor {
	return &Tensor{
		Shape: [4]int{1, InputHeight, InputWidth, InputChannels},
		Data:  make([]float32, InputHeight*InputWidth*InputChannels),
	}
}

// At returns the value at pixel (x, y), channel c of the single batch entry.
func (t *Tensor) At(x, y, c int) float32 {
	return t.Data[(y*InputWidth+x)*InputChannels+c]
}

// CopyTo writes the tensor into dst in the given layout.
func (t *Tensor) CopyTo(dst []float32, layout Layout) {
	if layout == NHWC {
		copy(dst, t.Data)
		return
	}

	plane := InputWidth * InputHeight
	for i := 0; i < plane; i++ {
		dst[i] = t.Data[i*3]
		dst[plane+i] = t.Data[i*3+1]
		dst[2*plane+i] = t.Data[i*3+2]
	}
}

// Preprocess converts a frame to RGB and builds the classifier input tensor.
func Preprocess(f camera.Frame) *Tensor {
	if !f.Valid() {
		return newTensor()
	}
	return PreprocessImage(f.RGB())
}

// PreprocessImage resizes an RGB image to the model input size and scales every channel to [0,1].
func PreprocessImage(img image.Image) *Tensor {
	t := newTensor()
	if img.Bounds().Empty() {
		return t
	}

	resized := imaging.Resize(img, InputWidth, InputHeight, imaging.Linear)
	fillParallel(resized, t.Data)
	return t
}

func fillParallel(img *image.NRGBA, buffer []float32) {
	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > InputHeight {
		numWorkers = InputHeight
	}
	rowsPerWorker := InputHeight / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := (w + 1) * rowsPerWorker
		if w == numWorkers-1 {
			endRow = InputHeight
		}

		go func(start, end int) {
			defer wg.Done()
			for y := start; y < end; y++ {
				src := img.Pix[y*img.Stride:]
				dst := buffer[y*InputWidth*InputChannels:]
				for x := 0; x < InputWidth; x++ {
					dst[x*3] = float32(src[x*4]) / 255.0
					dst[x*3+1] = float32(src[x*4+1]) / 255.0
					dst[x*3+2] = float32(src[x*4+2]) / 255.0
				}
			}
		}(startRow, endRow)
	}

	wg.Wait()
}
