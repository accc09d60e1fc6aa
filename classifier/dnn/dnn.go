// Package dnn runs the mask classifier through OpenCV's dnn module.
package dnn

import (
	"context"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/Tutortoise/mask-stream/classifier"
	"gocv.io/x/gocv"
)

type Classifier struct {
	net gocv.Net
	mu  sync.Mutex
}

// New loads the model at path. Failures match classifier.ErrModelLoad.
func New(path string) (*Classifier, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &classifier.ModelError{Path: path, Cause: err}
	}

	net := gocv.ReadNet(path, "")
	if net.Empty() {
		return nil, &classifier.ModelError{Path: path, Cause: fmt.Errorf("opencv could not read network")}
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &Classifier{net: net}, nil
}

func (d *Classifier) Infer(ctx context.Context, t *classifier.Tensor) (float32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	raw := unsafe.Slice((*byte)(unsafe.Pointer(&t.Data[0])), len(t.Data)*4)
	blob, err := gocv.NewMatWithSizesFromBytes(t.Shape[:], gocv.MatTypeCV32F, raw)
	if err != nil {
		return 0, &classifier.ProcessingError{Message: "build input blob", Cause: err}
	}
	defer blob.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	if output.Empty() {
		return 0, &classifier.ProcessingError{Message: "model returned no output"}
	}

	data, err := output.DataPtrFloat32()
	if err != nil || len(data) == 0 {
		return 0, &classifier.ProcessingError{Message: "read model output", Cause: err}
	}
	return classifier.Probability(data[0])
}

func (d *Classifier) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
