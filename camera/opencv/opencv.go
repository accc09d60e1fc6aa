// Package opencv provides camera devices backed by OpenCV video capture.
package opencv

import (
	"fmt"

	"github.com/Tutortoise/mask-stream/camera"
	"gocv.io/x/gocv"
)

type captureDevice struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

// Open opens the local capture device with the given index.
func Open(index int) (camera.Device, error) {
	vc, err := gocv.VideoCaptureDevice(index)
	if err != nil {
		return nil, err
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("device %d not opened", index)
	}

	return &captureDevice{vc: vc, mat: gocv.NewMat()}, nil
}

func (d *captureDevice) Read() (camera.Frame, error) {
	if ok := d.vc.Read(&d.mat); !ok || d.mat.Empty() {
		return camera.Frame{}, camera.ErrFrameRead
	}

	if d.mat.Type() != gocv.MatTypeCV8UC3 {
		return camera.Frame{}, fmt.Errorf("%w: unexpected mat type %v", camera.ErrFrameRead, d.mat.Type())
	}

	return camera.Frame{
		Width:  d.mat.Cols(),
		Height: d.mat.Rows(),
		Order:  camera.BGR,
		Pix:    d.mat.ToBytes(),
	}, nil
}

func (d *captureDevice) Close() error {
	d.mat.Close()
	return d.vc.Close()
}
