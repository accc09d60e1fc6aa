package classifier

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/Tutortoise/mask-stream/camera"
	"github.com/Tutortoise/mask-stream/models"
	ort "github.com/yalue/onnxruntime_go"
)

func TestLabelFor(t *testing.T) {
	tests := []struct {
		p    float32
		want models.Label
	}{
		{0, models.LabelNoMask},
		{0.2, models.LabelNoMask},
		{0.4999, models.LabelNoMask},
		{0.5, models.LabelNoMask},
		{0.5001, models.LabelMask},
		{0.73, models.LabelMask},
		{1, models.LabelMask},
	}

	for _, tc := range tests {
		if got := LabelFor(tc.p); got != tc.want {
			t.Errorf("LabelFor(%v) = %q, want %q", tc.p, got, tc.want)
		}
	}
}

func TestLabelColor(t *testing.T) {
	tests := []struct {
		name string
		p    float32
		want color.RGBA
	}{
		{"0.73 is green", 0.73, color.RGBA{0, 255, 0, 255}},
		{"0.2 is red", 0.2, color.RGBA{255, 0, 0, 255}},
		{"0.5 is red", 0.5, color.RGBA{255, 0, 0, 255}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := LabelColor(LabelFor(tc.p)); got != tc.want {
				t.Errorf("color = %v, want %v", got, tc.want)
			}
		})
	}
}

func bgrFrame(w, h int, b, g, r byte) camera.Frame {
	pix := make([]byte, w*h*3)
	for i := 0; i < len(pix); i += 3 {
		pix[i], pix[i+1], pix[i+2] = b, g, r
	}
	return camera.Frame{Width: w, Height: h, Order: camera.BGR, Pix: pix}
}

func TestPreprocessShapeAndRange(t *testing.T) {
	sizes := []image.Point{{640, 480}, {224, 224}, {1, 1}, {31, 997}, {1920, 1080}}

	for _, size := range sizes {
		tensor := Preprocess(bgrFrame(size.X, size.Y, 0, 128, 255))

		if tensor.Shape != [4]int{1, 224, 224, 3} {
			t.Errorf("%v: shape = %v", size, tensor.Shape)
		}
		if len(tensor.Data) != 224*224*3 {
			t.Errorf("%v: len = %d", size, len(tensor.Data))
		}
		for i, v := range tensor.Data {
			if v < 0 || v > 1 {
				t.Fatalf("%v: element %d = %v out of [0,1]", size, i, v)
			}
		}
	}
}

func TestPreprocessConvertsToRGB(t *testing.T) {
	tensor := Preprocess(bgrFrame(50, 40, 0, 128, 255))

	for _, p := range []image.Point{{0, 0}, {111, 57}, {223, 223}} {
		r, g, b := tensor.At(p.X, p.Y, 0), tensor.At(p.X, p.Y, 1), tensor.At(p.X, p.Y, 2)
		if r != 1 {
			t.Errorf("%v: red = %v, want 1", p, r)
		}
		if math.Abs(float64(g)-128.0/255.0) > 1e-6 {
			t.Errorf("%v: green = %v, want %v", p, g, 128.0/255.0)
		}
		if b != 0 {
			t.Errorf("%v: blue = %v, want 0", p, b)
		}
	}
}

func TestPreprocessInvalidFrame(t *testing.T) {
	tensor := Preprocess(camera.Frame{Width: 10, Height: 10})
	if tensor.Shape != [4]int{1, 224, 224, 3} {
		t.Errorf("shape = %v", tensor.Shape)
	}
}

func TestCopyToNCHW(t *testing.T) {
	tensor := Preprocess(bgrFrame(8, 8, 0, 128, 255))
	dst := make([]float32, len(tensor.Data))
	tensor.CopyTo(dst, NCHW)

	plane := InputWidth * InputHeight
	if dst[0] != 1 || dst[plane] != tensor.At(0, 0, 1) || dst[2*plane] != 0 {
		t.Errorf("planes = %v %v %v", dst[0], dst[plane], dst[2*plane])
	}

	tensor.CopyTo(dst, NHWC)
	if dst[0] != 1 || dst[2] != 0 {
		t.Errorf("NHWC copy = %v", dst[:3])
	}
}

func TestProbability(t *testing.T) {
	tests := []struct {
		in      float32
		want    float32
		wantErr bool
	}{
		{0.3, 0.3, false},
		{-0.1, 0, false},
		{1.7, 1, false},
		{float32(math.NaN()), 0, true},
	}

	for _, tc := range tests {
		got, err := Probability(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("Probability(%v) err = %v", tc.in, err)
			continue
		}
		if err == nil && got != tc.want {
			t.Errorf("Probability(%v) = %v, want %v", tc.in, got, tc.want)
		}
		if err != nil && !errors.Is(err, ErrInference) {
			t.Errorf("Probability(NaN) error should match ErrInference")
		}
	}
}

func TestPredict(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	timings := &models.ProcessingTimings{}

	var got *Tensor
	pred, err := Predict(context.Background(), Func(func(_ context.Context, t *Tensor) (float32, error) {
		got = t
		return 0.73, nil
	}), img, timings)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	if pred.Label != models.LabelMask || pred.Probability != 0.73 {
		t.Errorf("prediction = %+v", pred)
	}
	if got == nil || got.Shape != [4]int{1, 224, 224, 3} {
		t.Error("classifier did not receive a model-sized tensor")
	}
}

func TestPredictWrapsErrors(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	boom := errors.New("boom")

	_, err := Predict(context.Background(), Func(func(context.Context, *Tensor) (float32, error) {
		return 0, boom
	}), img, nil)

	if !errors.Is(err, ErrInference) {
		t.Errorf("err = %v, want ErrInference", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want cause preserved", err)
	}
}

func TestInputLayout(t *testing.T) {
	tests := []struct {
		name    string
		dims    ort.Shape
		want    Layout
		wantErr bool
	}{
		{"keras nhwc", ort.NewShape(-1, 224, 224, 3), NHWC, false},
		{"fixed nhwc", ort.NewShape(1, 224, 224, 3), NHWC, false},
		{"torch nchw", ort.NewShape(1, 3, 224, 224), NCHW, false},
		{"wrong size", ort.NewShape(1, 256, 256, 3), NHWC, true},
		{"wrong rank", ort.NewShape(1, 150528), NHWC, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := inputLayout(tc.dims)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v", err)
			}
			if got != tc.want {
				t.Errorf("layout = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConcreteShape(t *testing.T) {
	got := concreteShape(ort.NewShape(-1, 1))
	if len(got) != 2 || got[0] != 1 || got[1] != 1 {
		t.Errorf("concreteShape = %v", got)
	}
	if got := concreteShape(nil); got.FlattenedSize() != 1 {
		t.Errorf("concreteShape(nil) = %v", got)
	}
}

func TestNewModelSessionMissingFile(t *testing.T) {
	_, err := NewModelSession("/nonexistent/mask_detector.onnx", SessionOptions{})
	if !errors.Is(err, ErrModelLoad) {
		t.Errorf("err = %v, want ErrModelLoad", err)
	}
}
