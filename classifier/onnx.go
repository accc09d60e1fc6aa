package classifier

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// SessionOptions configures a ModelSession.
type SessionOptions struct {
	InputName  string // discovered from the model when empty
	OutputName string // discovered from the model when empty
	Threads    int    // intra/inter op threads, 0 uses runtime.NumCPU
}

// ModelSession is one onnxruntime session with pre-allocated input and output tensors.
// It is safe for concurrent use, runs are serialized.
type ModelSession struct {
	Session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]
	Layout  Layout

	mu sync.Mutex
}

// NewModelSession loads the model at path. The onnxruntime environment must be initialized.
// Failures match ErrModelLoad.
func NewModelSession(path string, opts SessionOptions) (*ModelSession, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &ModelError{Path: path, Cause: err}
	}

	inputName, outputName := opts.InputName, opts.OutputName
	outputShape := ort.NewShape(1, 1)

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, &ModelError{Path: path, Cause: fmt.Errorf("read input/output info: %w", err)}
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, &ModelError{Path: path, Cause: fmt.Errorf("expected 1 input and at least 1 output, got %d and %d", len(inputs), len(outputs))}
	}
	if inputName == "" {
		inputName = inputs[0].Name
	}
	if outputName == "" {
		outputName = outputs[0].Name
	}

	layout, err := inputLayout(inputs[0].Dimensions)
	if err != nil {
		return nil, &ModelError{Path: path, Cause: err}
	}
	for _, o := range outputs {
		if o.Name == outputName {
			outputShape = concreteShape(o.Dimensions)
		}
	}
	if outputShape.FlattenedSize() < 1 {
		return nil, &ModelError{Path: path, Cause: fmt.Errorf("output %q has no elements", outputName)}
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, &ModelError{Path: path, Cause: fmt.Errorf("create session options: %w", err)}
	}
	defer options.Destroy()

	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	options.SetIntraOpNumThreads(threads)
	options.SetInterOpNumThreads(threads)

	inputShape := ort.NewShape(1, InputHeight, InputWidth, InputChannels)
	if layout == NCHW {
		inputShape = ort.NewShape(1, InputChannels, InputHeight, InputWidth)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, &ModelError{Path: path, Cause: fmt.Errorf("create input tensor: %w", err)}
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, &ModelError{Path: path, Cause: fmt.Errorf("create output tensor: %w", err)}
	}

	session, err := ort.NewAdvancedSession(
		path,
		[]string{inputName},
		[]string{outputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, &ModelError{Path: path, Cause: fmt.Errorf("create session: %w", err)}
	}

	return &ModelSession{
		Session: session,
		Input:   inputTensor,
		Output:  outputTensor,
		Layout:  layout,
	}, nil
}

// Infer runs the model on t and returns the first output value.
// Run failures are returned unwrapped so callers can retire the session.
func (m *ModelSession) Infer(ctx context.Context, t *Tensor) (float32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t.CopyTo(m.Input.GetData(), m.Layout)

	if err := m.Session.Run(); err != nil {
		return 0, fmt.Errorf("run session: %w", err)
	}

	out := m.Output.GetData()
	if len(out) == 0 {
		return 0, &ProcessingError{Message: "model returned no output"}
	}
	return Probability(out[0])
}

func (m *ModelSession) Destroy() {
	if m.Session != nil {
		m.Session.Destroy()
	}
	if m.Input != nil {
		m.Input.Destroy()
	}
	if m.Output != nil {
		m.Output.Destroy()
	}
}

// inputLayout accepts 1x224x224x3 (NHWC) or 1x3x224x224 (NCHW); dynamic dims count as matching.
func inputLayout(dims ort.Shape) (Layout, error) {
	if len(dims) != 4 {
		return NHWC, fmt.Errorf("input must be 4-dimensional, got %v", dims)
	}

	match := func(want ...int64) bool {
		for i, w := range want {
			if dims[i] > 0 && dims[i] != w {
				return false
			}
		}
		return true
	}

	switch {
	case match(1, InputHeight, InputWidth, InputChannels):
		return NHWC, nil
	case match(1, InputChannels, InputHeight, InputWidth):
		return NCHW, nil
	default:
		return NHWC, fmt.Errorf("unsupported input shape %v", dims)
	}
}

// concreteShape replaces dynamic (non-positive) dimensions with 1.
func concreteShape(dims ort.Shape) ort.Shape {
	if len(dims) == 0 {
		return ort.NewShape(1, 1)
	}
	out := make(ort.Shape, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		out[i] = d
	}
	return out
}
