package dnn

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Tutortoise/mask-stream/camera"
	"github.com/Tutortoise/mask-stream/classifier"
)

// findModelPath looks for the classifier next to the module root or in $MASK_MODEL_PATH.
func findModelPath() string {
	candidates := []string{
		os.Getenv("MASK_MODEL_PATH"),
		filepath.Join("..", "..", "mask_detector.onnx"),
		filepath.Join("..", "..", "models", "mask_detector.onnx"),
	}
	for _, p := range candidates {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func TestNewInvalidPath(t *testing.T) {
	_, err := New("/nonexistent/path/mask_detector.onnx")
	if !errors.Is(err, classifier.ErrModelLoad) {
		t.Errorf("New error = %v, want ErrModelLoad", err)
	}
}

func TestInfer(t *testing.T) {
	modelPath := findModelPath()
	if modelPath == "" {
		t.Skip("mask classifier model not found, skipping test")
	}

	c, err := New(modelPath)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	pix := make([]byte, 64*48*3)
	frame := camera.Frame{Width: 64, Height: 48, Order: camera.BGR, Pix: pix}

	p, err := c.Infer(context.Background(), classifier.Preprocess(frame))
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if p < 0 || p > 1 {
		t.Errorf("probability %v outside [0,1]", p)
	}
}

func TestInferCancelled(t *testing.T) {
	modelPath := findModelPath()
	if modelPath == "" {
		t.Skip("mask classifier model not found, skipping test")
	}

	c, err := New(modelPath)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Infer(ctx, classifier.Preprocess(camera.Frame{})); !errors.Is(err, context.Canceled) {
		t.Errorf("Infer with cancelled context = %v", err)
	}
}
