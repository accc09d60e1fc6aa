// Package classifier turns frames into mask / no-mask predictions.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/Tutortoise/mask-stream/models"
)

var (
	ErrModelLoad = errors.New("classifier: model load failed")
	ErrInference = errors.New("classifier: inference failed")
)

// Classifier scores a preprocessed tensor with the probability of a mask.
type Classifier interface {
	Infer(ctx context.Context, t *Tensor) (float32, error)
}

// Func adapts a function to Classifier.
type Func func(ctx context.Context, t *Tensor) (float32, error)

func (f Func) Infer(ctx context.Context, t *Tensor) (float32, error) {
	return f(ctx, t)
}

type ProcessingError struct {
	Message string
	Cause   error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ProcessingError) Is(target error) bool {
	return target == ErrInference
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// ModelError reports a model artifact that could not be loaded.
type ModelError struct {
	Path  string
	Cause error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Path, e.Cause)
}

func (e *ModelError) Is(target error) bool {
	return target == ErrModelLoad
}

func (e *ModelError) Unwrap() error {
	return e.Cause
}

// Probability validates a raw model output and clamps it into [0,1].
func Probability(v float32) (float32, error) {
	if math.IsNaN(float64(v)) {
		return 0, &ProcessingError{Message: "model returned NaN"}
	}
	return float32(math.Min(1, math.Max(0, float64(v)))), nil
}

// Predict runs the full pipeline on a still image.
func Predict(ctx context.Context, c Classifier, img image.Image, timings *models.ProcessingTimings) (models.Prediction, error) {
	prepStart := time.Now()
	t := PreprocessImage(img)
	if timings != nil {
		timings.Preprocess = time.Since(prepStart)
	}

	inferStart := time.Now()
	p, err := c.Infer(ctx, t)
	if timings != nil {
		timings.Inference = time.Since(inferStart)
	}
	if err != nil {
		if errors.Is(err, ErrInference) {
			return models.Prediction{}, err
		}
		return models.Prediction{}, &ProcessingError{Message: "model inference", Cause: err}
	}

	return models.Prediction{Label: LabelFor(p), Probability: p}, nil
}
