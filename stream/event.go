package stream

import (
	"time"

	"github.com/Tutortoise/mask-stream/models"
)

type EventType string

const (
	EventMessage    EventType = "message"
	EventError      EventType = "error"
	EventState      EventType = "state"
	EventPrediction EventType = "prediction"
)

// Event is a transient notification for the UI.
type Event struct {
	Type        EventType    `json:"type"`
	Message     string       `json:"message,omitempty"`
	State       State        `json:"state,omitempty"`
	Label       models.Label `json:"label,omitempty"`
	Probability *float32     `json:"probability,omitempty"`
	Seq         uint64       `json:"seq,omitempty"`
	Time        time.Time    `json:"time"`
}

// Rendered is one annotated frame ready for display.
type Rendered struct {
	RunID      string
	Seq        uint64
	JPEG       []byte
	Prediction models.Prediction
	CapturedAt time.Time
}

// PredictionEvent describes the frame for clients that render labels themselves.
func (r *Rendered) PredictionEvent() Event {
	p := r.Prediction.Probability
	return Event{
		Type:        EventPrediction,
		Label:       r.Prediction.Label,
		Probability: &p,
		Seq:         r.Seq,
		Time:        r.CapturedAt,
	}
}

// Sink receives everything the controller wants shown.
type Sink interface {
	Render(r *Rendered)
	Report(e Event)
}
