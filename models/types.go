package models

import "time"

type Label string

const (
	LabelMask   Label = "Mask"
	LabelNoMask Label = "No Mask"
)

type Prediction struct {
	Label       Label   `json:"label"`
	Probability float32 `json:"probability"`
}

type ProcessingTimings struct {
	RequestID  string
	Read       time.Duration
	Preprocess time.Duration
	Inference  time.Duration
	Overlay    time.Duration
	Encode     time.Duration
	Total      time.Duration
}
