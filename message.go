package main

import "github.com/Tutortoise/mask-stream/models"

const (
	MsgMaskDetected = "Mask detected. Thank you for keeping everyone around you safe."

	MsgNoMaskDetected = "No mask detected. Please put on a mask that covers your nose and mouth."
)

func getClassificationMessage(label models.Label) string {
	if label == models.LabelMask {
		return MsgMaskDetected
	}
	return MsgNoMaskDetected
}
