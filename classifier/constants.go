package classifier

const (
	InputWidth    = 224
	InputHeight   = 224
	InputChannels = 3

	// MaskThreshold is exclusive: a probability equal to it is "No Mask".
	MaskThreshold = 0.5
)
