package stream

// User-visible messages reported by the controller.
const (
	MsgStarted        = "Camera started."
	MsgStartFailed    = "Failed to start the camera."
	MsgAlreadyRunning = "Camera is already running."
	MsgStopped        = "Camera stopped."
	MsgNotRunning     = "Camera is not running."

	MsgOpenFailed     = "Error: Could not open video stream."
	MsgReadFailed     = "Error: Could not read frame."
	MsgClassifyFailed = "Error: Failed to classify frame."
	MsgHalted         = "Error: Too many consecutive frame read failures, camera stopped."

	MsgIdle = "Press 'Start Stream' to begin video capture."
)
