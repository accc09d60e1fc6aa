// Package stream runs the capture, classify and display loop.
package stream

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"sync"
	"time"

	"github.com/Tutortoise/mask-stream/camera"
	"github.com/Tutortoise/mask-stream/classifier"
	"github.com/Tutortoise/mask-stream/logging"
	"github.com/Tutortoise/mask-stream/models"
	"github.com/Tutortoise/mask-stream/overlay"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

type State string

const (
	Stopped State = "stopped"
	Running State = "running"
)

type Config struct {
	Device                   int
	ReadErrorDelay           time.Duration
	MaxConsecutiveReadErrors int // 0 = unlimited
	JPEGQuality              int
}

// Outcome is the result of a Start or Stop request.
type Outcome struct {
	OK      bool   `json:"ok"`
	State   State  `json:"state"`
	Message string `json:"message"`
	Err     error  `json:"-"` // set when the request failed, e.g. camera.ErrDeviceUnavailable
}

type Status struct {
	State           State              `json:"state"`
	RunID           string             `json:"run_id,omitempty"`
	Device          int                `json:"device"`
	StartedAt       *time.Time         `json:"started_at,omitempty"`
	Frames          uint64             `json:"frames"`
	ReadErrors      uint64             `json:"read_errors"`
	InferenceErrors uint64             `json:"inference_errors"`
	LastPrediction  *models.Prediction `json:"last_prediction,omitempty"`
}

type run struct {
	id      string
	cam     *camera.Session
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

type counters struct {
	frames          uint64
	readErrors      uint64
	inferenceErrors uint64
	last            *models.Prediction
}

// Controller owns the camera session and the loop goroutine.
// State is Running exactly while a run is held.
type Controller struct {
	cfg  Config
	open camera.Opener
	clf  classifier.Classifier
	ann  *overlay.Annotator
	sink Sink

	ops sync.Mutex // serializes Start, Stop and Close
	mu  sync.Mutex
	run *run

	statsMu sync.Mutex
	stats   counters
}

type discard struct{}

func (discard) Render(*Rendered) {}
func (discard) Report(Event)     {}

func New(cfg Config, open camera.Opener, clf classifier.Classifier, ann *overlay.Annotator, sink Sink) *Controller {
	if sink == nil {
		sink = discard{}
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = jpeg.DefaultQuality
	}
	return &Controller{
		cfg:  cfg,
		open: open,
		clf:  clf,
		ann:  ann,
		sink: sink,
	}
}

// Start opens the camera and launches the loop. Calling it while running is a no-op.
func (c *Controller) Start() Outcome {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	running := c.run != nil
	c.mu.Unlock()
	if running {
		c.message(MsgAlreadyRunning)
		return Outcome{OK: false, State: Running, Message: MsgAlreadyRunning}
	}

	cam, err := camera.Open(c.open, c.cfg.Device)
	if err != nil {
		logging.Warn("camera open failed", "device", c.cfg.Device, "error", err)
		c.fail(MsgOpenFailed)
		c.fail(MsgStartFailed)
		return Outcome{OK: false, State: Stopped, Message: MsgStartFailed, Err: err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:      uuid.NewString(),
		cam:     cam,
		cancel:  cancel,
		done:    make(chan struct{}),
		started: time.Now(),
	}

	c.statsMu.Lock()
	c.stats = counters{}
	c.statsMu.Unlock()

	c.mu.Lock()
	c.run = r
	c.mu.Unlock()

	logging.Info("camera started", "device", c.cfg.Device, "run_id", r.id)
	c.message(MsgStarted)
	c.state(Running)

	go c.loop(ctx, r)

	return Outcome{OK: true, State: Running, Message: MsgStarted}
}

// Stop ends the loop at its next iteration boundary and releases the camera.
// Calling it while stopped performs no device operation.
func (c *Controller) Stop() Outcome {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	r := c.run
	c.run = nil
	c.mu.Unlock()

	if r == nil {
		c.message(MsgNotRunning)
		return Outcome{OK: false, State: Stopped, Message: MsgNotRunning}
	}

	r.cancel()
	<-r.done

	logging.Info("camera stopped", "device", c.cfg.Device, "run_id", r.id)
	c.message(MsgStopped)
	c.state(Stopped)

	return Outcome{OK: true, State: Stopped, Message: MsgStopped}
}

// Close stops a running loop. It is safe to call at any time.
func (c *Controller) Close() {
	c.mu.Lock()
	running := c.run != nil
	c.mu.Unlock()

	if running {
		c.Stop()
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run != nil {
		return Running
	}
	return Stopped
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()

	st := Status{State: Stopped, Device: c.cfg.Device}
	if r != nil {
		started := r.started
		st.State = Running
		st.RunID = r.id
		st.StartedAt = &started
	}

	c.statsMu.Lock()
	st.Frames = c.stats.frames
	st.ReadErrors = c.stats.readErrors
	st.InferenceErrors = c.stats.inferenceErrors
	if c.stats.last != nil {
		last := *c.stats.last
		st.LastPrediction = &last
	}
	c.statsMu.Unlock()

	return st
}

func (c *Controller) loop(ctx context.Context, r *run) {
	defer c.release(r)

	failures := 0
	var seq uint64

	for ctx.Err() == nil {
		timings := &models.ProcessingTimings{}
		start := time.Now()

		frame, err := r.cam.Read()
		timings.Read = time.Since(start)
		if err != nil {
			failures++
			c.statsMu.Lock()
			c.stats.readErrors++
			c.statsMu.Unlock()

			logging.Debug("frame read failed", "run_id", r.id, "consecutive", failures, "error", err)
			c.fail(MsgReadFailed)

			if limit := c.cfg.MaxConsecutiveReadErrors; limit > 0 && failures >= limit {
				logging.Warn("too many consecutive read failures", "run_id", r.id, "count", failures)
				return
			}
			sleep(ctx, c.cfg.ReadErrorDelay)
			continue
		}
		failures = 0

		seq++
		timings.RequestID = fmt.Sprintf("%s-%d", r.id, seq)
		rendered, err := c.render(ctx, frame, timings)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.statsMu.Lock()
			c.stats.inferenceErrors++
			c.statsMu.Unlock()

			logging.Warn("frame classification failed", "run_id", r.id, "seq", seq, "error", err)
			c.fail(MsgClassifyFailed)
			continue
		}
		rendered.RunID = r.id
		rendered.Seq = seq
		rendered.CapturedAt = start

		timings.Total = time.Since(start)
		logTimings(timings)

		c.statsMu.Lock()
		c.stats.frames++
		pred := rendered.Prediction
		c.stats.last = &pred
		c.statsMu.Unlock()

		c.sink.Render(rendered)
	}
}

// render classifies the frame and draws the label onto an RGB copy of it.
func (c *Controller) render(ctx context.Context, frame camera.Frame, timings *models.ProcessingTimings) (*Rendered, error) {
	img := frame.RGB()

	pred, err := classifier.Predict(ctx, c.clf, img, timings)
	if err != nil {
		return nil, err
	}

	overlayStart := time.Now()
	if c.ann != nil {
		c.ann.Annotate(img, string(pred.Label), classifier.LabelColor(pred.Label))
	}
	timings.Overlay = time.Since(overlayStart)

	encodeStart := time.Now()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(c.cfg.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	timings.Encode = time.Since(encodeStart)

	return &Rendered{JPEG: buf.Bytes(), Prediction: pred}, nil
}

// release runs when the loop exits. If the run is still registered the loop
// halted on its own: the run stays registered until the camera is closed and
// the halt is reported, so a concurrent Start sees Running until then.
func (c *Controller) release(r *run) {
	if err := r.cam.Close(); err != nil {
		logging.Warn("camera close failed", "run_id", r.id, "error", err)
	}

	c.mu.Lock()
	if c.run == r {
		c.fail(MsgHalted)
		c.state(Stopped)
		c.run = nil
	}
	c.mu.Unlock()

	r.cancel()
	close(r.done)
}

func (c *Controller) message(msg string) {
	c.sink.Report(Event{Type: EventMessage, Message: msg, Time: time.Now()})
}

func (c *Controller) fail(msg string) {
	c.sink.Report(Event{Type: EventError, Message: msg, Time: time.Now()})
}

func (c *Controller) state(s State) {
	c.sink.Report(Event{Type: EventState, State: s, Time: time.Now()})
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func logTimings(t *models.ProcessingTimings) {
	logging.Debug("frame processed",
		"request_id", t.RequestID,
		"read", t.Read,
		"preprocess", t.Preprocess,
		"inference", t.Inference,
		"overlay", t.Overlay,
		"encode", t.Encode,
		"total", t.Total,
	)
}
