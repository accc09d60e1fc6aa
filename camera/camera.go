// Package camera owns the lifecycle of a video input device.
package camera

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrDeviceUnavailable = errors.New("camera: device unavailable")
	ErrFrameRead         = errors.New("camera: could not read frame")
)

// Device is an opened video input.
type Device interface {
	Read() (Frame, error)
	Close() error
}

// Opener opens the device with the given index.
type Opener func(index int) (Device, error)

// DeviceError reports a failure to open a device.
type DeviceError struct {
	Index int
	Cause error
}

func (e *DeviceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("open camera %d: %v", e.Index, e.Cause)
	}
	return fmt.Sprintf("open camera %d", e.Index)
}

func (e *DeviceError) Is(target error) bool {
	return target == ErrDeviceUnavailable
}

func (e *DeviceError) Unwrap() error {
	return e.Cause
}

// Session is an open camera. Close is idempotent and safe on a nil Session.
type Session struct {
	index int

	mu     sync.Mutex
	dev    Device
	closed bool
}

// Open opens the device at index. Failures match ErrDeviceUnavailable.
func Open(open Opener, index int) (*Session, error) {
	if open == nil {
		return nil, &DeviceError{Index: index, Cause: errors.New("no opener configured")}
	}

	dev, err := open(index)
	if err != nil {
		return nil, &DeviceError{Index: index, Cause: err}
	}
	if dev == nil {
		return nil, &DeviceError{Index: index}
	}

	return &Session{index: index, dev: dev}, nil
}

// Index returns the device index the session was opened with.
func (s *Session) Index() int {
	return s.index
}

// Read captures one frame. Failures match ErrFrameRead.
func (s *Session) Read() (Frame, error) {
	s.mu.Lock()
	dev, closed := s.dev, s.closed
	s.mu.Unlock()

	if closed {
		return Frame{}, fmt.Errorf("%w: session closed", ErrFrameRead)
	}

	f, err := dev.Read()
	if err != nil {
		if errors.Is(err, ErrFrameRead) {
			return Frame{}, err
		}
		return Frame{}, fmt.Errorf("%w: %v", ErrFrameRead, err)
	}
	if !f.Valid() {
		return Frame{}, fmt.Errorf("%w: empty frame", ErrFrameRead)
	}

	return f, nil
}

// Close releases the device.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.dev.Close(); err != nil {
		return fmt.Errorf("close camera %d: %w", s.index, err)
	}
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
