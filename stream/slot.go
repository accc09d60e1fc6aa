package stream

import (
	"context"
	"sync"
)

// Slot is a single-frame mailbox: a new frame replaces an unconsumed one.
type Slot struct {
	mu     sync.Mutex
	frame  *Rendered
	notify chan struct{}
	closed bool

	published uint64
	drops     uint64
}

func NewSlot() *Slot {
	return &Slot{notify: make(chan struct{}, 1)}
}

// Publish stores r, dropping any frame not yet consumed. Never blocks.
func (s *Slot) Publish(r *Rendered) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.frame != nil {
		s.drops++
	}
	s.frame = r
	s.published++

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until a frame is available, the slot is closed or ctx is done.
func (s *Slot) Next(ctx context.Context) (*Rendered, bool) {
	for {
		s.mu.Lock()
		if f := s.frame; f != nil {
			s.frame = nil
			s.mu.Unlock()
			return f, true
		}
		if s.closed {
			s.mu.Unlock()
			return nil, false
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// Close wakes any waiting consumer. Pending frames are discarded.
func (s *Slot) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.frame = nil
	close(s.notify)
}

// Drops returns how many frames were replaced before being consumed.
func (s *Slot) Drops() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drops
}
