package stream

import (
	"context"
	"testing"
	"time"
)

func TestSlotKeepsLatestFrame(t *testing.T) {
	s := NewSlot()
	for i := uint64(1); i <= 3; i++ {
		s.Publish(&Rendered{Seq: i})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	r, ok := s.Next(ctx)
	if !ok || r.Seq != 3 {
		t.Fatalf("Next = %+v, %v; want seq 3", r, ok)
	}
	if got := s.Drops(); got != 2 {
		t.Errorf("drops = %d, want 2", got)
	}

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	if _, ok := s.Next(short); ok {
		t.Error("Next returned a frame from an empty slot")
	}
}

func TestSlotCloseWakesReader(t *testing.T) {
	s := NewSlot()
	done := make(chan bool)
	go func() {
		_, ok := s.Next(context.Background())
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	s.Close()
	s.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Next reported a frame after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("reader not woken by Close")
	}

	s.Publish(&Rendered{Seq: 1})
	if _, ok := s.Next(context.Background()); ok {
		t.Error("closed slot accepted a frame")
	}
}

func TestHubFanOut(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()

	h.Render(&Rendered{Seq: 7})
	h.Report(Event{Type: EventMessage, Message: MsgStarted})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, sub := range []*Subscriber{a, b} {
		r, ok := sub.Frames.Next(ctx)
		if !ok || r.Seq != 7 {
			t.Errorf("subscriber %s frame = %+v, %v", sub.ID, r, ok)
		}
		select {
		case e := <-sub.Events:
			if e.Message != MsgStarted {
				t.Errorf("subscriber %s event = %+v", sub.ID, e)
			}
		default:
			t.Errorf("subscriber %s got no event", sub.ID)
		}
	}

	if m := h.Metrics(); m.Clients != 2 || m.FramesRendered != 1 {
		t.Errorf("metrics = %+v", m)
	}

	h.Unsubscribe(a)
	h.Unsubscribe(a)
	if m := h.Metrics(); m.Clients != 1 {
		t.Errorf("clients after unsubscribe = %d, want 1", m.Clients)
	}
}

func TestHubSeedsNewSubscriber(t *testing.T) {
	h := NewHub()
	h.Report(Event{Type: EventMessage, Message: MsgStarted})
	h.Render(&Rendered{Seq: 1})
	h.Render(&Rendered{Seq: 2})

	sub := h.Subscribe()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if r, ok := sub.Frames.Next(ctx); !ok || r.Seq != 2 {
		t.Errorf("seed frame = %+v, %v; want seq 2", r, ok)
	}
	if e := <-sub.Events; e.Message != MsgStarted {
		t.Errorf("seed event = %+v", e)
	}

	h.Report(Event{Type: EventState, State: Stopped})
	late := h.Subscribe()
	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	if _, ok := late.Frames.Next(short); ok {
		t.Error("stale frame delivered after stop")
	}
}

func TestHubDropsOldestEvents(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe()

	total := eventBuffer + 5
	for i := 0; i < total; i++ {
		h.Report(Event{Type: EventError, Message: MsgReadFailed, Seq: uint64(i)})
	}

	first := <-sub.Events
	if first.Seq != 5 {
		t.Errorf("oldest queued seq = %d, want 5", first.Seq)
	}
	if m := h.Metrics(); m.EventsDropped != 5 {
		t.Errorf("events dropped = %d, want 5", m.EventsDropped)
	}
	if got := len(h.History()); got != total {
		t.Errorf("history = %d, want %d", got, total)
	}
}
