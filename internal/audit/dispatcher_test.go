package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu     sync.Mutex
	events []int
	block  chan struct{}
	fail   bool
}

func (s *recordingSink) Record(_ context.Context, event int) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if s.fail {
		return errors.New("sink down")
	}
	return nil
}

func (s *recordingSink) snapshot() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.events...)
}

func TestDispatcherDeliversAndDrainsOnClose(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher[int](Config{BufferSize: 16}, sink, nil)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), i)
	}
	d.Close()

	got := sink.snapshot()
	if len(got) != 10 {
		t.Fatalf("expected 10 delivered events, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("expected ordered delivery, got %v", got)
		}
	}
}

func TestDispatcherDropIfFullCountsDrops(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher[int](Config{BufferSize: 1, DropIfFull: true}, sink, nil)

	// first event is picked up by the worker and blocks inside the sink,
	// the second fills the buffer, the rest are dropped.
	d.Emit(context.Background(), 0)
	deadline := time.Now().Add(time.Second)
	for len(d.ch) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	d.Emit(context.Background(), 1)
	d.Emit(context.Background(), 2)
	d.Emit(context.Background(), 3)

	if got := d.Dropped(); got != 2 {
		t.Fatalf("expected 2 dropped events, got %d", got)
	}

	close(sink.block)
	d.Close()
	if got := len(sink.snapshot()); got != 2 {
		t.Fatalf("expected 2 delivered events, got %d", got)
	}
}

func TestDispatcherReportsSinkErrors(t *testing.T) {
	sink := &recordingSink{fail: true}
	var (
		mu     sync.Mutex
		failed []int
	)
	d := NewDispatcher[int](Config{BufferSize: 4}, sink, func(event int, err error) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, event)
	})

	d.Emit(context.Background(), 7)
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(failed) != 1 || failed[0] != 7 {
		t.Fatalf("expected failure callback for event 7, got %v", failed)
	}
}

func TestDispatcherIgnoresEmitAfterClose(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher[int](Config{BufferSize: 1}, sink, nil)
	d.Close()
	d.Close()

	d.Emit(context.Background(), 1)
	if got := len(sink.snapshot()); got != 0 {
		t.Fatalf("expected no delivery after close, got %d", got)
	}

	var nilDispatcher *Dispatcher[int]
	nilDispatcher.Emit(context.Background(), 1)
	nilDispatcher.Close()
	if nilDispatcher.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}
