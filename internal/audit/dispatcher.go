package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Sink receives dispatched events.
type Sink[T any] interface {
	Record(ctx context.Context, event T) error
}

// Config controls dispatcher buffering behavior.
type Config struct {
	BufferSize int
	DropIfFull bool
}

// Dispatcher asynchronously forwards events to a sink. Sink errors are
// handed to the onError callback from the dispatch goroutine.
type Dispatcher[T any] struct {
	cfg       Config
	sink      Sink[T]
	onError   func(T, error)
	ch        chan T
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts the dispatch goroutine. onError may be nil.
func NewDispatcher[T any](cfg Config, sink Sink[T], onError func(T, error)) *Dispatcher[T] {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if onError == nil {
		onError = func(T, error) {}
	}

	d := &Dispatcher[T]{
		cfg:     cfg,
		sink:    sink,
		onError: onError,
		ch:      make(chan T, cfg.BufferSize),
		done:    make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher[T]) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher[T]) deliver(event T) {
	if d.sink == nil {
		return
	}
	if err := d.sink.Record(context.Background(), event); err != nil {
		d.onError(event, err)
	}
}

// Emit queues event. With DropIfFull a full buffer drops the event and
// bumps the drop counter; otherwise Emit waits for room, ctx, or Close.
func (d *Dispatcher[T]) Emit(ctx context.Context, event T) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.done:
	}
}

// Close stops accepting events and drains what is already queued.
func (d *Dispatcher[T]) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns the number of events that never reached the sink queue.
func (d *Dispatcher[T]) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
