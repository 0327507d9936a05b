package session

import (
	"log/slog"
	"sync"
)

// Dispatcher delivers observer callbacks on the caller's designated context,
// such as a UI event loop.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatchFunc adapts a function to the Dispatcher interface.
type DispatchFunc func(fn func())

// Dispatch calls f(fn).
func (f DispatchFunc) Dispatch(fn func()) { f(fn) }

// SerialDispatcher runs callbacks one at a time, in submission order, on a
// dedicated goroutine. It is safe for concurrent use.
type SerialDispatcher struct {
	queue chan func()
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// NewSerialDispatcher starts a dispatcher with the given queue capacity.
func NewSerialDispatcher(capacity int) *SerialDispatcher {
	d := &SerialDispatcher{
		queue: make(chan func(), capacity),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go d.loop()
	return d
}

// Dispatch queues fn. It blocks while the queue is full and drops fn after Close.
func (d *SerialDispatcher) Dispatch(fn func()) {
	select {
	case <-d.stop:
		return
	default:
	}
	select {
	case d.queue <- fn:
	case <-d.stop:
	}
}

// Close runs the callbacks already queued, then stops the dispatcher goroutine.
func (d *SerialDispatcher) Close() {
	d.once.Do(func() { close(d.stop) })
	<-d.done
}

func (d *SerialDispatcher) loop() {
	defer close(d.done)
	for {
		select {
		case fn := <-d.queue:
			d.run(fn)
		case <-d.stop:
			for {
				select {
				case fn := <-d.queue:
					d.run(fn)
				default:
					return
				}
			}
		}
	}
}

// run executes fn, recovering from observer panics.
func (d *SerialDispatcher) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in session observer", "panic", r)
		}
	}()
	fn()
}
