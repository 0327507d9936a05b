package session

import (
	"sync"
	"time"
)

// Tick is an informational countdown event.
type Tick struct {
	Elapsed   time.Duration
	Remaining time.Duration
}

// Clock is a fixed-duration countdown. It fires a tick every interval and
// closes Done exactly once when the duration has passed.
type Clock struct {
	duration time.Duration
	interval time.Duration

	done   chan struct{}
	stop   chan struct{}
	exited chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewClock returns a stopped countdown of the given duration and tick interval.
func NewClock(duration, interval time.Duration) *Clock {
	return &Clock{
		duration: duration,
		interval: interval,
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

// Start begins the countdown on its own goroutine. onTick may be nil.
// Calling Start more than once, or after Stop, has no effect.
func (c *Clock) Start(onTick func(Tick)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return
	}
	c.started = true
	go c.run(onTick)
}

// Done is closed when the countdown completes. It is never closed for a
// countdown that was stopped early.
func (c *Clock) Done() <-chan struct{} {
	return c.done
}

// Stop cancels further events and waits for the clock goroutine to exit.
// It is idempotent.
func (c *Clock) Stop() {
	c.mu.Lock()
	started := c.started
	if !c.stopped {
		c.stopped = true
		close(c.stop)
	}
	c.mu.Unlock()

	if started {
		<-c.exited
	}
}

func (c *Clock) run(onTick func(Tick)) {
	defer close(c.exited)

	start := time.Now()
	deadline := time.NewTimer(c.duration)
	defer deadline.Stop()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-deadline.C:
			close(c.done)
			return
		case now := <-ticker.C:
			elapsed := now.Sub(start)
			if elapsed >= c.duration {
				continue // completion is due; let the deadline fire
			}
			if onTick != nil {
				onTick(Tick{Elapsed: elapsed, Remaining: c.duration - elapsed})
			}
		}
	}
}
