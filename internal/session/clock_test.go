package session

import (
	"sync"
	"testing"
	"time"
)

func TestClockTicksThenCompletes(t *testing.T) {
	c := NewClock(250*time.Millisecond, 50*time.Millisecond)

	var (
		mu    sync.Mutex
		ticks []Tick
	)
	start := time.Now()
	c.Start(func(tick Tick) {
		mu.Lock()
		ticks = append(ticks, tick)
		mu.Unlock()
	})

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("clock did not complete")
	}
	if elapsed := time.Since(start); elapsed < 250*time.Millisecond {
		t.Errorf("clock completed early after %v", elapsed)
	}
	c.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(ticks) == 0 {
		t.Fatal("expected at least one tick")
	}
	for i, tick := range ticks {
		if tick.Remaining <= 0 || tick.Remaining > 250*time.Millisecond {
			t.Errorf("tick %d remaining %v out of range", i, tick.Remaining)
		}
		if tick.Elapsed+tick.Remaining != 250*time.Millisecond {
			t.Errorf("tick %d elapsed %v and remaining %v do not add up", i, tick.Elapsed, tick.Remaining)
		}
		if i > 0 && tick.Remaining >= ticks[i-1].Remaining {
			t.Errorf("tick %d remaining did not decrease", i)
		}
	}
}

func TestClockStopBeforeCompletion(t *testing.T) {
	c := NewClock(time.Second, 10*time.Millisecond)

	var (
		mu    sync.Mutex
		count int
	)
	c.Start(func(Tick) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	time.Sleep(50 * time.Millisecond)
	c.Stop()

	mu.Lock()
	stopped := count
	mu.Unlock()

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != stopped {
		t.Errorf("clock ticked %d times after Stop", count-stopped)
	}

	select {
	case <-c.Done():
		t.Error("Done closed for a stopped clock")
	default:
	}
}

func TestClockStopIsIdempotent(t *testing.T) {
	c := NewClock(time.Second, 100*time.Millisecond)
	c.Stop()
	c.Stop()

	// Start after Stop is ignored.
	c.Start(nil)
	c.Stop()

	started := NewClock(time.Second, 100*time.Millisecond)
	started.Start(nil)
	started.Stop()
	started.Stop()
}

func TestClockCompletesOnce(t *testing.T) {
	c := NewClock(20*time.Millisecond, 5*time.Millisecond)
	c.Start(nil)
	c.Start(nil)

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("clock did not complete")
	}
	// Done stays closed; Stop after completion returns immediately.
	<-c.Done()
	c.Stop()
}
