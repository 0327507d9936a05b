package session

import (
	"context"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-loudmeter/internal/audio"
	"github.com/oszuidwest/zwfm-loudmeter/internal/types"
)

// fakeSource opens scripted captures.
type fakeSource struct {
	mu      sync.Mutex
	peaks   []uint16 // returned in order; the last value repeats
	pollErr error    // returned by every Peak call when set
	openErr error
	opens   int
	capture *fakeCapture
}

func (s *fakeSource) Open(_ context.Context, _ string) (audio.Capture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.capture = &fakeCapture{peaks: s.peaks, pollErr: s.pollErr}
	return s.capture, nil
}

func (s *fakeSource) lastCapture() *fakeCapture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture
}

type fakeCapture struct {
	mu      sync.Mutex
	peaks   []uint16
	pollErr error
	polls   int
	closes  int
}

func (c *fakeCapture) Peak() (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls++
	if c.pollErr != nil {
		return 0, c.pollErr
	}
	if len(c.peaks) == 0 {
		return 0, nil
	}
	v := c.peaks[0]
	if len(c.peaks) > 1 {
		c.peaks = c.peaks[1:]
	}
	return v, nil
}

func (c *fakeCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeCapture) counts() (polls, closes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polls, c.closes
}

// recorder is an Observer that keeps every event.
type recorder struct {
	mu        sync.Mutex
	readings  []int
	final     []int // readings delivered with recording=false
	ticks     []time.Duration
	results   []types.SessionResult
	failures  []types.SessionFailure
	completed chan struct{}
}

func newRecorder() *recorder {
	return &recorder{completed: make(chan struct{}, 4)}
}

func (r *recorder) OnReading(loudness int, recording bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if recording {
		r.readings = append(r.readings, loudness)
	} else {
		r.final = append(r.final, loudness)
	}
}

func (r *recorder) OnTick(remaining time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, remaining)
}

func (r *recorder) OnComplete(result types.SessionResult) {
	r.mu.Lock()
	r.results = append(r.results, result)
	r.mu.Unlock()
	r.completed <- struct{}{}
}

func (r *recorder) OnFailed(failure types.SessionFailure) {
	r.mu.Lock()
	r.failures = append(r.failures, failure)
	r.mu.Unlock()
	r.completed <- struct{}{}
}

// events is a point-in-time copy of what a recorder saw.
type events struct {
	readings []int
	final    []int
	ticks    []time.Duration
	results  []types.SessionResult
	failures []types.SessionFailure
}

func (r *recorder) snapshot() events {
	r.mu.Lock()
	defer r.mu.Unlock()
	return events{
		readings: append([]int(nil), r.readings...),
		final:    append([]int(nil), r.final...),
		ticks:    append([]time.Duration(nil), r.ticks...),
		results:  append([]types.SessionResult(nil), r.results...),
		failures: append([]types.SessionFailure(nil), r.failures...),
	}
}

// syncDispatcher runs callbacks on the calling goroutine.
var syncDispatcher = DispatchFunc(func(fn func()) { fn() })

func testConfig(t interface{ TempDir() string }) Config {
	return Config{
		Duration:      300 * time.Millisecond,
		TickInterval:  100 * time.Millisecond,
		PollInterval:  10 * time.Millisecond,
		MaxPollErrors: 3,
		ArtifactDir:   t.TempDir(),
	}
}
