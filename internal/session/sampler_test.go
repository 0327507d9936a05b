package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-loudmeter/internal/audio"
)

func TestSamplerPublishesLoudness(t *testing.T) {
	capture := &fakeCapture{peaks: []uint16{0, 1, 16384, 32767}}

	var (
		mu       sync.Mutex
		readings []int
	)
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSampler(capture, 5*time.Millisecond, 3, func(loudness int) {
		mu.Lock()
		defer mu.Unlock()
		readings = append(readings, loudness)
		if len(readings) == 4 {
			cancel()
		}
	})

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []int{0, audio.ToLoudness(1), audio.ToLoudness(16384), 100}
	if len(readings) < len(want) {
		t.Fatalf("expected %d readings, got %v", len(want), readings)
	}
	for i, w := range want {
		if readings[i] != w {
			t.Errorf("reading %d = %d, want %d", i, readings[i], w)
		}
	}
}

func TestSamplerStopsWithinInterval(t *testing.T) {
	capture := &fakeCapture{peaks: []uint16{100}}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	s := NewSampler(capture, 20*time.Millisecond, 3, func(int) {})
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("sampler did not stop within one interval")
	}

	polls, _ := capture.counts()
	time.Sleep(60 * time.Millisecond)
	if after, _ := capture.counts(); after != polls {
		t.Errorf("capture polled after Run returned")
	}
}

func TestSamplerTerminalError(t *testing.T) {
	cause := &audio.DeviceError{Op: "peak", Kind: audio.ErrDeviceIO}
	capture := &fakeCapture{pollErr: cause}
	s := NewSampler(capture, time.Millisecond, 3, func(int) {
		t.Error("unexpected reading")
	})

	err := s.Run(context.Background())
	if !errors.Is(err, audio.ErrDeviceIO) {
		t.Fatalf("expected ErrDeviceIO, got %v", err)
	}
	if polls, _ := capture.counts(); polls != 1 {
		t.Errorf("expected a single poll, got %d", polls)
	}
}

func TestSamplerToleratesTransientErrors(t *testing.T) {
	capture := &fakeCapture{pollErr: &audio.DeviceError{Op: "peak", Kind: audio.ErrDeviceIO, Transient: true}}
	s := NewSampler(capture, time.Millisecond, 4, func(int) {})

	err := s.Run(context.Background())
	if !errors.Is(err, audio.ErrDeviceIO) {
		t.Fatalf("expected ErrDeviceIO after repeated transient errors, got %v", err)
	}
	if polls, _ := capture.counts(); polls != 4 {
		t.Errorf("expected 4 polls before giving up, got %d", polls)
	}
}

func TestSamplerTransientErrorResets(t *testing.T) {
	capture := &flakyCapture{}
	ctx, cancel := context.WithCancel(context.Background())

	var count int
	s := NewSampler(capture, time.Millisecond, 2, func(int) {
		count++
		if count == 5 {
			cancel()
		}
	})
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

// flakyCapture fails every other poll with a transient error.
type flakyCapture struct {
	polls int
}

func (c *flakyCapture) Peak() (uint16, error) {
	c.polls++
	if c.polls%2 == 1 {
		return 0, &audio.DeviceError{Op: "peak", Kind: audio.ErrDeviceIO, Transient: true}
	}
	return 1000, nil
}

func (c *flakyCapture) Close() error { return nil }
