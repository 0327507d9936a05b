package session

import (
	"sync"
	"testing"
)

func TestPeakTrackerNeverDecreases(t *testing.T) {
	var p PeakTracker
	readings := []int{10, 83, 96, 78, 0, 50}
	want := []int{10, 83, 96, 96, 96, 96}

	for i, r := range readings {
		if got := p.Update(r); got != want[i] {
			t.Errorf("Update(%d) = %d, want %d", r, got, want[i])
		}
	}
	if p.Peak() != 96 {
		t.Errorf("expected peak 96, got %d", p.Peak())
	}
	if p.Samples() != len(readings) {
		t.Errorf("expected %d samples, got %d", len(readings), p.Samples())
	}
}

func TestPeakTrackerConcurrentUpdates(t *testing.T) {
	var p PeakTracker
	var wg sync.WaitGroup
	for i := range 101 {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			p.Update(v)
		}(i)
	}
	wg.Wait()

	if p.Peak() != 100 {
		t.Errorf("expected peak 100, got %d", p.Peak())
	}
	if p.Samples() != 101 {
		t.Errorf("expected 101 samples, got %d", p.Samples())
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		peak int
		want int
	}{
		{0, 0},
		{1, 10},
		{96, 960},
		{100, 1000},
		{150, 1000},
		{-5, 0},
	}
	for _, tt := range tests {
		if got := Score(tt.peak); got != tt.want {
			t.Errorf("Score(%d) = %d, want %d", tt.peak, got, tt.want)
		}
	}
}
