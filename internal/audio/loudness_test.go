package audio

import (
	"math"
	"testing"
)

func TestToLoudnessBounds(t *testing.T) {
	tests := []struct {
		name      string
		amplitude uint16
		want      int
	}{
		{"silence", 0, 0},
		{"full scale", 32767, 100},
		{"above reference", math.MaxUint16, 100},
		{"smallest signal", 1, 6},
		{"half scale", 16384, 94},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToLoudness(tt.amplitude); got != tt.want {
				t.Errorf("ToLoudness(%d) = %d, want %d", tt.amplitude, got, tt.want)
			}
		})
	}
}

func TestToLoudnessRangeAndMonotonic(t *testing.T) {
	prev := ToLoudness(0)
	for a := 1; a <= math.MaxUint16; a++ {
		got := ToLoudness(uint16(a))
		if got < MinLoudness || got > MaxLoudness {
			t.Fatalf("ToLoudness(%d) = %d, outside [%d, %d]", a, got, MinLoudness, MaxLoudness)
		}
		if got < prev {
			t.Fatalf("ToLoudness not monotonic at %d: %d < %d", a, got, prev)
		}
		prev = got
	}
}

func TestClampLoudness(t *testing.T) {
	if got := clampLoudness(-12); got != MinLoudness {
		t.Errorf("clampLoudness(-12) = %d, want %d", got, MinLoudness)
	}
	if got := clampLoudness(140); got != MaxLoudness {
		t.Errorf("clampLoudness(140) = %d, want %d", got, MaxLoudness)
	}
}
