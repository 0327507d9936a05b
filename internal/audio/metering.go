// Package audio provides microphone capture, peak metering and the
// amplitude-to-loudness conversion used by monitoring sessions.
package audio

import (
	"encoding/binary"
	"sync"
)

// MaxAmplitude is the largest peak amplitude reported for 16-bit audio.
const MaxAmplitude = 32767

// PeakMeter accumulates the absolute peak of S16LE PCM data between reads.
// It is safe for concurrent use.
type PeakMeter struct {
	mu      sync.Mutex
	peak    uint16
	samples int
}

// Process scans S16LE samples in buf[:n] and raises the held peak. n must
// be even; callers align reads to whole samples.
func (m *PeakMeter) Process(buf []byte, n int) {
	var peak uint16
	for i := 0; i+1 < n; i += 2 {
		if a := absSample(int16(binary.LittleEndian.Uint16(buf[i:]))); a > peak {
			peak = a
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if peak > m.peak {
		m.peak = peak
	}
	m.samples += n / 2
}

// Take returns the peak since the previous call and resets it.
func (m *PeakMeter) Take() (peak uint16, samples int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	peak, samples = m.peak, m.samples
	m.peak = 0
	m.samples = 0
	return peak, samples
}

// absSample returns |s| saturated to MaxAmplitude, so -32768 reports full scale.
func absSample(s int16) uint16 {
	if s < 0 {
		if s == -32768 {
			return MaxAmplitude
		}
		s = -s
	}
	return uint16(s)
}
