package session

import "sync"

// PeakTracker holds the running maximum loudness of a session.
// It is safe for concurrent use.
type PeakTracker struct {
	mu      sync.Mutex
	peak    int
	samples int
}

// Update records a reading and returns the running maximum.
// Readings may arrive in any order; the maximum never decreases.
func (p *PeakTracker) Update(loudness int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if loudness > p.peak {
		p.peak = loudness
	}
	p.samples++
	return p.peak
}

// Peak returns the running maximum.
func (p *PeakTracker) Peak() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}

// Samples returns the number of readings recorded.
func (p *PeakTracker) Samples() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.samples
}

// ScoreMultiplier converts peak loudness into points.
const ScoreMultiplier = 10

// Score returns the points for a peak loudness, in [0, 1000].
func Score(peakLoudness int) int {
	return min(max(peakLoudness, 0), 100) * ScoreMultiplier
}
