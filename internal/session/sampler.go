package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oszuidwest/zwfm-loudmeter/internal/audio"
	"github.com/oszuidwest/zwfm-loudmeter/internal/metrics"
)

// Sampler polls a capture at a fixed interval and publishes loudness readings.
type Sampler struct {
	capture       audio.Capture
	interval      time.Duration
	maxPollErrors int
	publish       func(loudness int)
}

// NewSampler returns a Sampler that reports each reading to publish.
// maxPollErrors is the number of consecutive transient errors tolerated.
func NewSampler(capture audio.Capture, interval time.Duration, maxPollErrors int, publish func(loudness int)) *Sampler {
	return &Sampler{
		capture:       capture,
		interval:      interval,
		maxPollErrors: max(maxPollErrors, 1),
		publish:       publish,
	}
}

// Run polls until ctx is cancelled, returning nil, or until the capture
// fails terminally, returning the error. Cancellation is observed within one
// interval, and Peak is never called after Run has seen it.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	consecutive := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return nil
		}

		amplitude, err := s.capture.Peak()
		if err != nil {
			if !audio.IsTransient(err) {
				return fmt.Errorf("poll capture: %w", err)
			}
			consecutive++
			metrics.PollErrorsTotal.Inc()
			slog.Warn("skipping amplitude sample", "error", err, "consecutive", consecutive)
			if consecutive >= s.maxPollErrors {
				return fmt.Errorf("poll capture: %d consecutive errors: %w", consecutive, err)
			}
			continue
		}

		consecutive = 0
		s.publish(audio.ToLoudness(amplitude))
	}
}
