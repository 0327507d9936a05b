package session

import (
	"time"

	"github.com/oszuidwest/zwfm-loudmeter/internal/types"
)

// Observer is the presentation side of a session. The engine invokes it
// through its Dispatcher, never from the sampling or countdown goroutines.
type Observer interface {
	// OnReading reports the latest loudness. recording is false for the
	// final reading delivered after sampling stopped.
	OnReading(loudness int, recording bool)
	// OnTick reports the countdown.
	OnTick(remaining time.Duration)
	// OnComplete reports the result of a session that ran to the end.
	OnComplete(result types.SessionResult)
	// OnFailed reports a session that ended on an error.
	OnFailed(failure types.SessionFailure)
}

// NopObserver ignores all events. Embed it to implement part of Observer.
type NopObserver struct{}

func (NopObserver) OnReading(int, bool) {}
func (NopObserver) OnTick(time.Duration) {}
func (NopObserver) OnComplete(types.SessionResult) {}
func (NopObserver) OnFailed(types.SessionFailure) {}
