package server

import (
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-loudmeter/internal/session"
	"github.com/oszuidwest/zwfm-loudmeter/internal/types"
)

var _ session.Observer = (*Hub)(nil)

func TestHubBroadcastsToSubscribers(t *testing.T) {
	hub := NewHub()
	a := make(chan any, 8)
	b := make(chan any, 8)
	unsubA := hub.Subscribe(a)
	unsubB := hub.Subscribe(b)
	defer unsubB()

	if hub.Clients() != 2 {
		t.Fatalf("expected 2 clients, got %d", hub.Clients())
	}

	hub.OnReading(42, true)
	hub.OnTick(3 * time.Second)

	for _, ch := range []chan any{a, b} {
		reading := (<-ch).(types.WSReading)
		if reading.Type != "reading" || reading.Loudness != 42 || !reading.Recording {
			t.Errorf("unexpected reading %+v", reading)
		}
		tick := (<-ch).(types.WSTick)
		if tick.Type != "tick" || tick.RemainingMs != 3000 {
			t.Errorf("unexpected tick %+v", tick)
		}
	}

	unsubA()
	hub.OnComplete(types.SessionResult{ID: "s1", PeakLoudness: 96, Score: 960})
	if len(a) != 0 {
		t.Error("unsubscribed client received a message")
	}
	result := (<-b).(types.WSResult)
	if result.Type != "result" || result.Result.Score != 960 {
		t.Errorf("unexpected result %+v", result)
	}

	hub.OnFailed(types.SessionFailure{ID: "s2", Reason: types.ReasonPermissionDenied})
	failure := (<-b).(types.WSFailure)
	if failure.Type != "failed" || failure.Failure.Reason != types.ReasonPermissionDenied {
		t.Errorf("unexpected failure %+v", failure)
	}
}

func TestHubDropsForSlowClient(t *testing.T) {
	hub := NewHub()
	slow := make(chan any, 1)
	defer hub.Subscribe(slow)()

	done := make(chan struct{})
	go func() {
		for i := range 5 {
			hub.OnReading(i, true)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full client")
	}
	if reading := (<-slow).(types.WSReading); reading.Loudness != 0 {
		t.Errorf("expected first reading kept, got %d", reading.Loudness)
	}
}
