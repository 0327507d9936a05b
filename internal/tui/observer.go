package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/oszuidwest/zwfm-loudmeter/internal/types"
)

// Sender delivers messages into a running program; *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// Observer forwards session events into the Bubble Tea event loop.
type Observer struct {
	sender Sender
}

// NewObserver returns an Observer sending to s.
func NewObserver(s Sender) *Observer {
	return &Observer{sender: s}
}

func (o *Observer) OnReading(loudness int, recording bool) {
	o.sender.Send(ReadingMsg{Loudness: loudness, Recording: recording})
}

func (o *Observer) OnTick(remaining time.Duration) {
	o.sender.Send(TickMsg{Remaining: remaining})
}

func (o *Observer) OnComplete(result types.SessionResult) {
	o.sender.Send(CompleteMsg{Result: result})
}

func (o *Observer) OnFailed(failure types.SessionFailure) {
	o.sender.Send(FailedMsg{Failure: failure})
}
