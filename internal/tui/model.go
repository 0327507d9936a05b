// Package tui renders a monitoring session in the terminal: a live loudness
// bar, the countdown, and the final score.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/oszuidwest/zwfm-loudmeter/internal/types"
)

// barWidth is the number of cells of the loudness bar.
const barWidth = 40

// Controller is the part of the session engine the terminal UI drives.
type Controller interface {
	Start(ctx context.Context) error
	Abort() error
}

// Messages delivered from the session observer.
type (
	// ReadingMsg carries a loudness reading.
	ReadingMsg struct {
		Loudness  int
		Recording bool
	}
	// TickMsg carries the countdown.
	TickMsg struct{ Remaining time.Duration }
	// CompleteMsg carries the session result.
	CompleteMsg struct{ Result types.SessionResult }
	// FailedMsg carries a session failure.
	FailedMsg struct{ Failure types.SessionFailure }
)

type startedMsg struct{ err error }

type abortedMsg struct{ err error }

// Model is the Bubble Tea model of the loudness meter.
type Model struct {
	ctrl      Controller
	duration  time.Duration
	autoStart bool

	loudness  int
	recording bool
	starting  bool
	remaining time.Duration
	result    *types.SessionResult
	failure   *types.SessionFailure
	err       error
	width     int
}

// New returns a Model driving ctrl. With autoStart the first session begins
// as soon as the program starts.
func New(ctrl Controller, duration time.Duration, autoStart bool) Model {
	return Model{
		ctrl:      ctrl,
		duration:  duration,
		autoStart: autoStart,
		remaining: duration,
	}
}

// Result returns the result of the last completed session, if any.
func (m Model) Result() *types.SessionResult { return m.result }

// Failure returns the failure of the last failed session, if any.
func (m Model) Failure() *types.SessionFailure { return m.failure }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	if m.autoStart {
		return m.start()
	}
	return nil
}

func (m *Model) start() tea.Cmd {
	m.starting = true
	m.result = nil
	m.failure = nil
	m.err = nil
	m.loudness = 0
	m.remaining = m.duration
	ctrl := m.ctrl
	return func() tea.Msg {
		return startedMsg{err: ctrl.Start(context.Background())}
	}
}

func (m Model) abort() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return abortedMsg{err: ctrl.Abort()}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.recording {
				return m, tea.Sequence(m.abort(), tea.Quit)
			}
			return m, tea.Quit
		case "s", " ", "enter":
			if m.recording || m.starting {
				return m, nil
			}
			return m, m.start()
		case "a", "esc":
			if m.recording {
				return m, m.abort()
			}
		}
		return m, nil

	case startedMsg:
		m.starting = false
		if msg.err != nil {
			// The failure itself arrives as FailedMsg.
			m.err = msg.err
			return m, nil
		}
		m.recording = true
		return m, nil

	case abortedMsg:
		if msg.err == nil {
			m.recording = false
			m.remaining = m.duration
		}
		return m, nil

	case ReadingMsg:
		m.loudness = msg.Loudness
		m.recording = msg.Recording
		return m, nil

	case TickMsg:
		m.remaining = msg.Remaining
		return m, nil

	case CompleteMsg:
		result := msg.Result
		m.result = &result
		m.recording = false
		m.remaining = 0
		return m, nil

	case FailedMsg:
		failure := msg.Failure
		m.failure = &failure
		m.recording = false
		m.starting = false
		return m, nil
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Loudness meter"))
	b.WriteString("\n\n")
	b.WriteString(renderBar(m.loudness))
	fmt.Fprintf(&b, " %3d%%\n\n", m.loudness)

	switch {
	case m.recording:
		fmt.Fprintf(&b, "Recording... %s left\n", formatRemaining(m.remaining))
	case m.starting:
		b.WriteString(mutedStyle.Render("Opening microphone..."))
		b.WriteString("\n")
	case m.result != nil:
		b.WriteString(scoreStyle.Render(fmt.Sprintf("Score: %d", m.result.Score)))
		fmt.Fprintf(&b, "\nPeak loudness: %d%%\n", m.result.PeakLoudness)
	case m.failure != nil:
		b.WriteString(errorStyle.Render(FailureMessage(*m.failure)))
		b.WriteString("\n")
	case m.err != nil:
		b.WriteString(errorStyle.Render(m.err.Error()))
		b.WriteString("\n")
	default:
		fmt.Fprintf(&b, "Make as much noise as you can for %s.\n", formatRemaining(m.duration))
	}

	b.WriteString("\n")
	if m.recording {
		b.WriteString(mutedStyle.Render("a: abort  q: quit"))
	} else {
		b.WriteString(mutedStyle.Render("s: start  q: quit"))
	}

	return appStyle.Render(paneStyle.Render(b.String()))
}

// FailureMessage returns the text shown for a failed session.
func FailureMessage(f types.SessionFailure) string {
	switch f.Reason {
	case types.ReasonPermissionDenied:
		return "Microphone access was denied. Grant permission and try again."
	case types.ReasonDeviceUnavailable:
		return "No microphone available. Check that one is connected and not in use."
	case types.ReasonDeviceIO:
		return "The microphone stopped responding."
	default:
		return "Recording failed: " + f.Message
	}
}

// renderBar draws the loudness bar for a reading in [0, 100].
func renderBar(loudness int) string {
	filled := min(max(loudness, 0), 100) * barWidth / 100
	bar := lipgloss.NewStyle().Foreground(levelColor(loudness)).Render(strings.Repeat("█", filled))
	return bar + trackStyle.Render(strings.Repeat("░", barWidth-filled))
}

// formatRemaining rounds a countdown up to whole seconds.
func formatRemaining(d time.Duration) string {
	secs := (d + time.Second - 1) / time.Second
	return fmt.Sprintf("%ds", max(secs, 0))
}
