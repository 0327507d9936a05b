// Package session runs timed loudness monitoring sessions: it owns the
// microphone capture, samples it concurrently with a countdown, and turns the
// loudest reading into a score when the countdown ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/oszuidwest/zwfm-loudmeter/internal/audio"
	"github.com/oszuidwest/zwfm-loudmeter/internal/eventlog"
	"github.com/oszuidwest/zwfm-loudmeter/internal/metrics"
	"github.com/oszuidwest/zwfm-loudmeter/internal/types"
	"github.com/oszuidwest/zwfm-loudmeter/internal/util"
)

// Sentinel errors for engine operations.
var (
	ErrInvalidStateTransition = errors.New("invalid session state transition")
	ErrAborted                = errors.New("session aborted")
	ErrNoSession              = errors.New("no session has run")
)

// dispatchQueueSize bounds the default dispatcher queue.
const dispatchQueueSize = 64

// Config holds the timing parameters of a session.
type Config struct {
	Duration      time.Duration // Total recording time
	TickInterval  time.Duration // Countdown tick cadence
	PollInterval  time.Duration // Amplitude sampling cadence
	MaxPollErrors int           // Consecutive transient poll errors tolerated
	ArtifactDir   string        // Directory for raw capture artifacts (empty = os.TempDir)
}

// DefaultConfig returns the standard ten second session.
func DefaultConfig() Config {
	return Config{
		Duration:      types.DefaultSessionDuration,
		TickInterval:  types.DefaultTickInterval,
		PollInterval:  types.DefaultPollInterval,
		MaxPollErrors: types.DefaultMaxPollErrors,
	}
}

// withDefaults replaces non-positive values with defaults.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Duration <= 0 {
		c.Duration = def.Duration
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.MaxPollErrors <= 0 {
		c.MaxPollErrors = def.MaxPollErrors
	}
	return c
}

// Option configures an Engine.
type Option func(*Engine)

// WithDispatcher delivers observer callbacks through d instead of the
// engine's own serial dispatcher.
func WithDispatcher(d Dispatcher) Option {
	return func(e *Engine) { e.dispatcher = d }
}

// WithEventLog records session lifecycle events to l.
func WithEventLog(l *eventlog.Logger) Option {
	return func(e *Engine) { e.events = l }
}

// Engine runs monitoring sessions against an amplitude source. It is the
// sole owner of session state and of the capture handle. It is safe for
// concurrent use.
type Engine struct {
	source     audio.AmplitudeSource
	observer   Observer
	dispatcher Dispatcher
	serial     *SerialDispatcher // owned default dispatcher, nil when one was supplied
	events     *eventlog.Logger

	mu           sync.Mutex
	cfg          Config
	state        types.SessionState
	active       *run
	lastID       string
	lastLoudness int
	lastPeak     int
	lastResult   *types.SessionResult
	lastFailure  *types.SessionFailure
	lastErr      error
}

// run is the per-session state shared by the sampler, the clock and the
// supervisor goroutine.
type run struct {
	id        string
	cfg       Config
	capture   audio.Capture
	artifact  string
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelCauseFunc
	clock  *Clock
	peak   PeakTracker

	current   atomic.Int64 // latest loudness
	remaining atomic.Int64 // countdown remaining, in nanoseconds
	pending   atomic.Bool  // a reading delivery is queued

	samplerErr  chan error
	samplerDone chan struct{}
	finished    chan struct{} // closed after teardown; result and err are set

	result *types.SessionResult
	err    error
}

// New returns an idle Engine. A nil observer discards events.
func New(source audio.AmplitudeSource, cfg Config, observer Observer, opts ...Option) *Engine {
	if observer == nil {
		observer = NopObserver{}
	}
	e := &Engine{
		source:   source,
		observer: observer,
		cfg:      cfg.withDefaults(),
		state:    types.StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.dispatcher == nil {
		e.serial = NewSerialDispatcher(dispatchQueueSize)
		e.dispatcher = e.serial
	}
	return e
}

// SetConfig replaces the session configuration. It applies to the next
// session; a running session keeps its settings.
func (e *Engine) SetConfig(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg.withDefaults()
}

// Config returns the configuration used for the next session.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// State returns the current session state.
func (e *Engine) State() types.SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Status returns a snapshot of the current session.
func (e *Engine) Status() types.SessionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := types.SessionStatus{
		State:       e.state,
		ID:          e.lastID,
		Loudness:    e.lastLoudness,
		Peak:        e.lastPeak,
		LastResult:  e.lastResult,
		LastFailure: e.lastFailure,
	}
	if r := e.active; r != nil {
		status.Loudness = int(r.current.Load())
		status.Peak = r.peak.Peak()
		status.RemainingMs = time.Duration(r.remaining.Load()).Milliseconds()
	}
	return status
}

// Start opens the capture and begins a session. It is rejected with
// ErrInvalidStateTransition while a session is recording. If the capture
// cannot be opened the engine moves to the failed state without sampling.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()

	if e.state == types.StateRecording {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("%w: start while %s", ErrInvalidStateTransition, state)
	}

	e.resetLastLocked()
	cfg := e.cfg
	id := uuid.NewString()

	artifact, err := newArtifactPath(cfg.ArtifactDir)
	if err != nil {
		failure := e.failLocked(id, err)
		e.mu.Unlock()
		e.dispatch(func() { e.observer.OnFailed(failure) })
		return err
	}

	capture, err := e.source.Open(ctx, artifact)
	if err != nil {
		removeArtifact(artifact)
		err = fmt.Errorf("open capture: %w", err)
		failure := e.failLocked(id, err)
		e.mu.Unlock()
		e.dispatch(func() { e.observer.OnFailed(failure) })
		return err
	}

	runCtx, cancel := context.WithCancelCause(context.Background())
	r := &run{
		id:          id,
		cfg:         cfg,
		capture:     capture,
		artifact:    artifact,
		startedAt:   time.Now(),
		ctx:         runCtx,
		cancel:      cancel,
		clock:       NewClock(cfg.Duration, cfg.TickInterval),
		samplerErr:  make(chan error, 1),
		samplerDone: make(chan struct{}),
		finished:    make(chan struct{}),
	}
	r.remaining.Store(int64(cfg.Duration))

	e.active = r
	e.state = types.StateRecording
	e.lastID = id
	e.mu.Unlock()

	metrics.SessionsStartedTotal.Inc()
	metrics.Recording.Set(1)
	if err := e.events.LogSession(eventlog.SessionStarted, id, "session started", &eventlog.SessionDetails{
		DurationMs: cfg.Duration.Milliseconds(),
	}); err != nil {
		slog.Warn("failed to write event log", "error", err)
	}
	slog.Info("session started", "id", id, "duration", cfg.Duration, "poll_interval", cfg.PollInterval)

	sampler := NewSampler(capture, cfg.PollInterval, cfg.MaxPollErrors, func(loudness int) {
		e.handleReading(r, loudness)
	})
	go func() {
		defer close(r.samplerDone)
		if err := sampler.Run(runCtx); err != nil {
			r.samplerErr <- err
		}
	}()

	r.clock.Start(func(t Tick) {
		r.remaining.Store(int64(t.Remaining))
		e.dispatch(func() { e.observer.OnTick(t.Remaining) })
	})

	go e.supervise(r)
	return nil
}

// Abort cancels the recording session and returns the engine to idle
// without producing a result. It returns once the capture is closed.
func (e *Engine) Abort() error {
	e.mu.Lock()
	r := e.active
	state := e.state
	e.mu.Unlock()

	if state != types.StateRecording || r == nil {
		return fmt.Errorf("%w: abort while %s", ErrInvalidStateTransition, state)
	}

	r.cancel(ErrAborted)
	<-r.finished

	if r.result != nil {
		return fmt.Errorf("%w: session completed before abort", ErrInvalidStateTransition)
	}
	return nil
}

// Wait blocks until the current session ends and returns its result. With no
// session recording it reports the outcome of the last one.
func (e *Engine) Wait(ctx context.Context) (types.SessionResult, error) {
	e.mu.Lock()
	r := e.active
	last, lastErr, state := e.lastResult, e.lastErr, e.state
	e.mu.Unlock()

	if r == nil {
		switch {
		case state == types.StateCompleted && last != nil:
			return *last, nil
		case state == types.StateFailed:
			return types.SessionResult{}, lastErr
		default:
			return types.SessionResult{}, ErrNoSession
		}
	}

	select {
	case <-r.finished:
	case <-ctx.Done():
		return types.SessionResult{}, ctx.Err()
	}
	if r.result != nil {
		return *r.result, nil
	}
	return types.SessionResult{}, r.err
}

// Close aborts a recording session and stops the engine's own dispatcher.
func (e *Engine) Close() {
	if err := e.Abort(); err != nil && !errors.Is(err, ErrInvalidStateTransition) {
		slog.Warn("failed to abort session on close", "error", err)
	}
	if e.serial != nil {
		e.serial.Close()
	}
}

// handleReading records a reading from the sampler and schedules delivery to
// the observer. At most one delivery is queued; it carries the latest value.
func (e *Engine) handleReading(r *run, loudness int) {
	r.current.Store(int64(loudness))
	r.peak.Update(loudness)
	metrics.CurrentLoudness.Set(float64(loudness))

	if r.pending.CompareAndSwap(false, true) {
		e.dispatch(func() {
			r.pending.Store(false)
			e.observer.OnReading(int(r.current.Load()), true)
		})
	}
}

// supervise waits for the first terminal event of a run and tears it down.
// It is the only place a capture is closed, so teardown happens once.
func (e *Engine) supervise(r *run) {
	var cause error
	select {
	case <-r.clock.Done():
	case cause = <-r.samplerErr:
	case <-r.ctx.Done():
		cause = context.Cause(r.ctx)
	}

	r.cancel(nil)
	<-r.samplerDone
	r.clock.Stop()

	if err := r.capture.Close(); err != nil {
		slog.Warn("failed to close capture", "id", r.id, "error", err)
	}
	removeArtifact(r.artifact)

	endedAt := time.Now()
	last := int(r.current.Load())
	peak := r.peak.Peak()
	samples := r.peak.Samples()
	e.dispatch(func() { e.observer.OnReading(last, false) })
	metrics.Recording.Set(0)

	var (
		notify  func()
		details = &eventlog.SessionDetails{
			PeakLoudness: peak,
			Samples:      samples,
			DurationMs:   endedAt.Sub(r.startedAt).Milliseconds(),
		}
	)

	e.mu.Lock()
	e.active = nil
	e.lastLoudness = last
	e.lastPeak = peak

	switch {
	case cause == nil:
		result := types.SessionResult{
			ID:           r.id,
			PeakLoudness: peak,
			Score:        Score(peak),
			Samples:      samples,
			StartedAt:    r.startedAt,
			EndedAt:      endedAt,
		}
		r.result = &result
		e.state = types.StateCompleted
		e.lastResult = &result
		notify = func() { e.observer.OnComplete(result) }

		details.Score = result.Score
		metrics.SessionsFinishedTotal.WithLabelValues(metrics.OutcomeCompleted).Inc()
		metrics.LastScore.Set(float64(result.Score))
		metrics.Scores.Observe(float64(result.Score))
		e.logEvent(eventlog.SessionCompleted, r.id, "session completed", details)
		slog.Info("session completed", "id", r.id, "peak_loudness", peak, "score", result.Score, "samples", samples)

	case errors.Is(cause, ErrAborted):
		r.err = ErrAborted
		e.state = types.StateIdle
		metrics.SessionsFinishedTotal.WithLabelValues(metrics.OutcomeAborted).Inc()
		e.logEvent(eventlog.SessionAborted, r.id, "session aborted", details)
		slog.Info("session aborted", "id", r.id)

	default:
		r.err = cause
		failure := e.failLocked(r.id, cause)
		notify = func() { e.observer.OnFailed(failure) }
	}
	e.mu.Unlock()

	if notify != nil {
		e.dispatch(notify)
	}
	close(r.finished)
}

// resetLastLocked forgets the outcome of the previous session. e.mu must be held.
func (e *Engine) resetLastLocked() {
	e.lastLoudness = 0
	e.lastPeak = 0
	e.lastResult = nil
	e.lastFailure = nil
	e.lastErr = nil
}

// failLocked moves the engine to the failed state and records the failure.
// e.mu must be held.
func (e *Engine) failLocked(id string, err error) types.SessionFailure {
	failure := types.SessionFailure{
		ID:      id,
		Reason:  FailureReason(err),
		Message: err.Error(),
	}
	e.state = types.StateFailed
	e.lastID = id
	e.lastFailure = &failure
	e.lastErr = err

	metrics.SessionsFinishedTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
	metrics.SessionFailuresTotal.WithLabelValues(string(failure.Reason)).Inc()
	e.logEvent(eventlog.SessionFailed, id, "session failed", &eventlog.SessionDetails{
		Reason: string(failure.Reason),
		Error:  failure.Message,
	})
	slog.Error("session failed", "id", id, "reason", failure.Reason, "error", err)
	return failure
}

func (e *Engine) logEvent(t eventlog.EventType, id, msg string, details *eventlog.SessionDetails) {
	if err := e.events.LogSession(t, id, msg, details); err != nil {
		slog.Warn("failed to write event log", "type", t, "error", err)
	}
}

func (e *Engine) dispatch(fn func()) {
	e.dispatcher.Dispatch(fn)
}

// FailureReason maps an error to the code reported to presentation clients.
func FailureReason(err error) types.FailureReason {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return types.ReasonPermissionDenied
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return types.ReasonDeviceUnavailable
	case errors.Is(err, audio.ErrDeviceIO):
		return types.ReasonDeviceIO
	default:
		return types.ReasonInternal
	}
}

// newArtifactPath reserves a fresh file for the raw capture of one session.
func newArtifactPath(dir string) (string, error) {
	f, err := os.CreateTemp(dir, "loudmeter-*.raw")
	if err != nil {
		return "", util.WrapError("allocate capture artifact", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		removeArtifact(name)
		return "", util.WrapError("allocate capture artifact", err)
	}
	return name, nil
}

func removeArtifact(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to remove capture artifact", "path", path, "error", err)
	}
}
