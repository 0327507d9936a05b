// Package types provides shared type definitions used across the loudness meter.
package types

import (
	"time"
)

// SessionState represents the current state of a monitoring session.
type SessionState string

const (
	// StateIdle indicates no session is running.
	StateIdle SessionState = "idle"
	// StateRecording indicates the microphone is captured and sampled.
	StateRecording SessionState = "recording"
	// StateCompleted indicates the last session ran to the end and produced a result.
	StateCompleted SessionState = "completed"
	// StateFailed indicates the last session ended on an unrecoverable error.
	StateFailed SessionState = "failed"
)

// Session timing defaults.
const (
	// DefaultSessionDuration is the total recording time of one session.
	DefaultSessionDuration = 10000 * time.Millisecond
	// DefaultTickInterval is the countdown tick cadence.
	DefaultTickInterval = 1000 * time.Millisecond
	// DefaultPollInterval is the amplitude sampling cadence.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultMaxPollErrors is the number of consecutive transient poll errors tolerated.
	DefaultMaxPollErrors = 5
)

const (
	// ShutdownTimeout is the duration to wait for the capture process to exit.
	ShutdownTimeout = 3000 * time.Millisecond
)

// Audio format constants for PCM capture.
const (
	// SampleRate is the capture sample rate in Hz.
	SampleRate = 44100
	// Channels is the number of captured channels (mono).
	Channels = 1
)

// FailureReason is a machine-readable code describing why a session failed.
type FailureReason string

// Failure reasons reported to presentation clients.
const (
	ReasonDeviceUnavailable FailureReason = "device_unavailable"
	ReasonPermissionDenied  FailureReason = "permission_denied"
	ReasonDeviceIO          FailureReason = "device_io"
	ReasonInternal          FailureReason = "internal"
)

// SessionResult is the immutable outcome of a completed session.
type SessionResult struct {
	ID           string    `json:"id"`            // Session identifier
	PeakLoudness int       `json:"peak_loudness"` // Highest loudness reading (0-100)
	Score        int       `json:"score"`         // Derived score (0-1000)
	Samples      int       `json:"samples"`       // Number of readings taken
	StartedAt    time.Time `json:"started_at"`    // When recording started
	EndedAt      time.Time `json:"ended_at"`      // When recording stopped
}

// Duration returns how long the session recorded.
func (r SessionResult) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// SessionFailure describes a failed session.
type SessionFailure struct {
	ID      string        `json:"id,omitempty"` // Session identifier, empty when open failed before an ID was used
	Reason  FailureReason `json:"reason"`       // Failure code
	Message string        `json:"message"`      // Human-readable error
}

// SessionStatus contains a summary of the engine's current state.
type SessionStatus struct {
	State       SessionState    `json:"state"`                  // Current session state
	ID          string          `json:"id,omitzero"`            // Active or last session ID
	Loudness    int             `json:"loudness"`               // Latest loudness reading
	Peak        int             `json:"peak"`                   // Running maximum loudness
	RemainingMs int64           `json:"remaining_ms,omitzero"`  // Countdown remaining while recording
	LastResult  *SessionResult  `json:"last_result,omitempty"`  // Result of the last completed session
	LastFailure *SessionFailure `json:"last_failure,omitempty"` // Failure of the last failed session
}

// AudioDevice represents an available audio input device.
type AudioDevice struct {
	ID   string `json:"id"`   // Device identifier
	Name string `json:"name"` // Device display name
}

// WSStatusResponse is sent to clients with full session status.
type WSStatusResponse struct {
	Type             string        `json:"type"`              // Message type identifier
	CaptureAvailable bool          `json:"capture_available"` // The platform capture tool was found
	Session          SessionStatus `json:"session"`           // Session status
	Devices          []AudioDevice `json:"devices"`           // Available audio devices
	Settings         WSSettings    `json:"settings"`          // Current settings
	Version          VersionInfo   `json:"version"`           // Version information
}

// WSSettings contains the settings sub-object in status responses.
type WSSettings struct {
	AudioInput     string `json:"audio_input"`      // Selected audio input device
	DurationMs     int64  `json:"duration_ms"`      // Session duration
	TickIntervalMs int64  `json:"tick_interval_ms"` // Countdown tick cadence
	PollIntervalMs int64  `json:"poll_interval_ms"` // Sampling cadence
	MaxPollErrors  int    `json:"max_poll_errors"`  // Tolerated consecutive poll errors
	Platform       string `json:"platform"`         // Operating system platform
}

// WSReading is pushed to clients for every loudness reading.
type WSReading struct {
	Type      string `json:"type"`      // "reading"
	Loudness  int    `json:"loudness"`  // Current loudness (0-100)
	Recording bool   `json:"recording"` // Whether the session is still recording
}

// WSTick is pushed to clients on every countdown tick.
type WSTick struct {
	Type        string `json:"type"`         // "tick"
	RemainingMs int64  `json:"remaining_ms"` // Time left in the session
}

// WSResult is pushed to clients when a session completes.
type WSResult struct {
	Type   string        `json:"type"`   // "result"
	Result SessionResult `json:"result"` // Final result
}

// WSFailure is pushed to clients when a session fails.
type WSFailure struct {
	Type    string         `json:"type"`    // "failed"
	Failure SessionFailure `json:"failure"` // Failure details
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`               // Current version
	Latest      string `json:"latest,omitempty"`      // Latest available version
	ReleaseURL  string `json:"release_url,omitempty"` // Page of the latest release
	UpdateAvail bool   `json:"update_available"`      // Update is available
	Commit      string `json:"commit,omitempty"`      // Git commit hash
	BuildTime   string `json:"build_time,omitempty"`  // Build timestamp
}
