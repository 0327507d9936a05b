package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oszuidwest/zwfm-loudmeter/internal/types"
	"github.com/oszuidwest/zwfm-loudmeter/internal/util"
)

// Sentinel errors for capture device failures.
var (
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceIO          = errors.New("audio device I/O error")
)

var errCaptureClosed = errors.New("capture closed")

// DeviceError describes a failed capture operation. It matches its Kind
// sentinel and the underlying error with [errors.Is].
type DeviceError struct {
	Op        string // Operation that failed ("open", "peak")
	Kind      error  // One of the Err* sentinels
	Transient bool   // True when a later poll may succeed
	Err       error  // Underlying cause, may be nil
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *DeviceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsTransient reports whether err is a device error that a later poll may recover from.
func IsTransient(err error) bool {
	var de *DeviceError
	return errors.As(err, &de) && de.Transient
}

// AmplitudeSource opens microphone captures.
type AmplitudeSource interface {
	// Open starts capturing, writing raw audio to artifactPath.
	Open(ctx context.Context, artifactPath string) (Capture, error)
}

// Capture is a running microphone capture.
type Capture interface {
	// Peak returns the highest amplitude observed since the previous call.
	Peak() (uint16, error)
	// Close stops and releases the device. It is idempotent.
	Close() error
}

// startupGrace is how long Open waits for the capture process to fail early
// (busy device, denied access) before reporting success.
const startupGrace = 250 * time.Millisecond

// activeCapture guards the process-wide single capture.
var activeCapture atomic.Bool

// CaptureSource opens captures by running the platform capture command.
type CaptureSource struct {
	mu         sync.Mutex
	device     string
	ffmpegPath string

	// command builds the capture command; replaced in tests.
	command func(device, ffmpegPath string) (string, []string, error)
}

// NewCaptureSource returns a CaptureSource for the given input device.
// An empty device selects the platform default.
func NewCaptureSource(device, ffmpegPath string) *CaptureSource {
	return &CaptureSource{
		device:     device,
		ffmpegPath: ffmpegPath,
		command:    BuildCaptureCommand,
	}
}

// Open starts a capture process. Only one capture may be active per process;
// a second Open before Close fails with [ErrDeviceUnavailable].
func (s *CaptureSource) Open(ctx context.Context, artifactPath string) (Capture, error) {
	if !activeCapture.CompareAndSwap(false, true) {
		return nil, &DeviceError{Op: "open", Kind: ErrDeviceUnavailable, Err: errors.New("capture already in use")}
	}

	c, err := s.open(ctx, artifactPath)
	if err != nil {
		activeCapture.Store(false)
		return nil, err
	}
	return c, nil
}

// SetDevice selects the input device for the next Open.
func (s *CaptureSource) SetDevice(device string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device = device
}

// Device returns the selected input device.
func (s *CaptureSource) Device() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

func (s *CaptureSource) open(ctx context.Context, artifactPath string) (*processCapture, error) {
	device := s.Device()
	name, args, err := s.command(device, s.ffmpegPath)
	if err != nil {
		return nil, err
	}

	artifact, err := os.OpenFile(artifactPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, &DeviceError{Op: "open", Kind: ErrDeviceIO, Err: util.WrapError("create capture artifact", err)}
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, name, args...)
	cmd.Cancel = func() error {
		return util.GracefulSignal(cmd.Process)
	}
	cmd.WaitDelay = types.ShutdownTimeout

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		_ = artifact.Close()
		return nil, &DeviceError{Op: "open", Kind: ErrDeviceIO, Err: err}
	}

	c := &processCapture{
		cmd:      cmd,
		cancel:   cancel,
		artifact: artifact,
		exited:   make(chan struct{}),
	}
	cmd.Stderr = &c.stderr

	if err := cmd.Start(); err != nil {
		cancel()
		_ = artifact.Close()
		return nil, classifyStartError(err)
	}

	slog.Info("starting microphone capture", "command", name, "device", device, "artifact", artifactPath)
	go c.run(stdout)

	select {
	case <-c.exited:
		err := c.exitError("open")
		_ = c.Close()
		return nil, err
	case <-ctx.Done():
		_ = c.Close()
		return nil, ctx.Err()
	case <-time.After(startupGrace):
	}

	return c, nil
}

// classifyStartError maps process start failures to device error kinds.
func classifyStartError(err error) error {
	kind := ErrDeviceIO
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		kind = ErrDeviceUnavailable
	case errors.Is(err, os.ErrPermission):
		kind = ErrPermissionDenied
	}
	return &DeviceError{Op: "open", Kind: kind, Err: err}
}

// classifyStderr maps the capture tool's last error line to a device error kind.
func classifyStderr(line string) error {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "permission denied"), strings.Contains(lower, "not permitted"):
		return ErrPermissionDenied
	case strings.Contains(lower, "busy"), strings.Contains(lower, "no such"), strings.Contains(lower, "not found"):
		return ErrDeviceUnavailable
	default:
		return ErrDeviceIO
	}
}

// processCapture is a running capture subprocess.
type processCapture struct {
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	artifact *os.File
	stderr   bytes.Buffer
	meter    PeakMeter

	exited  chan struct{} // closed after the process has been waited on
	waitErr error         // set before exited is closed

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// run copies PCM from the process into the meter and the artifact until EOF.
func (c *processCapture) run(stdout io.Reader) {
	defer close(c.exited)

	if err := copyPCM(stdout, &c.meter, c.artifact); err != nil {
		slog.Warn("failed to write capture artifact", "error", err)
	}
	c.waitErr = c.cmd.Wait()
}

// copyPCM feeds S16LE PCM from r into meter and copies the raw bytes to
// artifact until r is exhausted. Reads may split a sample; the odd byte is
// carried into the next read so samples stay aligned. After an artifact write
// error metering continues and the first write error is returned at EOF.
func copyPCM(r io.Reader, meter *PeakMeter, artifact io.Writer) error {
	buf := make([]byte, types.SampleRate/10*2) // ~100ms of mono S16LE
	var (
		carry    int
		writeErr error
	)
	for {
		n, err := r.Read(buf[carry:])
		if n > 0 {
			if writeErr == nil {
				_, writeErr = artifact.Write(buf[carry : carry+n])
			}
			end := carry + n
			meter.Process(buf, end&^1)
			carry = end & 1
			if carry == 1 {
				buf[0] = buf[end-1]
			}
		}
		if err != nil {
			return writeErr
		}
	}
}

// exitError describes why the process exited. Only valid after exited is closed.
func (c *processCapture) exitError(op string) error {
	msg := util.ExtractLastError(c.stderr.String())
	if msg == "" && c.waitErr != nil {
		msg = c.waitErr.Error()
	}
	if msg == "" {
		msg = "capture process exited"
	}
	return &DeviceError{Op: op, Kind: classifyStderr(msg), Err: errors.New(msg)}
}

// Peak returns the peak amplitude since the previous call. A poll with no
// new audio is reported as a transient error; an exited process is terminal.
func (c *processCapture) Peak() (uint16, error) {
	select {
	case <-c.exited:
		if c.closed.Load() {
			return 0, &DeviceError{Op: "peak", Kind: ErrDeviceIO, Err: errCaptureClosed}
		}
		return 0, c.exitError("peak")
	default:
	}

	peak, samples := c.meter.Take()
	if samples == 0 {
		return 0, &DeviceError{Op: "peak", Kind: ErrDeviceIO, Transient: true, Err: errors.New("no audio since last poll")}
	}
	return peak, nil
}

// Close stops the capture process and closes the artifact.
func (c *processCapture) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		<-c.exited

		if err := c.artifact.Close(); err != nil {
			c.closeErr = util.WrapError("close capture artifact", err)
		}
		activeCapture.Store(false)
		slog.Info("microphone capture stopped")
	})
	return c.closeErr
}
