package audio

import (
	"fmt"
	"strconv"

	"github.com/oszuidwest/zwfm-loudmeter/internal/types"
)

// CaptureConfig defines platform-specific microphone capture configuration.
type CaptureConfig struct {
	// Command is the executable name (e.g., "arecord", "ffmpeg").
	Command string

	// DefaultDevice is used when no device is configured.
	DefaultDevice string

	// UsesFFmpeg indicates if this platform uses FFmpeg for capture.
	UsesFFmpeg bool

	// BuildArgs returns the command arguments for capturing the given device
	// as mono S16LE PCM on stdout.
	BuildArgs func(device string) []string
}

// BuildCaptureCommand returns the command and arguments for microphone capture.
// If device is empty, the platform default is used, falling back to the
// first detected input. The ffmpegPath parameter overrides the FFmpeg binary
// on platforms that capture through FFmpeg.
func BuildCaptureCommand(device, ffmpegPath string) (cmd string, args []string, err error) {
	cfg := getPlatformConfig()

	if device == "" {
		device = cfg.DefaultDevice
	}

	if device == "" {
		devices := ListDevices()
		if len(devices) == 0 {
			return "", nil, &DeviceError{Op: "open", Kind: ErrDeviceUnavailable, Err: fmt.Errorf("no audio input device found")}
		}
		device = devices[0].ID
	}

	command := cfg.Command
	if cfg.UsesFFmpeg && ffmpegPath != "" {
		command = ffmpegPath
	}

	return command, cfg.BuildArgs(device), nil
}

// RequiresFFmpeg reports whether microphone capture on this platform runs
// through FFmpeg. Linux captures with arecord.
func RequiresFFmpeg() bool {
	return getPlatformConfig().UsesFFmpeg
}

func sampleRateArg() string { return strconv.Itoa(types.SampleRate) }

func channelsArg() string { return strconv.Itoa(types.Channels) }
