package audio

import (
	"log/slog"
	"os/exec"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-loudmeter/internal/types"
)

// ListDevices returns available audio input devices for the current platform.
func ListDevices() []types.AudioDevice {
	return listPlatformDevices()
}

// DefaultDeviceCacheTTL is how long a device listing is reused.
const DefaultDeviceCacheTTL = 30 * time.Second

// DeviceCache reuses the device listing so status updates do not spawn a
// listing process each time. It is safe for concurrent use.
type DeviceCache struct {
	ttl  time.Duration
	list func() []types.AudioDevice
	now  func() time.Time

	mu      sync.Mutex
	devices []types.AudioDevice
	fetched time.Time
	valid   bool
}

// NewDeviceCache returns a cache refreshed at most once per ttl. A nil list
// uses [ListDevices].
func NewDeviceCache(ttl time.Duration, list func() []types.AudioDevice) *DeviceCache {
	if list == nil {
		list = ListDevices
	}
	return &DeviceCache{ttl: ttl, list: list, now: time.Now}
}

// Devices returns the cached listing, running a new one when it is stale.
func (c *DeviceCache) Devices() []types.AudioDevice {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.valid || c.now().Sub(c.fetched) >= c.ttl {
		c.devices = c.list()
		c.fetched = c.now()
		c.valid = true
	}
	return slices.Clone(c.devices)
}

// Invalidate makes the next Devices call list again.
func (c *DeviceCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
}

// DeviceListConfig defines how to list audio devices for a platform.
type DeviceListConfig struct {
	// Command and args to list devices.
	Command []string

	// AudioStartMarker indicates the start of audio devices section.
	AudioStartMarker string

	// AudioStopMarker indicates the end of audio devices section (optional).
	AudioStopMarker string

	// DevicePattern is the regex to extract device info.
	DevicePattern *regexp.Regexp

	// ParseDevice converts regex matches to a device.
	ParseDevice func(matches []string) *types.AudioDevice

	// FallbackDevices are returned if detection fails.
	FallbackDevices []types.AudioDevice
}

// parseDeviceList runs the listing command and parses its output.
//
//nolint:gocritic // hugeParam: config is built once per listing
func parseDeviceList(cfg DeviceListConfig) []types.AudioDevice {
	if len(cfg.Command) == 0 {
		return cfg.FallbackDevices
	}

	output, err := exec.Command(cfg.Command[0], cfg.Command[1:]...).CombinedOutput()
	if err != nil && len(output) == 0 {
		slog.Error("failed to list audio devices", "error", err)
		return cfg.FallbackDevices
	}

	if devices := parseDeviceOutput(string(output), &cfg); len(devices) > 0 {
		return devices
	}
	return cfg.FallbackDevices
}

// parseDeviceOutput extracts devices from listing output.
func parseDeviceOutput(output string, cfg *DeviceListConfig) []types.AudioDevice {
	if cfg.DevicePattern == nil || cfg.ParseDevice == nil {
		return nil
	}

	var devices []types.AudioDevice
	inAudioSection := cfg.AudioStartMarker == ""

	for line := range strings.SplitSeq(output, "\n") {
		if cfg.AudioStartMarker != "" && strings.Contains(line, cfg.AudioStartMarker) {
			inAudioSection = true
			continue
		}
		if cfg.AudioStopMarker != "" && strings.Contains(line, cfg.AudioStopMarker) {
			inAudioSection = false
			continue
		}
		if !inAudioSection || strings.Contains(line, "Alternative name") {
			continue
		}

		if matches := cfg.DevicePattern.FindStringSubmatch(line); len(matches) > 0 {
			if dev := cfg.ParseDevice(matches); dev != nil {
				devices = append(devices, *dev)
			}
		}
	}
	return devices
}
