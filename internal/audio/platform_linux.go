//go:build linux

package audio

import (
	"regexp"

	"github.com/oszuidwest/zwfm-loudmeter/internal/types"
)

func getPlatformConfig() CaptureConfig {
	return CaptureConfig{
		Command:       "arecord",
		DefaultDevice: "default",
		BuildArgs:     buildLinuxArgs,
	}
}

func buildLinuxArgs(device string) []string {
	return []string{
		"-D", device,
		"-f", "S16_LE",
		"-r", sampleRateArg(),
		"-c", channelsArg(),
		"-t", "raw",
		"-q",
		"-",
	}
}

func listPlatformDevices() []types.AudioDevice {
	return parseDeviceList(DeviceListConfig{
		Command:       []string{"arecord", "-l"},
		DevicePattern: regexp.MustCompile(`card\s+(\d+):\s+(\w+)\s+\[([^\]]+)\]`),
		ParseDevice: func(matches []string) *types.AudioDevice {
			if len(matches) < 4 {
				return nil
			}
			return &types.AudioDevice{
				ID:   "default:CARD=" + matches[2],
				Name: matches[3],
			}
		},
		FallbackDevices: []types.AudioDevice{
			{ID: "default", Name: "System default"},
		},
	})
}
