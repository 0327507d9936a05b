//go:build !linux && !windows

package audio

// buildFFmpegCaptureArgs constructs FFmpeg arguments for microphone capture.
func buildFFmpegCaptureArgs(inputFormat, device string) []string {
	return []string{
		"-f", inputFormat,
		"-i", device,
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-vn",
		"-f", "s16le",
		"-ac", channelsArg(),
		"-ar", sampleRateArg(),
		"pipe:1",
	}
}
