//go:build windows

package audio

// buildFFmpegCaptureArgs constructs FFmpeg arguments for microphone capture on Windows.
// -nostdin is left out so FFmpeg can still be asked to quit through stdin.
func buildFFmpegCaptureArgs(inputFormat, device string) []string {
	return []string{
		"-f", inputFormat,
		"-i", device,
		"-hide_banner",
		"-loglevel", "error",
		"-vn",
		"-f", "s16le",
		"-ac", channelsArg(),
		"-ar", sampleRateArg(),
		"pipe:1",
	}
}
