package audio

import "math"

const (
	// ReferenceAmplitude is the full-scale peak amplitude of a 16-bit capture.
	ReferenceAmplitude = 32767.0
	// DynamicRangeDB is the dynamic range of 16-bit audio; dBFS values are
	// shifted by this amount into the positive display range.
	DynamicRangeDB = 96.0
	// MinLoudness is the silence floor of the loudness scale.
	MinLoudness = 0
	// MaxLoudness is the ceiling of the loudness scale.
	MaxLoudness = 100
)

// ToLoudness converts a raw peak amplitude into a loudness percentage in
// [MinLoudness, MaxLoudness]. Zero amplitude maps to silence and full scale
// maps to MaxLoudness; amplitudes above the reference are clamped.
func ToLoudness(amplitude uint16) int {
	if amplitude == 0 {
		return MinLoudness
	}
	db := 20 * math.Log10(float64(amplitude)/ReferenceAmplitude)
	shifted := db + DynamicRangeDB
	return clampLoudness(int(math.Round(shifted * MaxLoudness / DynamicRangeDB)))
}

func clampLoudness(v int) int {
	return min(max(v, MinLoudness), MaxLoudness)
}
