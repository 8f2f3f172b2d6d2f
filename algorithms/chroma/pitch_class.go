package chroma

import "math"

// PitchClassNames are the sharp-spelled names of pitch classes 0 (C) to 11 (B)
var PitchClassNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// PitchClassName returns the name of pitch class pc, wrapping out-of-range values
func PitchClassName(pc int) string {
	return PitchClassNames[((pc%12)+12)%12]
}

// FrequencyToPitchClass maps a frequency to its nearest pitch class given the A4 tuning
func FrequencyToPitchClass(freq, tuningFreq float64) int {
	if freq <= 0 || tuningFreq <= 0 {
		return -1
	}
	midi := int(math.Round(69 + 12*math.Log2(freq/tuningFreq)))
	return ((midi % 12) + 12) % 12
}
