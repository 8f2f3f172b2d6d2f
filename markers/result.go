package markers

import (
	"github.com/RyanBlaney/sonido-markers/transcribe"
)

// DefaultMaxBeats bounds the emitted beat list
const DefaultMaxBeats = 300

// AnalysisResult is the fused record returned for one audio file
type AnalysisResult struct {
	DurationSec float64               `json:"duration_sec"`
	TempoBPM    float64               `json:"tempo_bpm"`
	Key         string                `json:"key"`
	Markers     Markers               `json:"markers"`
	Lyrics      transcribe.Transcript `json:"lyrics"`
}

// Markers holds the time-ordered event lists
type Markers struct {
	BeatsSec      []float64 `json:"beats_sec"`
	TransientsSec []float64 `json:"transients_sec"`
}
