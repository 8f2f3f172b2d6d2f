package markers

import (
	"math"
	"sort"

	"github.com/RyanBlaney/sonido-markers/algorithms/common"
	"github.com/RyanBlaney/sonido-markers/failure"
	"github.com/RyanBlaney/sonido-markers/transcribe"
)

// Inputs are the independently computed component outputs for one invocation
type Inputs struct {
	Duration   float64
	Tempo      float64
	Beats      []float64
	Transients []float64
	Key        string
	Transcript *transcribe.Transcript // nil only when transcription was not requested
	MaxBeats   int                    // DefaultMaxBeats when <= 0
}

// Fuse shapes the inputs into an AnalysisResult. It recomputes nothing: beats
// are sorted and capped, transients sorted and deduplicated, and the transcript
// is copied as is. A missing required field is an analysis error.
func Fuse(in Inputs) (*AnalysisResult, error) {
	if math.IsNaN(in.Duration) || in.Duration < 0 {
		return nil, failure.Newf(failure.Analysis, "fusion", "invalid duration %v", in.Duration)
	}
	if math.IsNaN(in.Tempo) || in.Tempo <= 0 {
		return nil, failure.Newf(failure.Analysis, "fusion", "missing tempo")
	}
	if in.Key == "" {
		return nil, failure.Newf(failure.Analysis, "fusion", "missing key")
	}
	if in.Beats == nil {
		return nil, failure.Newf(failure.Analysis, "fusion", "missing beat grid")
	}

	maxBeats := in.MaxBeats
	if maxBeats <= 0 {
		maxBeats = DefaultMaxBeats
	}

	beats := common.RoundAll(in.Beats, 3)
	sort.Float64s(beats)
	if len(beats) > maxBeats {
		beats = beats[:maxBeats]
	}

	transients := common.SortedUnique(common.RoundAll(in.Transients, 3))

	lyrics := transcribe.Empty()
	if in.Transcript != nil {
		lyrics = copyTranscript(in.Transcript)
	}

	return &AnalysisResult{
		DurationSec: common.Round(in.Duration, 2),
		TempoBPM:    common.Round(in.Tempo, 2),
		Key:         in.Key,
		Markers: Markers{
			BeatsSec:      beats,
			TransientsSec: transients,
		},
		Lyrics: *lyrics,
	}, nil
}

// copyTranscript duplicates the slices so the result never aliases collaborator
// memory, and swaps nil slices for empty ones so JSON shows []
func copyTranscript(t *transcribe.Transcript) *transcribe.Transcript {
	out := transcribe.Empty()
	out.FullText = t.FullText
	out.Words = append(out.Words, t.Words...)
	out.Phrases = append(out.Phrases, t.Phrases...)
	return out
}
