package temporal

import (
	"github.com/RyanBlaney/sonido-markers/algorithms/common"
)

// Default transient picking parameters
const (
	DefaultOnsetThreshold = 0.3
	DefaultMergeWindow    = 0.03
)

// PeakPicker turns an activation curve into discrete transient times
type PeakPicker struct {
	Threshold   float64 // activation must exceed this strictly
	MergeWindow float64 // seconds; later peaks within this of a kept one are dropped
}

// NewPeakPicker creates a peak picker
func NewPeakPicker(threshold, mergeWindow float64) *PeakPicker {
	return &PeakPicker{
		Threshold:   threshold,
		MergeWindow: mergeWindow,
	}
}

// Pick returns strictly increasing onset times in seconds rounded to 3 decimals.
// A frame is a candidate when it exceeds the threshold and is a local maximum
// (greater than its left neighbour, not less than its right one, so a plateau
// reports its first frame). Candidates are debounced keep-first.
func (pp *PeakPicker) Pick(curve *ActivationCurve) []float64 {
	onsets := []float64{}
	if curve.Len() == 0 || curve.FrameRate <= 0 {
		return onsets
	}

	values := curve.Values
	mergeFrames := pp.MergeWindow * curve.FrameRate
	lastKept := -1

	for i, v := range values {
		if !(v > pp.Threshold) {
			continue
		}
		if i > 0 && !(v > values[i-1]) {
			continue
		}
		if i < len(values)-1 && v < values[i+1] {
			continue
		}

		if lastKept >= 0 && float64(i-lastKept) <= mergeFrames+1e-9 {
			continue
		}
		lastKept = i
		onsets = append(onsets, common.Round(curve.Time(i), 3))
	}

	return common.SortedUnique(onsets)
}
