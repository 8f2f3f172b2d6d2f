package temporal

import (
	"context"
	"math"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/sonido-markers/algorithms/common"
	"github.com/RyanBlaney/sonido-markers/failure"
	"github.com/RyanBlaney/sonido-markers/logging"
	"github.com/RyanBlaney/sonido-markers/transcode"
)

const (
	// MinTrackableDuration is the shortest audio the tracker accepts, in seconds
	MinTrackableDuration = 1.0
	silencePeak          = 1e-6
)

// BeatGrid is a global tempo plus beat times in seconds
type BeatGrid struct {
	Tempo float64   `json:"tempo_bpm"`
	Beats []float64 `json:"beats_sec"`
}

// BeatTracker estimates a global tempo then places beats by dynamic programming
// over the onset envelope, trading onset strength against deviation from the period
type BeatTracker struct {
	Tightness float64

	envelope *OnsetEnvelope
	tempo    *TempoEstimation
}

// NewBeatTracker creates a beat tracker with the default envelope and tempo prior
func NewBeatTracker() *BeatTracker {
	return &BeatTracker{
		Tightness: 100,
		envelope:  NewOnsetEnvelope(),
		tempo:     NewTempoEstimation(),
	}
}

// Track returns the tempo rounded to 2 decimals and strictly increasing beat
// times rounded to 3 decimals. Silent or sub-second audio is an analysis error.
func (bt *BeatTracker) Track(ctx context.Context, buffer *transcode.SampleBuffer) (*BeatGrid, error) {
	if buffer == nil || buffer.Len() == 0 {
		return nil, failure.Newf(failure.Analysis, "beat_tracking", "empty sample buffer")
	}
	if buffer.Duration() < MinTrackableDuration {
		return nil, failure.Newf(failure.Analysis, "beat_tracking",
			"audio too short for tempo estimation: %.3fs", buffer.Duration())
	}
	if buffer.Peak() < silencePeak {
		return nil, failure.Newf(failure.Analysis, "beat_tracking", "audio is silent")
	}

	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "beat_tracker",
		"function":  "Track",
	})

	frameRate := bt.envelope.FrameRate()
	env, err := bt.envelope.Compute(ctx, buffer.Samples(), buffer.SampleRate())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, failure.New(failure.Analysis, "beat_tracking", err)
	}

	bpm, err := bt.tempo.Estimate(env, frameRate)
	if err != nil {
		return nil, failure.New(failure.Analysis, "tempo_estimation", err)
	}

	period := 60 * frameRate / bpm
	frames, err := bt.trackFrames(ctx, env, period)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, failure.Newf(failure.Analysis, "beat_tracking", "no beats found")
	}

	beats := make([]float64, len(frames))
	for i, f := range frames {
		beats[i] = common.Round(float64(f)/frameRate, 3)
	}

	grid := &BeatGrid{
		Tempo: common.Round(bpm, 2),
		Beats: beats,
	}

	logger.Debug("Beat tracking completed", logging.Fields{
		"tempo_bpm":  grid.Tempo,
		"beat_count": len(beats),
	})

	return grid, nil
}

// trackFrames runs the dynamic program and returns beat frame indices
func (bt *BeatTracker) trackFrames(ctx context.Context, env []float64, period float64) ([]int, error) {
	localScore := bt.localScore(env, period)
	n := len(localScore)

	cumScore := make([]float64, n)
	backlink := make([]int, n)

	windowStart := int(math.Round(2 * period))
	windowEnd := max(1, int(math.Round(period/2)))
	scoreThresh := 0.01 * floats.Max(localScore)
	firstBeat := true

	for i, score := range localScore {
		if i%1024 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}

		bestScore := math.Inf(-1)
		bestLoc := -1
		for loc := max(0, i-windowStart); loc <= i-windowEnd; loc++ {
			d := math.Log(float64(i-loc)) - math.Log(period)
			candidate := cumScore[loc] - bt.Tightness*d*d
			if candidate > bestScore {
				bestScore = candidate
				bestLoc = loc
			}
		}

		if bestLoc >= 0 {
			cumScore[i] = score + bestScore
		} else {
			cumScore[i] = score
		}

		// nothing links back past the first real onset
		if firstBeat && score < scoreThresh {
			backlink[i] = -1
		} else {
			backlink[i] = bestLoc
			firstBeat = false
		}
	}

	tail := lastBeat(cumScore)
	if tail < 0 {
		return nil, nil
	}

	beats := []int{tail}
	for backlink[beats[len(beats)-1]] >= 0 {
		beats = append(beats, backlink[beats[len(beats)-1]])
	}
	for i, j := 0, len(beats)-1; i < j; i, j = i+1, j-1 {
		beats[i], beats[j] = beats[j], beats[i]
	}

	return trimBeats(localScore, beats), nil
}

// localScore normalises the envelope and smooths it with a Gaussian about one period wide
func (bt *BeatTracker) localScore(env []float64, period float64) []float64 {
	scaled := make([]float64, len(env))
	std := common.StandardDeviation(env)
	if std <= 0 {
		std = 1
	}
	for i, v := range env {
		scaled[i] = v / std
	}

	half := int(math.Round(period))
	kernel := make([]float64, 2*half+1)
	for k := -half; k <= half; k++ {
		x := float64(k) * 32 / period
		kernel[k+half] = math.Exp(-0.5 * x * x)
	}

	out := make([]float64, len(scaled))
	for i := range scaled {
		var sum float64
		for k := -half; k <= half; k++ {
			j := i + k
			if j < 0 || j >= len(scaled) {
				continue
			}
			sum += scaled[j] * kernel[k+half]
		}
		out[i] = sum
	}

	return out
}

// lastBeat picks the last local maximum of the cumulative score that is above
// half the median local-maximum score
func lastBeat(cumScore []float64) int {
	var peaks []int
	for i := range cumScore {
		left := i == 0 || cumScore[i] > cumScore[i-1]
		right := i == len(cumScore)-1 || cumScore[i] >= cumScore[i+1]
		if left && right {
			peaks = append(peaks, i)
		}
	}
	if len(peaks) == 0 {
		return -1
	}

	values := make([]float64, len(peaks))
	for i, p := range peaks {
		values[i] = cumScore[p]
	}
	threshold := 0.5 * common.Median(values)

	for i := len(peaks) - 1; i >= 0; i-- {
		if cumScore[peaks[i]] >= threshold {
			return peaks[i]
		}
	}
	return peaks[len(peaks)-1]
}

// trimBeats drops weak leading and trailing beats
func trimBeats(localScore []float64, beats []int) []int {
	if len(beats) == 0 {
		return beats
	}

	strength := make([]float64, len(beats))
	for i, b := range beats {
		strength[i] = localScore[b]
	}

	hann := window.Hann(5)
	smooth := make([]float64, len(strength))
	for i := range strength {
		for k := -2; k <= 2; k++ {
			j := i + k
			if j >= 0 && j < len(strength) {
				smooth[i] += strength[j] * hann[k+2]
			}
		}
	}

	threshold := 0.5 * common.RMS(smooth)
	first, last := -1, -1
	for i, v := range smooth {
		if v > threshold {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return nil
	}

	return beats[first : last+1]
}
