package temporal

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-markers/algorithms/common"
	"github.com/RyanBlaney/sonido-markers/algorithms/spectral"
)

// TempoEstimation finds the dominant beat period of an onset envelope by
// autocorrelation weighted with a log-normal prior around a preferred tempo
type TempoEstimation struct {
	MinBPM       float64
	MaxBPM       float64
	PriorBPM     float64
	PriorOctaves float64 // std dev of the prior in octaves

	fft *spectral.FFT
}

// NewTempoEstimation creates a tempo estimator for 30-300 BPM centred on 120 BPM
func NewTempoEstimation() *TempoEstimation {
	return &TempoEstimation{
		MinBPM:       30,
		MaxBPM:       300,
		PriorBPM:     120,
		PriorOctaves: 1.0,
		fft:          spectral.NewFFT(),
	}
}

// Estimate returns the tempo in BPM (unrounded) for an envelope sampled at frameRate
func (te *TempoEstimation) Estimate(envelope []float64, frameRate float64) (float64, error) {
	if len(envelope) == 0 || frameRate <= 0 {
		return 0, fmt.Errorf("empty onset envelope")
	}

	minLag := max(1, int(math.Floor(60*frameRate/te.MaxBPM)))
	maxLag := min(len(envelope)-2, int(math.Ceil(60*frameRate/te.MinBPM)))
	if maxLag <= minLag {
		return 0, fmt.Errorf("envelope of %d frames is too short for tempo estimation", len(envelope))
	}

	ac := te.fft.Autocorrelation(envelope, maxLag+2)
	if ac[0] <= 0 {
		return 0, fmt.Errorf("onset envelope has no energy")
	}
	for i := range ac {
		ac[i] /= ac[0]
	}

	bestLag := te.bestLag(ac, minLag, maxLag, frameRate, true)
	if bestLag < 0 {
		bestLag = te.bestLag(ac, minLag, maxLag, frameRate, false)
	}
	if bestLag < 0 {
		return 0, fmt.Errorf("no periodicity found in onset envelope")
	}

	lag := common.ParabolicPeak(ac, bestLag)
	return 60 * frameRate / lag, nil
}

// bestLag returns the lag with the highest prior-weighted autocorrelation, or -1.
// With peaksOnly only local maxima of the autocorrelation compete.
func (te *TempoEstimation) bestLag(ac []float64, minLag, maxLag int, frameRate float64, peaksOnly bool) int {
	bestLag := -1
	bestScore := 0.0

	for lag := minLag; lag <= maxLag; lag++ {
		if peaksOnly && (ac[lag] < ac[lag-1] || ac[lag] < ac[lag+1]) {
			continue
		}
		score := ac[lag] * te.prior(60*frameRate/float64(lag))
		if score > bestScore {
			bestScore = score
			bestLag = lag
		}
	}

	return bestLag
}

func (te *TempoEstimation) prior(bpm float64) float64 {
	z := math.Log2(bpm/te.PriorBPM) / te.PriorOctaves
	return math.Exp(-0.5 * z * z)
}
