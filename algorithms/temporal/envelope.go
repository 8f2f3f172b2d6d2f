package temporal

import (
	"context"
	"math"

	"github.com/RyanBlaney/sonido-markers/algorithms/common"
	"github.com/RyanBlaney/sonido-markers/algorithms/spectral"
)

// OnsetEnvelope is the onset strength signal used for tempo and beat tracking.
// It runs at a coarser rate than the transient activation and uses a longer window.
type OnsetEnvelope struct {
	frameRate      float64
	windowDuration float64
	detrendSeconds float64
	stft           *spectral.STFT
	flux           *spectral.SpectralFlux
}

// NewOnsetEnvelope creates an onset envelope extractor at 100 frames per second
func NewOnsetEnvelope() *OnsetEnvelope {
	return &OnsetEnvelope{
		frameRate:      100,
		windowDuration: 0.046,
		detrendSeconds: 0.25,
		stft:           spectral.NewSTFT(),
		flux:           spectral.NewLogSpectralFlux(1.0),
	}
}

// FrameRate returns the envelope frames per second
func (e *OnsetEnvelope) FrameRate() float64 {
	return e.frameRate
}

// Compute returns the detrended, half-wave rectified log spectral flux
func (e *OnsetEnvelope) Compute(ctx context.Context, signal []float64, sampleRate int) ([]float64, error) {
	windowSize := common.NextPowerOfTwo(int(math.Round(e.windowDuration * float64(sampleRate))))
	numFrames := FrameCount(len(signal), sampleRate, e.frameRate)

	layout := spectral.FrameLayout{
		WindowSize: windowSize,
		FrameRate:  e.frameRate,
		NumFrames:  numFrames,
	}
	result, err := e.stft.Compute(ctx, signal, sampleRate, layout)
	if err != nil {
		return nil, err
	}

	flux := e.flux.Compute(result.Magnitude)
	// frame 0 compares against silence and would read as a huge onset
	clear(flux[layout.TailStart(len(signal), sampleRate):])
	if len(flux) > 1 {
		flux[0] = flux[1]
	}

	trend := common.MovingAverage(flux, int(math.Round(e.detrendSeconds*e.frameRate)))
	for i := range flux {
		flux[i] = max(0, flux[i]-trend[i])
	}

	return flux, nil
}
