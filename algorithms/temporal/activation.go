package temporal

import (
	"context"
	"math"

	"github.com/RyanBlaney/sonido-markers/algorithms/common"
	"github.com/RyanBlaney/sonido-markers/algorithms/spectral"
	"github.com/RyanBlaney/sonido-markers/failure"
	"github.com/RyanBlaney/sonido-markers/logging"
	"github.com/RyanBlaney/sonido-markers/transcode"
)

// DefaultFrameRate is the activation analysis rate in frames per second
const DefaultFrameRate = 200.0

// ActivationCurve is a per-frame onset likelihood in [0,1] on a fixed frame-rate grid
type ActivationCurve struct {
	Values    []float64 `json:"values"`
	FrameRate float64   `json:"frame_rate"`
}

// Len returns the number of frames
func (c *ActivationCurve) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Values)
}

// Time returns the timestamp of a frame in seconds
func (c *ActivationCurve) Time(frame int) float64 {
	return float64(frame) / c.FrameRate
}

// ActivationModel turns a sample buffer into an onset activation curve.
// Implementations must be deterministic; a neural predictor can sit behind this
// interface as long as it honours the frame-rate and length contract.
type ActivationModel interface {
	Compute(ctx context.Context, buffer *transcode.SampleBuffer) (*ActivationCurve, error)
	FrameRate() float64
}

// SpectralFluxActivation is the classical DSP activation model: log-compressed
// spectral flux, adaptively floored and scaled to [0,1].
type SpectralFluxActivation struct {
	frameRate      float64
	windowDuration float64 // seconds, rounded up to a power-of-two window
	floorSeconds   float64 // half width of the moving-average floor
	stft           *spectral.STFT
	flux           *spectral.SpectralFlux
}

// NewSpectralFluxActivation creates the default activation model at frameRate
// (DefaultFrameRate when <= 0)
func NewSpectralFluxActivation(frameRate float64) *SpectralFluxActivation {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	return &SpectralFluxActivation{
		frameRate:      frameRate,
		windowDuration: 0.023,
		floorSeconds:   0.1,
		stft:           spectral.NewSTFT(),
		flux:           spectral.NewLogSpectralFlux(1.0),
	}
}

// FrameRate returns the frames per second of the produced curve
func (a *SpectralFluxActivation) FrameRate() float64 {
	return a.frameRate
}

// WindowSize returns the analysis window in samples for a sample rate
func (a *SpectralFluxActivation) WindowSize(sampleRate int) int {
	return common.NextPowerOfTwo(int(math.Round(a.windowDuration * float64(sampleRate))))
}

// Compute produces ceil(duration*frameRate) values in [0,1]
func (a *SpectralFluxActivation) Compute(ctx context.Context, buffer *transcode.SampleBuffer) (*ActivationCurve, error) {
	if buffer == nil || buffer.Len() == 0 {
		return nil, failure.Newf(failure.Analysis, "activation", "empty sample buffer")
	}

	sampleRate := buffer.SampleRate()
	windowSize := a.WindowSize(sampleRate)
	if buffer.Len() < windowSize {
		return nil, failure.Newf(failure.Analysis, "activation",
			"buffer of %d samples is shorter than one analysis frame (%d)", buffer.Len(), windowSize)
	}

	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "activation_model",
		"function":  "Compute",
	})

	numFrames := FrameCount(buffer.Len(), sampleRate, a.frameRate)

	layout := spectral.FrameLayout{
		WindowSize: windowSize,
		FrameRate:  a.frameRate,
		NumFrames:  numFrames,
	}
	stftResult, err := a.stft.Compute(ctx, buffer.Samples(), sampleRate, layout)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, failure.New(failure.Analysis, "activation", err)
	}

	values := a.flux.Compute(stftResult.Magnitude)
	// a sound still ringing at the end would read as an attack once padding cuts it off
	clear(values[layout.TailStart(buffer.Len(), sampleRate):])

	// remove the slowly varying part so sustained passages sit near zero
	floor := common.MovingAverage(values, int(math.Round(a.floorSeconds*a.frameRate)))
	for i := range values {
		values[i] = max(0, values[i]-floor[i])
	}
	peak := common.NormalizeMax(values)
	for i := range values {
		values[i] = min(1, max(0, values[i]))
	}

	logger.Debug("Activation curve computed", logging.Fields{
		"frames":      numFrames,
		"window_size": windowSize,
		"raw_peak":    peak,
	})

	return &ActivationCurve{Values: values, FrameRate: a.frameRate}, nil
}

// FrameCount returns ceil(samples/sampleRate*frameRate) without float drift
// pushing exact multiples up by one
func FrameCount(samples, sampleRate int, frameRate float64) int {
	exact := float64(samples) * frameRate / float64(sampleRate)
	return int(math.Ceil(exact - 1e-9))
}
