package spectral

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutocorrelationMatchesDirectSum(t *testing.T) {
	x := []float64{1, -2, 3, 0.5, -1, 2, 0, 1}
	got := NewFFT().Autocorrelation(x, 5)
	require.Len(t, got, 5)

	for lag := 0; lag < 5; lag++ {
		want := 0.0
		for i := 0; i+lag < len(x); i++ {
			want += x[i] * x[i+lag]
		}
		assert.InDelta(t, want, got[lag], 1e-9, "lag %d", lag)
	}
}

func TestSTFTFindsSineBin(t *testing.T) {
	sampleRate := 8000
	freq := 1000.0
	signal := make([]float64, sampleRate)
	for i := range signal {
		signal[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}

	result, err := NewSTFT().Compute(context.Background(), signal, sampleRate, FrameLayout{
		WindowSize: 512,
		FrameRate:  100,
		NumFrames:  100,
	})
	require.NoError(t, err)
	assert.Equal(t, 257, result.FreqBins)
	assert.Len(t, result.Magnitude, 100)

	// 1000 Hz at 15.625 Hz/bin is bin 64
	row := result.Magnitude[50]
	best := 0
	for k := range row {
		if row[k] > row[best] {
			best = k
		}
	}
	assert.Equal(t, 64, best)
}

func TestSTFTHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSTFT().Compute(ctx, make([]float64, 4096), 8000, FrameLayout{WindowSize: 256, FrameRate: 100, NumFrames: 50})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSTFTRejectsBadLayout(t *testing.T) {
	_, err := NewSTFT().Compute(context.Background(), []float64{1}, 8000, FrameLayout{WindowSize: 0, FrameRate: 100, NumFrames: 1})
	assert.Error(t, err)
	_, err = NewSTFT().Compute(context.Background(), nil, 8000, FrameLayout{WindowSize: 8, FrameRate: 100, NumFrames: 1})
	assert.Error(t, err)
}

func TestSpectralFluxRectifies(t *testing.T) {
	spectrogram := [][]float64{
		{1, 0},
		{1, 0},
		{3, 2},
		{0, 0},
	}

	flux := NewSpectralFlux().Compute(spectrogram)
	assert.Equal(t, []float64{1, 0, 4, 0}, flux)

	logFlux := NewLogSpectralFlux(1).Compute(spectrogram)
	assert.InDelta(t, math.Log1p(3)-math.Log1p(1)+math.Log1p(2), logFlux[2], 1e-12)
	assert.Empty(t, NewSpectralFlux().Compute(nil))
}

func TestFrameLayoutTailStart(t *testing.T) {
	// 100 fps at 8 kHz is an 80 sample hop; a 256 window reaches 128 samples past its centre
	layout := FrameLayout{WindowSize: 256, FrameRate: 100, NumFrames: 100}

	assert.Equal(t, 80, layout.Centre(1, 8000))
	// frame 98 ends at 7840+128 = 7968, frame 99 at 8048
	assert.Equal(t, 99, layout.TailStart(8000, 8000))
	assert.Equal(t, 100, layout.TailStart(9000, 8000))
	assert.Equal(t, 0, layout.TailStart(100, 8000))
}
