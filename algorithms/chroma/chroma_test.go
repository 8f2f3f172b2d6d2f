package chroma

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tones(sampleRate int, duration float64, freqs ...float64) []float64 {
	samples := make([]float64, int(duration*float64(sampleRate)))
	for i := range samples {
		tm := float64(i) / float64(sampleRate)
		for _, f := range freqs {
			samples[i] += 0.3 * math.Sin(2*math.Pi*f*tm)
		}
	}
	return samples
}

func argMax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

func TestPitchClassHelpers(t *testing.T) {
	assert.Equal(t, 9, FrequencyToPitchClass(440, 440))
	assert.Equal(t, 0, FrequencyToPitchClass(261.63, 440))
	assert.Equal(t, -1, FrequencyToPitchClass(0, 440))
	assert.Equal(t, "C#", PitchClassName(13))
	assert.Equal(t, "B", PitchClassName(-1))
}

func TestMeanChromaPureTone(t *testing.T) {
	cqt := NewChromaCQTDefault()

	mean, err := cqt.MeanChroma(context.Background(), tones(8000, 2.0, 440), 8000)
	require.NoError(t, err)
	require.Len(t, mean, 12)

	assert.Equal(t, 9, argMax(mean))
	for pc, v := range mean {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
		if pc != 9 {
			assert.Less(t, v, mean[9])
		}
	}
}

func TestChromaFramesAreMaxNormalised(t *testing.T) {
	cqt := NewChromaCQTDefault()

	chromagram, err := cqt.ComputeChroma(context.Background(), tones(8000, 1.0, 261.63, 329.63, 392.0), 8000)
	require.NoError(t, err)
	require.NotEmpty(t, chromagram)

	middle := chromagram[len(chromagram)/2]
	assert.InDelta(t, 1.0, middle[argMax(middle)], 1e-9)
	assert.Contains(t, []int{0, 4, 7}, argMax(middle))
}

func TestChromaSilenceIsZero(t *testing.T) {
	mean, err := NewChromaCQTDefault().MeanChroma(context.Background(), make([]float64, 8000), 8000)
	require.NoError(t, err)
	assert.Equal(t, make([]float64, 12), mean)
}

func TestChromaCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewChromaCQTDefault().ComputeChroma(ctx, tones(8000, 1.0, 440), 8000)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChromaKernelCachedPerSampleRate(t *testing.T) {
	cqt := NewChromaCQTDefault()

	first, err := cqt.kernelFor(8000)
	require.NoError(t, err)
	second, err := cqt.kernelFor(8000)
	require.NoError(t, err)
	assert.Same(t, first, second)

	// C7 sits above 0.45*4000, so the top bins are dropped
	low, err := cqt.kernelFor(4000)
	require.NoError(t, err)
	assert.Less(t, len(low.freqs), len(first.freqs))
	assert.Len(t, first.freqs, 60)
}
