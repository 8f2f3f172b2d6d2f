package transcode

import (
	"fmt"
	"math"
)

// SampleBuffer is a decoded mono signal at its native sample rate.
// It is never mutated after decoding; Samples exposes the backing slice and
// callers must treat it as read-only.
type SampleBuffer struct {
	samples    []float64
	sampleRate int
}

// NewSampleBuffer wraps mono samples. The slice is retained, not copied.
func NewSampleBuffer(samples []float64, sampleRate int) (*SampleBuffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive: %d", sampleRate)
	}
	return &SampleBuffer{samples: samples, sampleRate: sampleRate}, nil
}

// Samples returns the mono PCM samples
func (b *SampleBuffer) Samples() []float64 {
	return b.samples
}

// SampleRate returns the sample rate in Hz
func (b *SampleBuffer) SampleRate() int {
	return b.sampleRate
}

// Len returns the number of samples
func (b *SampleBuffer) Len() int {
	return len(b.samples)
}

// Duration returns the length in seconds
func (b *SampleBuffer) Duration() float64 {
	if b.sampleRate == 0 {
		return 0
	}
	return float64(len(b.samples)) / float64(b.sampleRate)
}

// Peak returns the largest absolute sample value
func (b *SampleBuffer) Peak() float64 {
	peak := 0.0
	for _, s := range b.samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak
}

// downmix averages interleaved channels into one
func downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}
