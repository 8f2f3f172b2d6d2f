package spectral

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"runtime"
	"sync"

	"github.com/mjibson/go-dsp/window"
)

// FrameLayout places analysis frames on a fixed frame-rate grid. Frame i is
// centred on sample round(i*sampleRate/FrameRate); samples outside the signal
// are zero.
type FrameLayout struct {
	WindowSize int
	FrameRate  float64
	NumFrames  int
}

// Centre returns the sample frame is centred on
func (l FrameLayout) Centre(frame, sampleRate int) int {
	return int(math.Round(float64(frame) * float64(sampleRate) / l.FrameRate))
}

// TailStart returns the first frame whose window runs past the last of
// numSamples samples. Those frames see the signal cut off by zero padding.
func (l FrameLayout) TailStart(numSamples, sampleRate int) int {
	frame := l.NumFrames
	for frame > 0 && l.Centre(frame-1, sampleRate)-l.WindowSize/2+l.WindowSize > numSamples {
		frame--
	}
	return frame
}

// STFT computes magnitude spectrograms with a pool of FFT workers
type STFT struct {
	fft *FFT
}

// STFTResult holds a time x frequency magnitude matrix
type STFTResult struct {
	Magnitude      [][]float64 `json:"magnitude"`
	TimeFrames     int         `json:"time_frames"`
	FreqBins       int         `json:"freq_bins"`
	SampleRate     int         `json:"sample_rate"`
	WindowSize     int         `json:"window_size"`
	FrameRate      float64     `json:"frame_rate"`
	FreqResolution float64     `json:"freq_resolution"` // Hz per bin
}

// NewSTFT creates a new STFT calculator
func NewSTFT() *STFT {
	return &STFT{
		fft: NewFFT(),
	}
}

// Compute computes the Hann-windowed magnitude spectrogram for layout.
// Workers stop early and ctx.Err() is returned when ctx is cancelled.
func (s *STFT) Compute(ctx context.Context, signal []float64, sampleRate int, layout FrameLayout) (*STFTResult, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}
	if layout.WindowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}
	if layout.FrameRate <= 0 {
		return nil, fmt.Errorf("frame rate must be positive")
	}
	if layout.NumFrames <= 0 {
		return nil, fmt.Errorf("frame count must be positive")
	}

	numFrames := layout.NumFrames
	windowSize := layout.WindowSize
	freqBins := windowSize/2 + 1
	coefficients := window.Hann(windowSize)

	magnitude := make([][]float64, numFrames)

	jobs := make(chan int, numFrames)
	for frameIdx := 0; frameIdx < numFrames; frameIdx++ {
		jobs <- frameIdx
	}
	close(jobs)

	var wg sync.WaitGroup
	workers := s.getOptimalWorkerCount(numFrames)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// reused per worker
			frameBuffer := make([]float64, windowSize)

			for frameIdx := range jobs {
				if ctx.Err() != nil {
					return
				}

				start := layout.Centre(frameIdx, sampleRate) - windowSize/2
				for i := 0; i < windowSize; i++ {
					pos := start + i
					if pos >= 0 && pos < len(signal) {
						frameBuffer[i] = signal[pos] * coefficients[i]
					} else {
						frameBuffer[i] = 0
					}
				}

				spectrum := s.fft.Compute(frameBuffer)
				row := make([]float64, freqBins)
				for k := 0; k < freqBins; k++ {
					row[k] = cmplx.Abs(spectrum[k])
				}
				magnitude[frameIdx] = row
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &STFTResult{
		Magnitude:      magnitude,
		TimeFrames:     numFrames,
		FreqBins:       freqBins,
		SampleRate:     sampleRate,
		WindowSize:     windowSize,
		FrameRate:      layout.FrameRate,
		FreqResolution: float64(sampleRate) / float64(windowSize),
	}, nil
}

// getOptimalWorkerCount determines the number of workers based on workload
func (s *STFT) getOptimalWorkerCount(numFrames int) int {
	numCPU := runtime.NumCPU()

	// small workloads are not worth the goroutines
	if numFrames < 100 {
		return max(1, min(numCPU/2, numFrames))
	}

	if numFrames < 1000 {
		return min(numCPU, 8)
	}

	return numCPU
}
