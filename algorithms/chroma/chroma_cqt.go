package chroma

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"runtime"
	"sync"

	"github.com/mjibson/go-dsp/window"

	"github.com/RyanBlaney/sonido-markers/algorithms/common"
	"github.com/RyanBlaney/sonido-markers/algorithms/spectral"
)

// ChromaCQT computes a chromagram from a Constant-Q transform.
//
// CQT bins are spaced f_k = minFreq * 2^(k/binsPerOctave), so every bin maps
// onto a musical pitch and folding octaves together gives the 12 pitch classes.
// The transform uses precomputed sparse spectral kernels: each frame costs one
// FFT plus a short dot product per bin.
type ChromaCQT struct {
	fft           *spectral.FFT
	minFreq       float64 // lowest bin, C2 by default
	octaves       int
	binsPerOctave int
	qFactor       float64
	tuningFreq    float64 // A4
	hopDuration   float64 // seconds between frames
	sparsity      float64 // kernel entries below this fraction of the bin peak are dropped

	mu      sync.Mutex
	kernels map[int]*cqtKernel // by sample rate
}

type cqtKernel struct {
	fftSize    int
	freqs      []float64
	pitchClass []int
	rows       []sparseRow
	hopSamples int
}

type sparseRow struct {
	index []int
	value []complex128 // conjugated and scaled by 1/fftSize
}

// NewChromaCQT creates a CQT chromagram calculator
func NewChromaCQT(minFreq float64, octaves, binsPerOctave int, qFactor, tuningFreq, hopDuration float64) *ChromaCQT {
	return &ChromaCQT{
		fft:           spectral.NewFFT(),
		minFreq:       minFreq,
		octaves:       octaves,
		binsPerOctave: binsPerOctave,
		qFactor:       qFactor,
		tuningFreq:    tuningFreq,
		hopDuration:   hopDuration,
		sparsity:      0.01,
		kernels:       make(map[int]*cqtKernel),
	}
}

// NewChromaCQTDefault covers C2 to C7 at semitone resolution with 0.2s hops
func NewChromaCQTDefault() *ChromaCQT {
	return NewChromaCQT(
		65.406, // C2
		5,
		12,
		25.0,
		440.0,
		0.2,
	)
}

// ComputeChroma returns one 12-element frame per hop, each scaled so its
// largest pitch class is 1. Frames without energy stay all zero.
func (cqt *ChromaCQT) ComputeChroma(ctx context.Context, signal []float64, sampleRate int) ([][]float64, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}

	kernel, err := cqt.kernelFor(sampleRate)
	if err != nil {
		return nil, err
	}

	numFrames := max(1, (len(signal)+kernel.hopSamples-1)/kernel.hopSamples)
	chromagram := make([][]float64, numFrames)

	jobs := make(chan int, numFrames)
	for i := 0; i < numFrames; i++ {
		jobs <- i
	}
	close(jobs)

	workers := max(1, min(runtime.NumCPU(), numFrames))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			frame := make([]float64, kernel.fftSize)
			for frameIdx := range jobs {
				if ctx.Err() != nil {
					return
				}
				chromagram[frameIdx] = cqt.computeFrame(signal, frameIdx*kernel.hopSamples, kernel, frame)
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return chromagram, nil
}

// MeanChroma averages the normalised chromagram over the whole signal
func (cqt *ChromaCQT) MeanChroma(ctx context.Context, signal []float64, sampleRate int) ([]float64, error) {
	chromagram, err := cqt.ComputeChroma(ctx, signal, sampleRate)
	if err != nil {
		return nil, err
	}

	mean := make([]float64, 12)
	for _, frame := range chromagram {
		for pc, v := range frame {
			mean[pc] += v
		}
	}
	for pc := range mean {
		mean[pc] /= float64(len(chromagram))
	}

	return mean, nil
}

// computeFrame transforms the fftSize samples centred on centre and folds the CQT magnitudes
func (cqt *ChromaCQT) computeFrame(signal []float64, centre int, kernel *cqtKernel, frame []float64) []float64 {
	start := centre - kernel.fftSize/2
	for i := range frame {
		pos := start + i
		if pos >= 0 && pos < len(signal) {
			frame[i] = signal[pos]
		} else {
			frame[i] = 0
		}
	}

	spectrum := cqt.fft.Compute(frame)
	cqtMagnitudes := make([]float64, len(kernel.rows))
	for k, row := range kernel.rows {
		var acc complex128
		for j, idx := range row.index {
			acc += spectrum[idx] * row.value[j]
		}
		cqtMagnitudes[k] = cmplx.Abs(acc)
	}

	return cqt.convertCQTToChroma(cqtMagnitudes, kernel.pitchClass)
}

// convertCQTToChroma sums bins across octaves and max-normalises the result
func (cqt *ChromaCQT) convertCQTToChroma(magnitudes []float64, pitchClass []int) []float64 {
	chroma := make([]float64, 12)
	for k, m := range magnitudes {
		chroma[pitchClass[k]] += m
	}

	if common.NormalizeMax(chroma) < 1e-10 {
		clear(chroma)
	}
	return chroma
}

// kernelFor returns the cached kernel for a sample rate, building it on first use
func (cqt *ChromaCQT) kernelFor(sampleRate int) (*cqtKernel, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive: %d", sampleRate)
	}

	cqt.mu.Lock()
	defer cqt.mu.Unlock()

	if kernel, ok := cqt.kernels[sampleRate]; ok {
		return kernel, nil
	}

	kernel, err := cqt.computeCQTKernel(sampleRate)
	if err != nil {
		return nil, err
	}
	cqt.kernels[sampleRate] = kernel
	return kernel, nil
}

// computeCQTKernel builds the sparse spectral kernel for one sample rate.
// Bins above 0.45*sampleRate are left out.
func (cqt *ChromaCQT) computeCQTKernel(sampleRate int) (*cqtKernel, error) {
	if cqt.binsPerOctave <= 0 || cqt.octaves <= 0 || cqt.minFreq <= 0 {
		return nil, fmt.Errorf("invalid CQT layout")
	}

	sr := float64(sampleRate)
	totalBins := cqt.octaves * cqt.binsPerOctave

	kernel := &cqtKernel{
		hopSamples: max(1, int(math.Round(cqt.hopDuration*sr))),
	}

	for k := 0; k < totalBins; k++ {
		freq := cqt.minFreq * math.Pow(2, float64(k)/float64(cqt.binsPerOctave))
		if freq > 0.45*sr {
			break
		}
		kernel.freqs = append(kernel.freqs, freq)
		kernel.pitchClass = append(kernel.pitchClass, FrequencyToPitchClass(freq, cqt.tuningFreq))
	}
	if len(kernel.freqs) == 0 {
		return nil, fmt.Errorf("sample rate %d too low for CQT starting at %.1f Hz", sampleRate, cqt.minFreq)
	}

	// the lowest bin has the longest kernel
	kernel.fftSize = common.NextPowerOfTwo(cqt.kernelLength(kernel.freqs[0], sr))
	kernel.rows = make([]sparseRow, len(kernel.freqs))

	temporal := make([]complex128, kernel.fftSize)
	for k, freq := range kernel.freqs {
		length := cqt.kernelLength(freq, sr)
		hann := window.Hann(length)
		offset := (kernel.fftSize - length) / 2

		clear(temporal)
		for n := 0; n < length; n++ {
			phase := 2 * math.Pi * freq * float64(n) / sr
			temporal[offset+n] = complex(hann[n]/float64(length), 0) * cmplx.Exp(complex(0, phase))
		}

		spectrum := cqt.fft.ComputeComplex(temporal)

		peak := 0.0
		for _, v := range spectrum {
			peak = max(peak, cmplx.Abs(v))
		}

		var row sparseRow
		scale := complex(1/float64(kernel.fftSize), 0)
		// a real frame only has energy to share with the positive-frequency half
		for idx := 0; idx < kernel.fftSize/2+1; idx++ {
			v := spectrum[idx]
			if cmplx.Abs(v) < cqt.sparsity*peak {
				continue
			}
			row.index = append(row.index, idx)
			row.value = append(row.value, cmplx.Conj(v)*scale)
		}
		kernel.rows[k] = row
	}

	return kernel, nil
}

// kernelLength is the number of samples giving the bin its constant Q
func (cqt *ChromaCQT) kernelLength(freq, sampleRate float64) int {
	return max(1, int(math.Ceil(cqt.qFactor*sampleRate/freq)))
}
