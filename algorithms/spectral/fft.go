package spectral

import (
	"github.com/mjibson/go-dsp/fft"
)

// FFT wraps mjibson/go-dsp for the real and complex transforms the analysis needs
type FFT struct{}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute computes the FFT of a real signal. go-dsp handles any length,
// power-of-two lengths are fastest.
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}
	return fft.FFTReal(x)
}

// ComputeComplex computes the FFT of a complex signal
func (f *FFT) ComputeComplex(x []complex128) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}
	return fft.FFT(x)
}

// ComputeInverseReal computes inverse FFT and returns real part only
func (f *FFT) ComputeInverseReal(x []complex128) []float64 {
	if len(x) == 0 {
		return []float64{}
	}

	result := fft.IFFT(x)
	realResult := make([]float64, len(result))
	for i, val := range result {
		realResult[i] = real(val)
	}

	return realResult
}

// Autocorrelation returns the raw (unnormalised) autocorrelation of x for lags
// 0..maxLag-1, computed as IFFT(|FFT(x)|^2) with zero padding to avoid wrap-around.
func (f *FFT) Autocorrelation(x []float64, maxLag int) []float64 {
	if len(x) == 0 || maxLag <= 0 {
		return []float64{}
	}
	maxLag = min(maxLag, len(x))

	size := 1
	for size < 2*len(x) {
		size <<= 1
	}
	padded := make([]float64, size)
	copy(padded, x)

	spectrum := f.Compute(padded)
	for i, c := range spectrum {
		spectrum[i] = complex(real(c)*real(c)+imag(c)*imag(c), 0)
	}

	full := f.ComputeInverseReal(spectrum)
	return full[:maxLag]
}
