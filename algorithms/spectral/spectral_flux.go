package spectral

import (
	"math"
)

// SpectralFlux measures frame-to-frame spectral increase, the classic onset
// detection function
type SpectralFlux struct {
	// compression is the gamma in log(1 + gamma*|X|); 0 disables compression
	compression float64
}

// NewSpectralFlux creates a flux calculator working on raw magnitudes
func NewSpectralFlux() *SpectralFlux {
	return &SpectralFlux{}
}

// NewLogSpectralFlux creates a flux calculator on log-compressed magnitudes.
// Compression evens out loud and quiet passages.
func NewLogSpectralFlux(gamma float64) *SpectralFlux {
	return &SpectralFlux{compression: gamma}
}

// Compute returns one half-wave rectified flux value per frame. Frame 0 is
// compared against silence, so an attack on the very first frame still counts.
func (sf *SpectralFlux) Compute(spectrogram [][]float64) []float64 {
	if len(spectrogram) == 0 {
		return []float64{}
	}

	flux := make([]float64, len(spectrogram))
	previous := make([]float64, len(spectrogram[0]))
	current := make([]float64, len(spectrogram[0]))

	for t, frame := range spectrogram {
		sum := 0.0
		for f, mag := range frame {
			current[f] = sf.compress(mag)
			if diff := current[f] - previous[f]; diff > 0 {
				sum += diff
			}
		}
		flux[t] = sum
		previous, current = current, previous
	}

	return flux
}

func (sf *SpectralFlux) compress(mag float64) float64 {
	if sf.compression <= 0 {
		return mag
	}
	return math.Log1p(sf.compression * mag)
}
