package tonal

import (
	"context"
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-markers/algorithms/chroma"
	"github.com/RyanBlaney/sonido-markers/algorithms/common"
	"github.com/RyanBlaney/sonido-markers/failure"
	"github.com/RyanBlaney/sonido-markers/logging"
	"github.com/RyanBlaney/sonido-markers/transcode"
)

// KeyMode represents major or minor mode
type KeyMode int

const (
	KeyModeMajor KeyMode = iota
	KeyModeMinor
)

func (m KeyMode) String() string {
	if m == KeyModeMinor {
		return "minor"
	}
	return "major"
}

// Key is a tonic pitch class plus mode
type Key struct {
	Tonic int     `json:"tonic"`
	Mode  KeyMode `json:"mode"`
}

// String formats the key as "<pitch class> <mode>", e.g. "C# minor"
func (k Key) String() string {
	return GetKeyName(k.Tonic, k.Mode)
}

// GetKeyName returns the display name of a key
func GetKeyName(tonic int, mode KeyMode) string {
	return chroma.PitchClassName(tonic) + " " + mode.String()
}

// GetRelativeKey returns the relative major/minor of a key
func GetRelativeKey(tonic int, mode KeyMode) (int, KeyMode) {
	if mode == KeyModeMajor {
		return (tonic + 9) % 12, KeyModeMinor
	}
	return (tonic + 3) % 12, KeyModeMajor
}

// ClassifyKey applies the third-comparison heuristic to a 12-bin chroma
// vector. The first maximum is the candidate tonic; see KeyFromCandidate.
// This is deliberately coarse and is not key-profile matching.
func ClassifyKey(chromaVector []float64) (Key, error) {
	if err := validateChroma(chromaVector); err != nil {
		return Key{}, err
	}
	return KeyFromCandidate(chromaVector, common.ArgMax(chromaVector)), nil
}

// KeyFromCandidate classifies around candidate tonic i: major at i when bin i
// is strictly stronger than the minor third above it, otherwise the relative
// minor at (i+9) mod 12.
func KeyFromCandidate(chromaVector []float64, i int) Key {
	i = ((i % 12) + 12) % 12
	if chromaVector[i] > chromaVector[(i+3)%12] {
		return Key{Tonic: i, Mode: KeyModeMajor}
	}
	tonic, mode := GetRelativeKey(i, KeyModeMajor)
	return Key{Tonic: tonic, Mode: mode}
}

func validateChroma(chromaVector []float64) error {
	if len(chromaVector) != 12 {
		return failure.Newf(failure.Analysis, "key_estimation", "chroma vector must have 12 bins, got %d", len(chromaVector))
	}

	total := 0.0
	for pc, v := range chromaVector {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return failure.Newf(failure.Analysis, "key_estimation", "invalid chroma energy %v at bin %d", v, pc)
		}
		total += v
	}
	if total <= 0 {
		return failure.Newf(failure.Analysis, "key_estimation", "chroma vector has no energy")
	}

	return nil
}

// KeyEstimationResult carries the key and the chroma it was derived from
type KeyEstimationResult struct {
	Key    Key       `json:"key"`
	Name   string    `json:"name"`
	Chroma []float64 `json:"chroma"`
}

// KeyEstimator derives a global key from the time-averaged CQT chroma
type KeyEstimator struct {
	chroma *chroma.ChromaCQT
}

// NewKeyEstimator creates a key estimator with the default CQT layout
func NewKeyEstimator() *KeyEstimator {
	return &KeyEstimator{
		chroma: chroma.NewChromaCQTDefault(),
	}
}

// EstimateKey computes the mean chroma of buffer and classifies it
func (ke *KeyEstimator) EstimateKey(ctx context.Context, buffer *transcode.SampleBuffer) (*KeyEstimationResult, error) {
	if buffer == nil || buffer.Len() == 0 {
		return nil, failure.Newf(failure.Analysis, "key_estimation", "empty sample buffer")
	}

	mean, err := ke.chroma.MeanChroma(ctx, buffer.Samples(), buffer.SampleRate())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, failure.New(failure.Analysis, "key_estimation", fmt.Errorf("chroma: %w", err))
	}

	key, err := ClassifyKey(mean)
	if err != nil {
		return nil, err
	}

	logging.WithContext(ctx).Debug("Key estimated", logging.Fields{
		"component": "key_estimator",
		"key":       key.String(),
	})

	return &KeyEstimationResult{
		Key:    key,
		Name:   key.String(),
		Chroma: mean,
	}, nil
}
