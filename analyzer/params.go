package analyzer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/RyanBlaney/sonido-markers/algorithms/temporal"
	"github.com/RyanBlaney/sonido-markers/failure"
	"github.com/RyanBlaney/sonido-markers/markers"
)

// Mode selects whether transcription is part of the invocation
type Mode string

const (
	ModeFast Mode = "fast" // markers only, lyrics empty
	ModeFull Mode = "full" // markers plus transcription
)

// ParseMode accepts "fast" or "full", case-insensitively
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFast:
		return ModeFast, nil
	case ModeFull:
		return ModeFull, nil
	default:
		return "", failure.Newf(failure.InvalidRequest, "parse_mode", "unsupported mode %q (want fast or full)", s)
	}
}

// Params are the tunable algorithm parameters of one invocation
type Params struct {
	OnsetThreshold float64 `toml:"onset_threshold" json:"onset_threshold"`
	MergeWindow    float64 `toml:"merge_window" json:"merge_window"` // seconds
	FrameRate      float64 `toml:"frame_rate" json:"frame_rate"`     // activation frames per second
	MaxBeats       int     `toml:"max_beats" json:"max_beats"`
}

// DefaultParams returns threshold 0.3, merge window 0.03s, 200 fps and a 300 beat cap
func DefaultParams() Params {
	return Params{
		OnsetThreshold: temporal.DefaultOnsetThreshold,
		MergeWindow:    temporal.DefaultMergeWindow,
		FrameRate:      temporal.DefaultFrameRate,
		MaxBeats:       markers.DefaultMaxBeats,
	}
}

// Validate reports out-of-range values as an invalid request
func (p Params) Validate() error {
	switch {
	case p.OnsetThreshold < 0 || p.OnsetThreshold >= 1:
		return failure.Newf(failure.InvalidRequest, "params", "onset threshold must be in [0,1), got %v", p.OnsetThreshold)
	case p.MergeWindow < 0:
		return failure.Newf(failure.InvalidRequest, "params", "merge window must not be negative, got %v", p.MergeWindow)
	case p.FrameRate <= 0 || p.FrameRate > 1000:
		return failure.Newf(failure.InvalidRequest, "params", "frame rate must be in (0,1000], got %v", p.FrameRate)
	case p.MaxBeats <= 0:
		return failure.Newf(failure.InvalidRequest, "params", "max beats must be positive, got %d", p.MaxBeats)
	}
	return nil
}

// String is a canonical encoding used in cache keys
func (p Params) String() string {
	return fmt.Sprintf("threshold=%s,merge=%s,fps=%s,beats=%d",
		strconv.FormatFloat(p.OnsetThreshold, 'g', -1, 64),
		strconv.FormatFloat(p.MergeWindow, 'g', -1, 64),
		strconv.FormatFloat(p.FrameRate, 'g', -1, 64),
		p.MaxBeats)
}
