package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/RyanBlaney/sonido-markers/markers"
)

const keyPrefix = "sonido:result:"

// ResultCache stores fused results. A miss is (nil, false, nil).
type ResultCache interface {
	Get(ctx context.Context, key string) (*markers.AnalysisResult, bool, error)
	Set(ctx context.Context, key string, result *markers.AnalysisResult) error
}

// Key derives a cache key from the audio bytes and every option that affects
// the result. Parts are separated so ("ab","c") and ("a","bc") differ.
func Key(audio []byte, parts ...string) string {
	h := sha256.New()
	h.Write(audio)
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}
