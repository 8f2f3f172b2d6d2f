package markers

import (
	"encoding/json"
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-markers/failure"
	"github.com/RyanBlaney/sonido-markers/transcribe"
)

func baseInputs() Inputs {
	return Inputs{
		Duration:   12.3456,
		Tempo:      119.996,
		Beats:      []float64{0.5, 1.0, 1.5},
		Transients: []float64{0.25},
		Key:        "C# minor",
	}
}

func TestFuseCapsBeatsToFirst300(t *testing.T) {
	in := baseInputs()
	in.Beats = make([]float64, 1000)
	for i := range in.Beats {
		in.Beats[i] = float64(i) * 0.5
	}
	// shuffled input still yields the earliest beats
	rand.New(rand.NewSource(1)).Shuffle(len(in.Beats), func(i, j int) {
		in.Beats[i], in.Beats[j] = in.Beats[j], in.Beats[i]
	})

	result, err := Fuse(in)
	require.NoError(t, err)
	require.Len(t, result.Markers.BeatsSec, 300)
	assert.Equal(t, 0.0, result.Markers.BeatsSec[0])
	assert.Equal(t, 149.5, result.Markers.BeatsSec[299])
}

func TestFuseNeverTruncatesTransients(t *testing.T) {
	in := baseInputs()
	in.Transients = []float64{3.0001, 1.2, 1.2004, 0.1}
	for i := 0; i < 500; i++ {
		in.Transients = append(in.Transients, 10+float64(i)*0.05)
	}

	result, err := Fuse(in)
	require.NoError(t, err)

	got := result.Markers.TransientsSec
	assert.Len(t, got, 503)
	assert.Equal(t, []float64{0.1, 1.2, 3.0}, got[:3])
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i], got[i-1])
	}
}

func TestFuseRounding(t *testing.T) {
	in := baseInputs()
	in.Beats = []float64{0.12345, 0.98765}

	result, err := Fuse(in)
	require.NoError(t, err)

	assert.Equal(t, 12.35, result.DurationSec)
	assert.Equal(t, 120.0, result.TempoBPM)
	assert.Equal(t, []float64{0.123, 0.988}, result.Markers.BeatsSec)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	for _, field := range strings.FieldsFunc(string(data), func(r rune) bool {
		return strings.ContainsRune(`{}[],:"`, r)
	}) {
		if _, err := strconv.ParseFloat(field, 64); err != nil {
			continue
		}
		if dot := strings.IndexByte(field, '.'); dot >= 0 {
			assert.LessOrEqual(t, len(field)-dot-1, 3, "too many decimals in %s", field)
		}
	}
}

func TestFuseEmptyTranscriptSerialisesArrays(t *testing.T) {
	in := baseInputs()
	in.Transients = nil

	result, err := Fuse(in)
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"duration_sec": 12.35,
		"tempo_bpm": 120,
		"key": "C# minor",
		"markers": {"beats_sec": [0.5, 1, 1.5], "transients_sec": []},
		"lyrics": {"full_text": "", "words": [], "phrases": []}
	}`, string(data))
}

func TestFuseCopiesTranscriptVerbatim(t *testing.T) {
	confidence := 0.9
	transcript := &transcribe.Transcript{
		FullText: "Hi there",
		Words: []transcribe.Word{
			{Word: "hi", Start: 0.1, End: 0.2, Confidence: &confidence},
			{Word: "there", Start: 0.3, End: 0.5},
		},
		Phrases: []transcribe.Phrase{{Text: "Hi there", Start: 0.1, End: 0.5}},
	}

	in := baseInputs()
	in.Transcript = transcript

	result, err := Fuse(in)
	require.NoError(t, err)
	assert.Equal(t, *transcript, result.Lyrics)

	// the result does not alias the collaborator's slices
	result.Lyrics.Words[0].Word = "changed"
	assert.Equal(t, "hi", transcript.Words[0].Word)
}

func TestFuseRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Inputs)
	}{
		{"no tempo", func(in *Inputs) { in.Tempo = 0 }},
		{"no key", func(in *Inputs) { in.Key = "" }},
		{"no beats", func(in *Inputs) { in.Beats = nil }},
		{"negative duration", func(in *Inputs) { in.Duration = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInputs()
			tt.mutate(&in)
			result, err := Fuse(in)
			assert.Nil(t, result)
			assert.True(t, failure.Is(err, failure.Analysis))
		})
	}
}
