package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-markers/markers"
)

// clickWAV renders a mono 16-bit WAV of 1 kHz bursts every 0.5s
func clickWAV(t *testing.T, sampleRate int, duration float64) []byte {
	t.Helper()

	samples := make([]float64, int(duration*float64(sampleRate)))
	burst := int(0.02 * float64(sampleRate))
	for onset := 0.25; onset < duration; onset += 0.5 {
		start := int(math.Round(onset * float64(sampleRate)))
		for i := 0; i < burst && start+i < len(samples); i++ {
			tm := float64(i) / float64(sampleRate)
			samples[start+i] = 0.8 * math.Exp(-tm*200) * math.Sin(2*math.Pi*1000*tm)
		}
	}

	var body bytes.Buffer
	for _, s := range samples {
		require.NoError(t, binary.Write(&body, binary.LittleEndian, int16(math.Round(s*32767))))
	}

	var out bytes.Buffer
	write := func(v any) { require.NoError(t, binary.Write(&out, binary.LittleEndian, v)) }
	out.WriteString("RIFF")
	write(uint32(36 + body.Len()))
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	write(uint32(16))
	write(uint16(1))
	write(uint16(1))
	write(uint32(sampleRate))
	write(uint32(sampleRate * 2))
	write(uint16(2))
	write(uint16(16))
	out.WriteString("data")
	write(uint32(body.Len()))
	out.Write(body.Bytes())

	return out.Bytes()
}

func TestAnalyzeCommandFastMode(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("SONIDO_LOG_FORMAT", "text")
	t.Setenv("SONIDO_LOG_LEVEL", "error")
	t.Setenv("DEEPGRAM_API_KEY", "")
	t.Setenv("SONIDO_REDIS_ADDR", "")

	path := filepath.Join(dir, "clicks.wav")
	require.NoError(t, os.WriteFile(path, clickWAV(t, 8000, 4), 0o644))

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetArgs([]string{"analyze", "--mode", "fast", path})
	require.NoError(t, rootCmd.Execute())

	var result markers.AnalysisResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))

	assert.Equal(t, 4.0, result.DurationSec)
	assert.InDelta(t, 120.0, result.TempoBPM, 2.0)
	assert.NotEmpty(t, result.Markers.BeatsSec)
	assert.NotEmpty(t, result.Markers.TransientsSec)
	assert.Empty(t, result.Lyrics.Words)
}

// chdir changes the working directory for the duration of the test
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
