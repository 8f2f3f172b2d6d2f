package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"strconv"
	"testing"

	"github.com/RyanBlaney/sonido-markers/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pcmWAV renders interleaved float frames as an integer PCM RIFF/WAVE file
func pcmWAV(t *testing.T, sampleRate, channels, bits int, interleaved []float64) []byte {
	t.Helper()

	bytesPerSample := bits / 8
	scale := math.Exp2(float64(bits-1)) - 1

	var body bytes.Buffer
	for _, s := range interleaved {
		v := int32(math.Round(s * scale))
		switch bits {
		case 8:
			body.WriteByte(byte(v + 128))
		case 16:
			require.NoError(t, binary.Write(&body, binary.LittleEndian, int16(v)))
		case 24:
			body.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16)})
		default:
			t.Fatalf("unsupported bit depth %d", bits)
		}
	}

	var out bytes.Buffer
	write := func(v any) { require.NoError(t, binary.Write(&out, binary.LittleEndian, v)) }

	out.WriteString("RIFF")
	write(uint32(36 + body.Len()))
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	write(uint32(16))
	write(uint16(1))
	write(uint16(channels))
	write(uint32(sampleRate))
	write(uint32(sampleRate * channels * bytesPerSample))
	write(uint16(channels * bytesPerSample))
	write(uint16(bits))
	out.WriteString("data")
	write(uint32(body.Len()))
	out.Write(body.Bytes())

	return out.Bytes()
}

func pcm16WAV(t *testing.T, sampleRate, channels int, interleaved []float64) []byte {
	return pcmWAV(t, sampleRate, channels, 16, interleaved)
}

func TestDecodeWAVDownmixesAndKeepsRate(t *testing.T) {
	frames := 2205
	interleaved := make([]float64, 0, frames*2)
	for i := 0; i < frames; i++ {
		interleaved = append(interleaved, 0.5, 0.25)
	}

	buffer, err := NewDecoder(nil).Decode(context.Background(), pcm16WAV(t, 22050, 2, interleaved))
	require.NoError(t, err)

	assert.Equal(t, 22050, buffer.SampleRate())
	assert.Equal(t, frames, buffer.Len())
	assert.InDelta(t, 0.1, buffer.Duration(), 1e-9)
	assert.InDelta(t, 0.375, buffer.Samples()[100], 1e-3)
}

func TestDecodeWAVKeepsFullScale(t *testing.T) {
	for _, bits := range []int{8, 16, 24} {
		t.Run(strconv.Itoa(bits)+"-bit", func(t *testing.T) {
			buffer, err := decodeWAV(pcmWAV(t, 8000, 1, bits, []float64{0.5, -0.5, 0.25, 0}))
			require.NoError(t, err)

			tolerance := 2 / math.Exp2(float64(bits-1))
			assert.InDeltaSlice(t, []float64{0.5, -0.5, 0.25, 0}, buffer.Samples(), tolerance)
		})
	}
}

func TestDecodeWAVRejectsMoreThanTwoChannels(t *testing.T) {
	interleaved := make([]float64, 0, 400)
	for i := 0; i < 100; i++ {
		interleaved = append(interleaved, 0.5, 0.5, -0.5, -0.5)
	}
	data := pcm16WAV(t, 8000, 4, interleaved)

	_, err := decodeWAV(data)
	assert.ErrorIs(t, err, errWAVLayout)

	decoder := NewDecoder(nil)
	if err := decoder.CheckTools(context.Background()); err != nil {
		t.Skipf("ffmpeg unavailable: %v", err)
	}

	buffer, err := decoder.Decode(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, 8000, buffer.SampleRate())
	for _, s := range buffer.Samples() {
		assert.InDelta(t, 0, s, 1e-3)
	}
}

func TestDecodeRejectsEmptyInput(t *testing.T) {
	_, err := NewDecoder(nil).Decode(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.Decode))
}

func TestDecodeRejectsNonMediaContainer(t *testing.T) {
	png := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, make([]byte, 64)...)

	_, err := NewDecoder(nil).Decode(context.Background(), png)
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrDecode)
	assert.Contains(t, err.Error(), "unsupported container")
}

func TestSniffContainer(t *testing.T) {
	wav := SniffContainer(pcm16WAV(t, 8000, 1, []float64{0, 0.1, 0.2}))
	assert.True(t, wav.Known)
	assert.True(t, wav.Media)
	assert.True(t, wav.IsWAV())

	unknown := SniffContainer([]byte("definitely not audio"))
	assert.False(t, unknown.Known)
	assert.Equal(t, "application/octet-stream", unknown.MIME)
}

func TestParseFFprobeOutput(t *testing.T) {
	meta, err := parseFFprobeOutput([]byte(`{"streams":[{"codec_type":"audio","codec_name":"mp3",
		"sample_rate":"48000","channels":2,"duration":"12.5","bit_rate":"320000",
		"codec_long_name":"MP3 (MPEG audio layer 3)"}]}`))
	require.NoError(t, err)

	assert.Equal(t, 48000, meta.SampleRate)
	assert.Equal(t, 2, meta.Channels)
	assert.Equal(t, "mp3", meta.Codec)
	assert.InDelta(t, 12.5, meta.Duration, 1e-9)
	assert.Equal(t, 320000, meta.Bitrate)
}

func TestParseFFprobeOutputErrors(t *testing.T) {
	cases := map[string]string{
		"no streams":   `{"streams":[]}`,
		"video stream": `{"streams":[{"codec_type":"video","sample_rate":"0","channels":0}]}`,
		"bad rate":     `{"streams":[{"codec_type":"audio","sample_rate":"N/A","channels":2}]}`,
		"bad channels": `{"streams":[{"codec_type":"audio","sample_rate":"44100","channels":12}]}`,
		"not json":     `garbage`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseFFprobeOutput([]byte(payload))
			assert.Error(t, err)
		})
	}
}

func TestBytesToFloat64TrimsPartialSample(t *testing.T) {
	raw := make([]byte, 19)
	binary.LittleEndian.PutUint64(raw[0:], math.Float64bits(0.25))
	binary.LittleEndian.PutUint64(raw[8:], math.Float64bits(-1))

	assert.Equal(t, []float64{0.25, -1}, bytesToFloat64(raw))
	assert.Nil(t, bytesToFloat64(raw[:7]))
}

func TestDownmixAveragesChannels(t *testing.T) {
	assert.Equal(t, []float64{0.5, 0}, downmix([]float64{1, 0, 0.5, -0.5}, 2))
	mono := []float64{0.1, 0.2}
	assert.Equal(t, mono, downmix(mono, 1))
}
