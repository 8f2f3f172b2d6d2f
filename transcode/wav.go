package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

const wavStreamChunk = 4096

// errWAVLayout marks WAV files beep cannot represent faithfully; the decoder
// hands them to ffmpeg instead
var errWAVLayout = errors.New("wav layout not supported natively")

// decodeWAV decodes 8, 16 and 24-bit PCM RIFF/WAVE bytes with one or two
// channels in-process, averaging to mono. beep streams only the first two
// channels, so wider files are rejected with errWAVLayout.
func decodeWAV(data []byte) (*SampleBuffer, error) {
	streamer, format, err := wav.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("wav decode failed: %w", err)
	}
	defer streamer.Close()

	if format.NumChannels < 1 || format.NumChannels > 2 {
		return nil, fmt.Errorf("%w: %d channels", errWAVLayout, format.NumChannels)
	}
	if format.Precision < 1 || format.Precision > 3 {
		return nil, fmt.Errorf("%w: %d-bit samples", errWAVLayout, format.Precision*8)
	}

	gain := wavGain(format)
	samples := make([]float64, 0, max(streamer.Len(), 0))
	chunk := make([][2]float64, wavStreamChunk)

	for {
		n, ok := streamer.Stream(chunk)
		for i := 0; i < n; i++ {
			// mono sources arrive duplicated into both slots
			samples = append(samples, gain*(chunk[i][0]+chunk[i][1])/2)
		}
		if !ok {
			break
		}
	}

	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("wav stream failed: %w", err)
	}

	return NewSampleBuffer(samples, int(format.SampleRate))
}

// wavGain rescales beep's output to the full-scale convention ffmpeg uses
// (int/2^(bits-1)). beep divides 16 and 24-bit samples by 2^bits-1.
func wavGain(format beep.Format) float64 {
	if format.Precision < 2 {
		return 1
	}
	bits := float64(8 * format.Precision)
	return (math.Exp2(bits) - 1) / math.Exp2(bits-1)
}
