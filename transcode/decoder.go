package transcode

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-markers/failure"
	"github.com/RyanBlaney/sonido-markers/logging"
)

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	FFmpegPath  string        `json:"ffmpeg_path" toml:"ffmpeg_path"`   // Path to ffmpeg binary
	FFprobePath string        `json:"ffprobe_path" toml:"ffprobe_path"` // Path to ffprobe binary
	Timeout     time.Duration `json:"timeout" toml:"timeout"`           // Timeout for each ffmpeg/ffprobe run
	TempDir     string        `json:"temp_dir" toml:"temp_dir"`         // Staging directory, "" = os.TempDir()
	MaxDuration time.Duration `json:"max_duration" toml:"max_duration"` // 0 = decode the whole file
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		Timeout:     2 * time.Minute,
	}
}

// AudioMetadata holds detected audio properties from FFprobe
type AudioMetadata struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
	Bitrate    int     `json:"bitrate"`
	Format     string  `json:"format"`
}

// Decoder turns an encoded audio byte stream into a mono SampleBuffer at the
// source sample rate. WAV is decoded in-process; everything else goes through ffmpeg.
type Decoder struct {
	config *DecoderConfig
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{config: config}
}

// Decode decodes the full stream. Every failure is a failure.Decode error.
func (d *Decoder) Decode(ctx context.Context, data []byte) (*SampleBuffer, error) {
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "Decode",
		"data_size": len(data),
	})

	if len(data) == 0 {
		return nil, failure.Newf(failure.Decode, "decode", "empty audio data")
	}

	container := SniffContainer(data)
	if container.Known && !container.Media {
		return nil, failure.Newf(failure.Decode, "decode", "unsupported container %q (%s)", container.Extension, container.MIME)
	}

	logger.Debug("Starting audio decode", logging.Fields{
		"container": container.Extension,
		"mime":      container.MIME,
	})

	if container.IsWAV() {
		buffer, err := decodeWAV(data)
		if err == nil && buffer.Len() > 0 {
			logger.Debug("Decoded WAV natively", logging.Fields{
				"sample_rate": buffer.SampleRate(),
				"duration":    buffer.Duration(),
			})
			return buffer, nil
		}
		// float, extensible and multichannel WAV go through ffmpeg
		logger.Debug("Native WAV decode failed, falling back to ffmpeg", logging.Fields{
			"error": fmt.Sprint(err),
		})
	}

	buffer, err := d.decodeWithFFmpeg(ctx, data, container)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Error(err, "Audio decode failed")
		return nil, failure.New(failure.Decode, "ffmpeg", err)
	}

	return buffer, nil
}

// decodeWithFFmpeg stages data in a temp file so containers that need seeking
// (mp4/m4a with a trailing moov atom) decode correctly. The file is always removed.
func (d *Decoder) decodeWithFFmpeg(ctx context.Context, data []byte, container ContainerInfo) (*SampleBuffer, error) {
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "decodeWithFFmpeg",
	})

	pattern := "sonido-*"
	if container.Extension != "" {
		pattern += "." + container.Extension
	}

	staged, err := os.CreateTemp(d.config.TempDir, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to stage audio: %w", err)
	}
	stagedPath := staged.Name()
	defer os.Remove(stagedPath)

	if _, err := staged.Write(data); err != nil {
		staged.Close()
		return nil, fmt.Errorf("failed to stage audio: %w", err)
	}
	if err := staged.Close(); err != nil {
		return nil, fmt.Errorf("failed to stage audio: %w", err)
	}

	metadata, err := d.probeAudioFile(ctx, stagedPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("Audio metadata detected", logging.Fields{
		"input_sample_rate": metadata.SampleRate,
		"input_channels":    metadata.Channels,
		"input_codec":       metadata.Codec,
		"input_duration":    metadata.Duration,
		"input_bitrate":     metadata.Bitrate,
	})

	runCtx := ctx
	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	args := d.buildFFmpegArgs(stagedPath, metadata)
	cmd := exec.CommandContext(runCtx, d.config.FFmpegPath, args...)

	logger.Debug("Running ffmpeg command", logging.Fields{
		"args": strings.Join(args, " "),
	})

	startTime := time.Now()
	output, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return nil, fmt.Errorf("ffmpeg decode failed: %w, stderr: %s", err, strings.TrimSpace(string(exitError.Stderr)))
		}
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	interleaved := bytesToFloat64(output)
	samples := downmix(interleaved, metadata.Channels)
	if len(samples) == 0 {
		return nil, fmt.Errorf("no audio samples decoded")
	}

	logger.Debug("FFmpeg decode completed", logging.Fields{
		"output_samples": len(samples),
		"decode_time":    time.Since(startTime).Seconds(),
	})

	return NewSampleBuffer(samples, metadata.SampleRate)
}

// buildFFmpegArgs decodes the first audio stream at its native rate and channel
// count; downmixing happens in Go so the averaging rule is explicit.
func (d *Decoder) buildFFmpegArgs(input string, metadata *AudioMetadata) []string {
	args := []string{
		"-v", "error",
		"-nostdin",
		"-i", input,
		"-map", "0:a:0",
		"-vn",
		"-f", "f64le",
		"-ac", strconv.Itoa(metadata.Channels),
		"-ar", strconv.Itoa(metadata.SampleRate),
	}

	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", d.config.MaxDuration.Seconds()))
	}

	return append(args, "pipe:1")
}

// probeAudioFile uses ffprobe to get audio information from a file
func (d *Decoder) probeAudioFile(ctx context.Context, filename string) (*AudioMetadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "a:0",
		filename,
	}

	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	output, err := exec.CommandContext(ctx, d.config.FFprobePath, args...).Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, string(exitError.Stderr))
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseFFprobeOutput(output)
}

// parseFFprobeOutput parses ffprobe JSON to extract audio metadata
func parseFFprobeOutput(jsonData []byte) (*AudioMetadata, error) {
	var probe struct {
		Streams []struct {
			CodecType     string `json:"codec_type"`
			CodecName     string `json:"codec_name"`
			SampleRate    string `json:"sample_rate"`
			Channels      int    `json:"channels"`
			Duration      string `json:"duration"`
			BitRate       string `json:"bit_rate"`
			CodecLongName string `json:"codec_long_name"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("no audio streams found")
	}

	stream := probe.Streams[0]
	if stream.CodecType != "audio" {
		return nil, fmt.Errorf("stream is not audio type: %s", stream.CodecType)
	}

	// the native rate is the whole point of probing; no fallback
	sampleRate, err := strconv.Atoi(stream.SampleRate)
	if err != nil || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %q", stream.SampleRate)
	}

	duration, err := strconv.ParseFloat(stream.Duration, 64)
	if err != nil {
		duration = 0
	}

	bitrate, err := strconv.Atoi(stream.BitRate)
	if err != nil {
		bitrate = 0
	}

	if stream.Channels <= 0 || stream.Channels > 8 {
		return nil, fmt.Errorf("invalid channel count: %d", stream.Channels)
	}

	return &AudioMetadata{
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		Codec:      stream.CodecName,
		Duration:   duration,
		Bitrate:    bitrate,
		Format:     stream.CodecLongName,
	}, nil
}

// bytesToFloat64 converts raw little-endian float64 bytes to []float64
func bytesToFloat64(data []byte) []float64 {
	data = data[:len(data)-(len(data)%8)]
	if len(data) == 0 {
		return nil
	}

	samples := make([]float64, len(data)/8)
	for i := range samples {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples[i] = math.Float64frombits(bits)
	}

	return samples
}

// CheckTools verifies ffmpeg and ffprobe are runnable
func (d *Decoder) CheckTools(ctx context.Context) error {
	if err := exec.CommandContext(ctx, d.config.FFmpegPath, "-version").Run(); err != nil {
		return fmt.Errorf("ffmpeg not found at %s: %w", d.config.FFmpegPath, err)
	}
	if err := exec.CommandContext(ctx, d.config.FFprobePath, "-version").Run(); err != nil {
		return fmt.Errorf("ffprobe not found at %s: %w", d.config.FFprobePath, err)
	}
	return nil
}
