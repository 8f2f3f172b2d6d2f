package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/RyanBlaney/sonido-markers/algorithms/common"
	"github.com/RyanBlaney/sonido-markers/failure"
	"github.com/RyanBlaney/sonido-markers/logging"
	"github.com/RyanBlaney/sonido-markers/transcode"
)

const (
	defaultDeepgramURL = "https://api.deepgram.com/v1/listen"
	maxErrorBody       = 512
)

// DeepgramConfig configures the pre-recorded transcription client
type DeepgramConfig struct {
	APIKey            string        `toml:"api_key"`
	BaseURL           string        `toml:"base_url"`
	Model             string        `toml:"model"`
	Timeout           time.Duration `toml:"timeout"`
	RequestsPerSecond float64       `toml:"requests_per_second"`
	Burst             int           `toml:"burst"`
}

// DefaultDeepgramConfig returns the nova-2 configuration without an API key
func DefaultDeepgramConfig() DeepgramConfig {
	return DeepgramConfig{
		BaseURL:           defaultDeepgramURL,
		Model:             "nova-2",
		Timeout:           5 * time.Minute,
		RequestsPerSecond: 5,
		Burst:             5,
	}
}

// DeepgramClient calls the Deepgram pre-recorded REST endpoint with smart
// formatting, punctuation and utterance segmentation enabled
type DeepgramClient struct {
	config     DeepgramConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewDeepgramClient creates a client. httpClient may be nil.
func NewDeepgramClient(config DeepgramConfig, httpClient *http.Client) (*DeepgramClient, error) {
	if config.APIKey == "" {
		return nil, failure.Newf(failure.TranscriptionUnavailable, "deepgram", "no API key configured")
	}
	defaults := DefaultDeepgramConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = defaults.Burst
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &DeepgramClient{
		config:     config,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
	}, nil
}

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
				Words      []struct {
					Word       string   `json:"word"`
					Start      float64  `json:"start"`
					End        float64  `json:"end"`
					Confidence *float64 `json:"confidence"`
				} `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
		Utterances []struct {
			Transcript string  `json:"transcript"`
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
		} `json:"utterances"`
	} `json:"results"`
}

// Transcribe uploads audio and converts the first channel's best alternative.
// Every failure other than cancellation is TranscriptionUnavailable.
func (c *DeepgramClient) Transcribe(ctx context.Context, audio []byte, opts Options) (*Transcript, error) {
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "deepgram_client",
		"function":  "Transcribe",
		"bytes":     len(audio),
	})

	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, failure.New(failure.TranscriptionUnavailable, "deepgram", err)
	}

	req, err := c.buildRequest(ctx, audio, opts)
	if err != nil {
		return nil, failure.New(failure.TranscriptionUnavailable, "deepgram", err)
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, failure.New(failure.TranscriptionUnavailable, "deepgram", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, failure.Newf(failure.TranscriptionUnavailable, "deepgram",
			"status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, failure.New(failure.TranscriptionUnavailable, "deepgram", fmt.Errorf("decode response: %w", err))
	}

	transcript, err := convertResponse(&decoded)
	if err != nil {
		return nil, failure.New(failure.TranscriptionUnavailable, "deepgram", err)
	}

	logger.Debug("Transcription completed", logging.Fields{
		"words":    len(transcript.Words),
		"phrases":  len(transcript.Phrases),
		"duration": time.Since(startTime).Seconds(),
	})

	return transcript, nil
}

func (c *DeepgramClient) buildRequest(ctx context.Context, audio []byte, opts Options) (*http.Request, error) {
	endpoint, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	language := opts.Language
	if language == "" {
		language = "en"
	}

	query := endpoint.Query()
	query.Set("model", c.config.Model)
	query.Set("smart_format", "true")
	query.Set("utterances", "true")
	query.Set("punctuate", "true")
	query.Set("language", language)
	endpoint.RawQuery = query.Encode()

	mimeType := opts.MIMEType
	if mimeType == "" {
		mimeType = transcode.SniffContainer(audio).MIME
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(audio))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.config.APIKey)
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("Accept", "application/json")

	return req, nil
}

// convertResponse rounds every time and confidence to 3 decimals and trims phrase text
func convertResponse(resp *deepgramResponse) (*Transcript, error) {
	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return nil, fmt.Errorf("response has no transcription alternatives")
	}
	alt := resp.Results.Channels[0].Alternatives[0]

	transcript := Empty()
	transcript.FullText = alt.Transcript

	for _, w := range alt.Words {
		word := Word{
			Word:  w.Word,
			Start: common.Round(w.Start, 3),
			End:   common.Round(w.End, 3),
		}
		if w.Confidence != nil {
			confidence := common.Round(*w.Confidence, 3)
			word.Confidence = &confidence
		}
		transcript.Words = append(transcript.Words, word)
	}

	for _, u := range resp.Results.Utterances {
		transcript.Phrases = append(transcript.Phrases, Phrase{
			Text:  strings.TrimSpace(u.Transcript),
			Start: common.Round(u.Start, 3),
			End:   common.Round(u.End, 3),
		})
	}

	return transcript, nil
}
