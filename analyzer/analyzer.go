package analyzer

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-markers/algorithms/temporal"
	"github.com/RyanBlaney/sonido-markers/algorithms/tonal"
	"github.com/RyanBlaney/sonido-markers/cache"
	"github.com/RyanBlaney/sonido-markers/failure"
	"github.com/RyanBlaney/sonido-markers/logging"
	"github.com/RyanBlaney/sonido-markers/markers"
	"github.com/RyanBlaney/sonido-markers/transcode"
	"github.com/RyanBlaney/sonido-markers/transcribe"
)

// Request is one analysis invocation
type Request struct {
	Audio    []byte
	Mode     Mode
	Params   Params
	Language string
}

// AudioDecoder turns encoded bytes into a mono sample buffer
type AudioDecoder interface {
	Decode(ctx context.Context, data []byte) (*transcode.SampleBuffer, error)
}

// ActivationFactory builds the activation model for a frame rate
type ActivationFactory func(frameRate float64) temporal.ActivationModel

// Analyzer runs the decode, analysis, transcription and fusion pipeline.
// It holds only immutable collaborators and is safe for concurrent use.
type Analyzer struct {
	decoder       AudioDecoder
	transcriber   transcribe.Transcriber
	cache         cache.ResultCache
	newActivation ActivationFactory
	beatTracker   *temporal.BeatTracker
	keyEstimator  *tonal.KeyEstimator
	concurrency   int
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithTranscriber enables full mode
func WithTranscriber(t transcribe.Transcriber) Option {
	return func(a *Analyzer) { a.transcriber = t }
}

// WithCache enables result caching
func WithCache(c cache.ResultCache) Option {
	return func(a *Analyzer) { a.cache = c }
}

// WithActivationModel replaces the spectral flux activation model
func WithActivationModel(f ActivationFactory) Option {
	return func(a *Analyzer) { a.newActivation = f }
}

// WithConcurrency bounds the parallel analysis branches
func WithConcurrency(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// New creates an analyzer
func New(decoder AudioDecoder, opts ...Option) *Analyzer {
	a := &Analyzer{
		decoder: decoder,
		newActivation: func(frameRate float64) temporal.ActivationModel {
			return temporal.NewSpectralFluxActivation(frameRate)
		},
		beatTracker:  temporal.NewBeatTracker(),
		keyEstimator: tonal.NewKeyEstimator(),
		concurrency:  runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CanTranscribe reports whether full mode is available
func (a *Analyzer) CanTranscribe() bool {
	return a.transcriber != nil
}

// analysisOutputs collects the branch results; each field has one writer
type analysisOutputs struct {
	duration   float64
	transients []float64
	grid       *temporal.BeatGrid
	key        *tonal.KeyEstimationResult
	transcript *transcribe.Transcript
}

// Analyze runs one invocation. It returns either a complete result or an
// error; a failure in any branch cancels the others.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*markers.AnalysisResult, error) {
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return nil, err
	}
	if err := req.Params.Validate(); err != nil {
		return nil, err
	}
	if mode == ModeFull && a.transcriber == nil {
		return nil, failure.Newf(failure.TranscriptionUnavailable, "analyze", "full mode requested but no transcriber is configured")
	}
	language := req.Language
	if language == "" {
		language = "en"
	}

	// callers such as the HTTP server may already have tagged the request
	if fields, ok := logging.FieldsFromContext(ctx); !ok || fields["request_id"] == nil {
		ctx = logging.ContextWithFields(ctx, logging.Fields{"request_id": uuid.NewString()})
	}
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "analyzer",
		"function":  "Analyze",
		"mode":      string(mode),
		"bytes":     len(req.Audio),
	})

	var cacheKey string
	if a.cache != nil {
		cacheKey = cache.Key(req.Audio, string(mode), req.Params.String(), language)
		cached, hit, err := a.cache.Get(ctx, cacheKey)
		if err != nil {
			logger.Warn("Result cache lookup failed", logging.Fields{"error": err.Error()})
		} else if hit {
			logger.Debug("Result cache hit")
			return cached, nil
		}
	}

	startTime := time.Now()
	out := &analysisOutputs{}

	g, gctx := errgroup.WithContext(ctx)

	// transcription only needs the raw bytes, so it overlaps decode and analysis
	if mode == ModeFull {
		g.Go(func() error {
			transcript, err := a.transcriber.Transcribe(gctx, req.Audio, transcribe.Options{Language: language})
			if err != nil {
				return classify(gctx, failure.TranscriptionUnavailable, "transcribe", err)
			}
			if transcript == nil {
				return failure.Newf(failure.TranscriptionUnavailable, "transcribe", "transcriber returned no transcript")
			}
			out.transcript = transcript
			return nil
		})
	}

	g.Go(func() error {
		return a.analyzeAudio(gctx, req, out)
	})

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Error(err, "Analysis failed", logging.Fields{"kind": failure.KindOf(err).String()})
		return nil, err
	}

	result, err := markers.Fuse(markers.Inputs{
		Duration:   out.duration,
		Tempo:      out.grid.Tempo,
		Beats:      out.grid.Beats,
		Transients: out.transients,
		Key:        out.key.Name,
		Transcript: out.transcript,
		MaxBeats:   req.Params.MaxBeats,
	})
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		if err := a.cache.Set(ctx, cacheKey, result); err != nil {
			logger.Warn("Result cache store failed", logging.Fields{"error": err.Error()})
		}
	}

	logger.Info("Analysis completed", logging.Fields{
		"duration_sec": result.DurationSec,
		"tempo_bpm":    result.TempoBPM,
		"key":          result.Key,
		"beats":        len(result.Markers.BeatsSec),
		"transients":   len(result.Markers.TransientsSec),
		"words":        len(result.Lyrics.Words),
		"elapsed_sec":  time.Since(startTime).Seconds(),
	})

	return result, nil
}

// analyzeAudio decodes once then runs the three independent analyses on the shared buffer
func (a *Analyzer) analyzeAudio(ctx context.Context, req Request, out *analysisOutputs) error {
	buffer, err := a.decoder.Decode(ctx, req.Audio)
	if err != nil {
		return classify(ctx, failure.Decode, "decode", err)
	}
	out.duration = buffer.Duration()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	g.Go(func() error {
		curve, err := a.newActivation(req.Params.FrameRate).Compute(gctx, buffer)
		if err != nil {
			return classify(gctx, failure.Analysis, "activation", err)
		}
		out.transients = temporal.NewPeakPicker(req.Params.OnsetThreshold, req.Params.MergeWindow).Pick(curve)
		return nil
	})

	g.Go(func() error {
		grid, err := a.beatTracker.Track(gctx, buffer)
		if err != nil {
			return classify(gctx, failure.Analysis, "beat_tracking", err)
		}
		out.grid = grid
		return nil
	})

	g.Go(func() error {
		key, err := a.keyEstimator.EstimateKey(gctx, buffer)
		if err != nil {
			return classify(gctx, failure.Analysis, "key_estimation", err)
		}
		out.key = key
		return nil
	})

	return g.Wait()
}

// classify keeps context errors and already-classified errors as they are and
// wraps anything else with kind
func classify(ctx context.Context, kind failure.Kind, op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if failure.KindOf(err) != failure.Unknown {
		return err
	}
	return failure.New(kind, op, err)
}
