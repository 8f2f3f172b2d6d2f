package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-markers/analyzer"
	"github.com/RyanBlaney/sonido-markers/cache"
	"github.com/RyanBlaney/sonido-markers/config"
	"github.com/RyanBlaney/sonido-markers/logging"
	"github.com/RyanBlaney/sonido-markers/transcode"
	"github.com/RyanBlaney/sonido-markers/transcribe"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "sonido-markers",
	Short:         "Extract tempo, beats, transients, key and lyrics from audio",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and installs the configured global logger
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logging.SetGlobalLogger(logger)

	return cfg, nil
}

// buildAnalyzer wires the decoder, optional transcriber and optional cache.
// The returned cleanup closes anything that was opened.
func buildAnalyzer(ctx context.Context, cfg *config.Config) (*analyzer.Analyzer, func(), error) {
	decoderConfig := cfg.Decoder
	opts := []analyzer.Option{}
	cleanup := func() {}

	if cfg.TranscriptionEnabled() {
		client, err := transcribe.NewDeepgramClient(cfg.Deepgram, nil)
		if err != nil {
			return nil, cleanup, err
		}
		opts = append(opts, analyzer.WithTranscriber(client))
	} else {
		logging.Warn("DEEPGRAM_API_KEY not set; only fast mode is available")
	}

	if cfg.CacheEnabled() {
		resultCache, err := cache.ConnectRedis(ctx, cfg.Redis)
		if err != nil {
			// the cache is an optimisation; run without it
			logging.Warn("Result cache disabled", logging.Fields{"error": err.Error()})
		} else {
			opts = append(opts, analyzer.WithCache(resultCache))
			cleanup = func() { resultCache.Close() }
		}
	}

	return analyzer.New(transcode.NewDecoder(&decoderConfig), opts...), cleanup, nil
}
