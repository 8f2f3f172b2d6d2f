package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-markers/logging"
	"github.com/RyanBlaney/sonido-markers/server"
	"github.com/RyanBlaney/sonido-markers/transcode"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API (/health, /analyze)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := transcode.NewDecoder(&cfg.Decoder).CheckTools(ctx); err != nil {
			logging.Warn("ffmpeg tools unavailable; only WAV input will decode", logging.Fields{"error": err.Error()})
		}

		a, cleanup, err := buildAnalyzer(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		return server.New(a, cfg.Server, cfg.Analysis).ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, overrides the config")
	rootCmd.AddCommand(serveCmd)
}
