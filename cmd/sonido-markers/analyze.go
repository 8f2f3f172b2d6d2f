package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-markers/analyzer"
)

var analyzeFlags struct {
	mode      string
	language  string
	threshold float64
	merge     float64
	frameRate float64
	maxBeats  int
	indent    bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Analyze an audio file and print the marker record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		audio, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		params := cfg.Analysis
		flags := cmd.Flags()
		if flags.Changed("threshold") {
			params.OnsetThreshold = analyzeFlags.threshold
		}
		if flags.Changed("merge-window") {
			params.MergeWindow = analyzeFlags.merge
		}
		if flags.Changed("frame-rate") {
			params.FrameRate = analyzeFlags.frameRate
		}
		if flags.Changed("max-beats") {
			params.MaxBeats = analyzeFlags.maxBeats
		}

		mode := analyzeFlags.mode
		if mode == "" {
			mode = cfg.Server.DefaultMode
		}

		a, cleanup, err := buildAnalyzer(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		result, err := a.Analyze(cmd.Context(), analyzer.Request{
			Audio:    audio,
			Mode:     analyzer.Mode(mode),
			Params:   params,
			Language: analyzeFlags.language,
		})
		if err != nil {
			return err
		}

		encoder := json.NewEncoder(cmd.OutOrStdout())
		if analyzeFlags.indent {
			encoder.SetIndent("", "  ")
		}
		return encoder.Encode(result)
	},
}

func init() {
	flags := analyzeCmd.Flags()
	flags.StringVar(&analyzeFlags.mode, "mode", "", "fast (markers only) or full (with transcription); defaults to the configured mode")
	flags.StringVar(&analyzeFlags.language, "language", "en", "transcription language")
	flags.Float64Var(&analyzeFlags.threshold, "threshold", 0.3, "onset activation threshold")
	flags.Float64Var(&analyzeFlags.merge, "merge-window", 0.03, "transient merge window in seconds")
	flags.Float64Var(&analyzeFlags.frameRate, "frame-rate", 200, "activation frames per second")
	flags.IntVar(&analyzeFlags.maxBeats, "max-beats", 300, "maximum number of beats emitted")
	flags.BoolVar(&analyzeFlags.indent, "indent", false, "pretty-print the JSON")

	rootCmd.AddCommand(analyzeCmd)
}
