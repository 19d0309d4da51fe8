package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/stencilocr/stencil/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "stencil",
	Short: "Template-calibrated invoice field extraction",
	Long: `Stencil extracts structured fields from documents that share one fixed
physical layout, using exact geometric region matching.

A color-annotated master template is calibrated once into a reusable
coordinate map; every target document is then rendered at the calibration
DPI, each mapped region is cropped with zero margin, and the recognized
text is normalized per field type — including reconstruction of repeating
table rows.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./stencil.yaml or ~/.stencil/stencil.yaml)",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "enable debug logging",
	)

	rootCmd.AddCommand(calibrateCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the process logger honoring --verbose.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig loads configuration for a command run.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}
