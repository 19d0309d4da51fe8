package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stencilocr/stencil/internal/calibrate"
	"github.com/stencilocr/stencil/internal/detect"
	"github.com/stencilocr/stencil/internal/legend"
	"github.com/stencilocr/stencil/internal/render"
	"github.com/stencilocr/stencil/internal/template"
)

var (
	calibrateLegendPath string
	calibrateOutPath    string
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate <template.pdf>",
	Short: "Calibrate a marked-up master template into a mapping file",
	Long: `Calibrate renders the color-annotated master template, locates each
legend color's exact marker rectangle, and writes the resulting template
mapping. Calibration is all-or-nothing: if any legend entry cannot be
resolved, no mapping is written.

Examples:
  stencil calibrate master.pdf --legend configs/msme-invoice.yaml -o mapping.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		lg, err := legend.LoadFile(calibrateLegendPath)
		if err != nil {
			return fmt.Errorf("invalid legend: %w", err)
		}

		builder := &calibrate.Builder{
			Renderer: render.Poppler{},
			Detector: &detect.Detector{
				Tolerance:          uint8(cfg.Detector.ColorTolerance),
				MinComponentPixels: cfg.Detector.MinComponentPixels,
			},
			DPI:    cfg.Calibration.DPI,
			Logger: logger,
		}

		mapping, err := builder.Build(cmd.Context(), args[0], lg)
		if err != nil {
			return err
		}

		if err := template.Save(calibrateOutPath, mapping); err != nil {
			return err
		}

		logger.Info("mapping written", "path", calibrateOutPath, "fields", len(mapping.Fields))
		return nil
	},
}

func init() {
	calibrateCmd.Flags().StringVar(
		&calibrateLegendPath, "legend", "", "legend YAML file (required)",
	)
	calibrateCmd.Flags().StringVarP(
		&calibrateOutPath, "out", "o", "template_mapping.json", "output mapping file",
	)
	calibrateCmd.MarkFlagRequired("legend")
}
