package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stencilocr/stencil/internal/assemble"
	"github.com/stencilocr/stencil/internal/pipeline"
	"github.com/stencilocr/stencil/internal/recognize"
	"github.com/stencilocr/stencil/internal/render"
	"github.com/stencilocr/stencil/internal/template"
)

var extractMappingPath string

var extractCmd = &cobra.Command{
	Use:   "extract <document.pdf>",
	Short: "Extract fields from a document using a calibrated mapping",
	Long: `Extract renders each mapped page of the target document at the
calibration DPI, crops every field's rectangle, recognizes the crops through
the configured backend, and prints the normalized record as JSON.

Examples:
  stencil extract invoice.pdf --mapping mapping.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		mapping, err := template.Load(extractMappingPath)
		if err != nil {
			return err
		}

		backends := make([]recognize.Recognizer, cfg.Backend.PoolSize)
		for i := range backends {
			backends[i] = recognize.NewHTTPClient(recognize.HTTPConfig{
				BaseURL: cfg.Backend.URL,
				Timeout: cfg.Backend.Timeout,
			})
		}
		pool, err := recognize.NewPool(backends, cfg.Backend.AcquireTimeout)
		if err != nil {
			return err
		}

		p := &pipeline.Pipeline{
			Renderer: render.Poppler{},
			Pool:     pool,
			Assembler: &assemble.Assembler{
				RowTolerance: cfg.Assemble.RowTolerance,
				DateLayouts:  cfg.Assemble.DateLayouts,
				Logger:       logger,
			},
			Logger: logger,
		}

		rec, err := p.Run(cmd.Context(), mapping, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVarP(
		&extractMappingPath, "mapping", "m", "template_mapping.json", "calibrated mapping file",
	)
}
