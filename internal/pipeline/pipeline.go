// Package pipeline wires the region extractor and field assembler into the
// per-document run a host invokes. Each run is independent: the mapping is
// read-only shared state, everything else is local to the call, so hosts may
// run documents in parallel against the same Pipeline.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stencilocr/stencil/internal/assemble"
	"github.com/stencilocr/stencil/internal/extract"
	"github.com/stencilocr/stencil/internal/recognize"
	"github.com/stencilocr/stencil/internal/render"
	"github.com/stencilocr/stencil/internal/template"
)

// Pipeline processes target documents against one calibrated template.
type Pipeline struct {
	Renderer  render.Renderer
	Pool      *recognize.Pool
	Assembler *assemble.Assembler
	Logger    *slog.Logger
}

// Run extracts and assembles one document. A structural failure returns an
// error and no record; otherwise the record is complete with best-effort
// values and all accumulated warnings.
func (p *Pipeline) Run(ctx context.Context, m *template.Mapping, docPath string) (*assemble.Record, error) {
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	requestID := uuid.New().String()
	log = log.With("request_id", requestID, "doc", docPath)

	start := time.Now()
	log.Info("extraction started", "fields", len(m.Fields), "dpi", m.CalibrationDPI)

	ex := &extract.Extractor{Renderer: p.Renderer, Pool: p.Pool, Logger: log}
	res, err := ex.Extract(ctx, m, docPath)
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}

	rec := p.Assembler.Assemble(m, res)

	log.Info("extraction complete",
		"values", len(rec.Values),
		"warnings", len(rec.Warnings),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return rec, nil
}
