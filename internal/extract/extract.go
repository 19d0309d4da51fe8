// Package extract applies a template mapping to a target document: each
// referenced page is rendered once at the calibration DPI, every field's
// rectangle is cropped from it, and the crops are handed to the recognition
// backend. The extractor's contract is "crop and hand off" — it never
// interprets text; that is the assembler's job.
package extract

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"

	"github.com/stencilocr/stencil/internal/recognize"
	"github.com/stencilocr/stencil/internal/render"
	"github.com/stencilocr/stencil/internal/template"
)

// Warning reasons recorded during extraction.
const (
	// ReasonPageMissing marks fields whose page does not exist in the target
	// document. The field gets no lines and extraction continues.
	ReasonPageMissing = "PageMissing"
)

// Warning is a non-fatal, per-field note. Detail carries the raw text that
// failed to normalize, preserved for audit.
type Warning struct {
	FieldID string `json:"field_id"`
	Reason  string `json:"reason"`
	Detail  string `json:"detail,omitempty"`
}

// Result carries the raw recognized lines per field, plus warnings for
// fields that yielded nothing for structural reasons.
type Result struct {
	// Lines maps field_id to the backend's ordered lines for that crop.
	// Every field in the mapping has an entry; a nil slice means no text.
	Lines    map[string][]recognize.Line
	Warnings []Warning
}

// Extractor crops mapped regions out of target documents.
type Extractor struct {
	Renderer render.Renderer
	Pool     *recognize.Pool
	Logger   *slog.Logger
}

// Extract runs the mapping against one document. Structural failures — an
// unreadable document or an unreachable backend — abort the whole run with
// an error; a document with fewer pages than the mapping only downgrades the
// affected fields to PageMissing warnings.
//
// Cancellation is honored at page granularity: the context is checked before
// each page's render/crop batch, never mid-crop.
func (e *Extractor) Extract(ctx context.Context, m *template.Mapping, docPath string) (*Result, error) {
	log := e.Logger
	if log == nil {
		log = slog.Default()
	}

	docPages, err := e.Renderer.PageCount(docPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open target document: %w", err)
	}

	res := &Result{Lines: make(map[string][]recognize.Line, len(m.Fields))}

	for _, page := range m.PageIndexes() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("extraction cancelled: %w", err)
		}

		fields := m.FieldsOnPage(page)

		if page >= docPages {
			for _, f := range fields {
				res.Lines[f.FieldID] = nil
				res.Warnings = append(res.Warnings, Warning{FieldID: f.FieldID, Reason: ReasonPageMissing})
			}
			log.Warn("target document is missing a mapped page",
				"page", page, "doc_pages", docPages, "fields", len(fields))
			continue
		}

		img, err := e.Renderer.RenderPage(ctx, docPath, page, m.CalibrationDPI)
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", page, err)
		}

		for _, f := range fields {
			crop := cropRegion(img, f.BBox)
			if crop == nil {
				// bbox falls entirely outside the rendered page; nothing to
				// recognize, same outcome as an empty crop
				res.Lines[f.FieldID] = nil
				continue
			}

			lines, err := e.Pool.Recognize(ctx, crop)
			if err != nil {
				return nil, fmt.Errorf("recognition failed for field %q: %w", f.FieldID, err)
			}
			res.Lines[f.FieldID] = lines
		}

		log.Debug("page extracted", "page", page, "fields", len(fields))
	}

	return res, nil
}

// cropRegion cuts the field rectangle out of the page image, clamped to the
// page bounds. Returns nil if the intersection is empty.
func cropRegion(img image.Image, b template.BBox) image.Image {
	rect := image.Rect(b.X0, b.Y0, b.X1, b.Y1).Intersect(img.Bounds())
	if rect.Empty() {
		return nil
	}
	return imaging.Crop(img, rect)
}
