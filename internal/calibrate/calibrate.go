// Package calibrate converts a color-annotated master template document into
// a persisted template mapping. Calibration is all-or-nothing: if any legend
// entry cannot be resolved, nothing is written.
package calibrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stencilocr/stencil/internal/detect"
	"github.com/stencilocr/stencil/internal/legend"
	"github.com/stencilocr/stencil/internal/render"
	"github.com/stencilocr/stencil/internal/template"
)

// Error marks a failed calibration run, carrying the field that could not be
// resolved. It wraps the underlying detector error so callers can still test
// for detect.ErrRegionNotFound / detect.ErrAmbiguousRegion.
type Error struct {
	FieldID string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("calibration failed for field %q: %v", e.FieldID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Builder runs calibration over a master template document.
type Builder struct {
	Renderer render.Renderer
	Detector *detect.Detector
	DPI      int
	Logger   *slog.Logger
}

// Build renders every page the legend references once, resolves each legend
// entry to its marker region, and assembles a validated mapping. The result
// is not persisted; use template.Save for that.
func (b *Builder) Build(ctx context.Context, templatePath string, lg *legend.Legend) (*template.Mapping, error) {
	log := b.Logger
	if log == nil {
		log = slog.Default()
	}

	pageCount, err := b.Renderer.PageCount(templatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open template document: %w", err)
	}

	boxes := make(map[string]template.BBox, len(lg.Entries))
	for _, page := range lg.PageIndexes() {
		if page >= pageCount {
			entries := lg.EntriesOnPage(page)
			return nil, &Error{
				FieldID: entries[0].FieldID,
				Err:     fmt.Errorf("legend references page %d but template has %d pages", page, pageCount),
			}
		}

		img, err := b.Renderer.RenderPage(ctx, templatePath, page, b.DPI)
		if err != nil {
			return nil, fmt.Errorf("failed to render template page %d: %w", page, err)
		}

		for _, entry := range lg.EntriesOnPage(page) {
			marker, err := legend.ParseColor(entry.Color)
			if err != nil {
				return nil, &Error{FieldID: entry.FieldID, Err: err}
			}

			multiPart := template.FieldType(entry.FieldType).MultiPart()
			region, err := b.Detector.Detect(img, marker, multiPart)
			if err != nil {
				return nil, &Error{FieldID: entry.FieldID, Err: err}
			}

			log.Debug("resolved marker region",
				"field", entry.FieldID,
				"page", page,
				"bbox", fmt.Sprintf("[%d,%d,%d,%d]", region.BBox.X0, region.BBox.Y0, region.BBox.X1, region.BBox.Y1),
				"components", region.Components,
				"pixels", region.Pixels,
			)
			boxes[entry.FieldID] = region.BBox
		}
	}

	mapping := &template.Mapping{
		CalibrationDPI: b.DPI,
		PageCount:      pageCount,
		Fields:         make([]template.FieldDefinition, 0, len(lg.Entries)),
	}
	for _, entry := range lg.Entries {
		label := entry.Label
		if label == "" {
			label = entry.FieldID
		}
		mapping.Fields = append(mapping.Fields, template.FieldDefinition{
			FieldID:   entry.FieldID,
			Label:     label,
			PageIndex: entry.PageIndex,
			BBox:      boxes[entry.FieldID],
			FieldType: template.FieldType(entry.FieldType),
			GroupID:   entry.GroupID,
		})
	}

	if err := mapping.Validate(); err != nil {
		return nil, fmt.Errorf("calibration produced an unusable mapping: %w", err)
	}

	log.Info("calibration complete",
		"fields", len(mapping.Fields),
		"pages", pageCount,
		"dpi", b.DPI,
	)
	return mapping, nil
}
