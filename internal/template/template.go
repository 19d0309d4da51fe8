// Package template defines the persisted coordinate map produced by
// calibration and consumed by every extraction run.
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// FieldType identifies how a field's recognized text is normalized.
type FieldType string

const (
	ScalarText    FieldType = "scalar-text"
	ScalarNumeric FieldType = "scalar-numeric"
	ScalarDate    FieldType = "scalar-date"
	TableRowGroup FieldType = "table-row-group"
)

// ErrUnsupportedFieldType is returned when a mapping file names a field type
// this build does not understand. Extraction must reject such a mapping
// rather than guess.
var ErrUnsupportedFieldType = errors.New("unsupported field type")

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case ScalarText, ScalarNumeric, ScalarDate, TableRowGroup:
		return true
	}
	return false
}

// MultiPart reports whether a marker color for this field type may legally
// consist of several disjoint components (one per table row).
func (t FieldType) MultiPart() bool {
	return t == TableRowGroup
}

// BBox is a rectangle in template-pixel coordinates at the calibration DPI.
// Serialized as [x0, y0, x1, y1].
type BBox struct {
	X0, Y0, X1, Y1 int
}

// Valid reports whether the box is non-degenerate.
func (b BBox) Valid() bool {
	return b.X0 < b.X1 && b.Y0 < b.Y1
}

// Intersects reports whether two boxes share any area.
func (b BBox) Intersects(o BBox) bool {
	return b.X0 < o.X1 && o.X0 < b.X1 && b.Y0 < o.Y1 && o.Y0 < b.Y1
}

// MarshalJSON encodes the box as the wire-format array [x0, y0, x1, y1].
func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{b.X0, b.Y0, b.X1, b.Y1})
}

// UnmarshalJSON decodes the wire-format array [x0, y0, x1, y1].
func (b *BBox) UnmarshalJSON(data []byte) error {
	var arr [4]int
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("bbox must be a 4-element array: %w", err)
	}
	b.X0, b.Y0, b.X1, b.Y1 = arr[0], arr[1], arr[2], arr[3]
	return nil
}

// Width returns the horizontal extent in pixels.
func (b BBox) Width() int { return b.X1 - b.X0 }

// Height returns the vertical extent in pixels.
func (b BBox) Height() int { return b.Y1 - b.Y0 }

// FieldDefinition locates one semantic field on the template.
type FieldDefinition struct {
	FieldID   string    `json:"field_id"`
	Label     string    `json:"label"`
	PageIndex int       `json:"page_index"`
	BBox      BBox      `json:"bbox"`
	FieldType FieldType `json:"field_type"`
	GroupID   string    `json:"group_id,omitempty"`
}

// Mapping is the full calibration result for one template layout.
// Immutable after calibration; re-calibration replaces the whole value.
type Mapping struct {
	CalibrationDPI int               `json:"calibration_dpi"`
	PageCount      int               `json:"page_count"`
	Fields         []FieldDefinition `json:"fields"`
}

// Field returns the definition for id, or false if the mapping has none.
func (m *Mapping) Field(id string) (FieldDefinition, bool) {
	for _, f := range m.Fields {
		if f.FieldID == id {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// PageIndexes returns the distinct page indexes referenced by any field,
// in ascending order.
func (m *Mapping) PageIndexes() []int {
	seen := make(map[int]bool)
	var pages []int
	for _, f := range m.Fields {
		if !seen[f.PageIndex] {
			seen[f.PageIndex] = true
			pages = append(pages, f.PageIndex)
		}
	}
	sort.Ints(pages)
	return pages
}

// FieldsOnPage returns the definitions on the given page, in mapping order.
func (m *Mapping) FieldsOnPage(page int) []FieldDefinition {
	var out []FieldDefinition
	for _, f := range m.Fields {
		if f.PageIndex == page {
			out = append(out, f)
		}
	}
	return out
}

// Groups returns the table groups keyed by group id, each holding its column
// definitions in mapping order.
func (m *Mapping) Groups() map[string][]FieldDefinition {
	groups := make(map[string][]FieldDefinition)
	for _, f := range m.Fields {
		if f.FieldType == TableRowGroup && f.GroupID != "" {
			groups[f.GroupID] = append(groups[f.GroupID], f)
		}
	}
	return groups
}

// Validate checks the structural invariants a usable mapping must hold:
// positive DPI and page count, unique field ids, known field types, group ids
// on (and only on) table fields and disjoint from other fields' ids,
// non-degenerate boxes, in-range page indexes, and no overlapping boxes
// between distinct fields on the same page.
func (m *Mapping) Validate() error {
	if m.CalibrationDPI <= 0 {
		return fmt.Errorf("calibration_dpi must be positive, got %d", m.CalibrationDPI)
	}
	if m.PageCount <= 0 {
		return fmt.Errorf("page_count must be positive, got %d", m.PageCount)
	}
	if len(m.Fields) == 0 {
		return errors.New("mapping has no fields")
	}

	seen := make(map[string]bool, len(m.Fields))
	for _, f := range m.Fields {
		if f.FieldID == "" {
			return errors.New("field with empty field_id")
		}
		if seen[f.FieldID] {
			return fmt.Errorf("duplicate field_id %q", f.FieldID)
		}
		seen[f.FieldID] = true

		if !f.FieldType.Valid() {
			return fmt.Errorf("field %q: %w: %q", f.FieldID, ErrUnsupportedFieldType, f.FieldType)
		}
		if f.FieldType == TableRowGroup && f.GroupID == "" {
			return fmt.Errorf("field %q: table-row-group requires a group_id", f.FieldID)
		}
		if f.FieldType != TableRowGroup && f.GroupID != "" {
			return fmt.Errorf("field %q: group_id only valid on table-row-group fields", f.FieldID)
		}
		if !f.BBox.Valid() {
			return fmt.Errorf("field %q: degenerate bbox [%d,%d,%d,%d]",
				f.FieldID, f.BBox.X0, f.BBox.Y0, f.BBox.X1, f.BBox.Y1)
		}
		if f.PageIndex < 0 || f.PageIndex >= m.PageCount {
			return fmt.Errorf("field %q: page_index %d out of range [0,%d)",
				f.FieldID, f.PageIndex, m.PageCount)
		}
	}

	// Record values are keyed by scalar field ids and group ids alike, so a
	// group id may not reuse the id of a field outside its own group.
	groupOf := make(map[string]string, len(m.Fields))
	for _, f := range m.Fields {
		groupOf[f.FieldID] = f.GroupID
	}
	for _, f := range m.Fields {
		if f.FieldType != TableRowGroup {
			continue
		}
		if owner, ok := groupOf[f.GroupID]; ok && owner != f.GroupID {
			return fmt.Errorf("group_id %q collides with a field of the same id", f.GroupID)
		}
	}

	for i := 0; i < len(m.Fields); i++ {
		for j := i + 1; j < len(m.Fields); j++ {
			a, b := m.Fields[i], m.Fields[j]
			if a.PageIndex == b.PageIndex && a.BBox.Intersects(b.BBox) {
				return fmt.Errorf("fields %q and %q overlap on page %d",
					a.FieldID, b.FieldID, a.PageIndex)
			}
		}
	}

	return nil
}
