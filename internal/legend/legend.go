// Package legend loads and validates the color legend that drives
// calibration: which marker color on the master template belongs to which
// field, and how that field's text is normalized later.
package legend

import (
	"fmt"
	"image/color"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/stencilocr/stencil/internal/template"
)

// Entry associates one marker color with one field.
type Entry struct {
	FieldID   string `yaml:"field_id"`
	Label     string `yaml:"label"`
	Color     string `yaml:"color"` // "#RRGGBB"
	PageIndex int    `yaml:"page_index"`
	FieldType string `yaml:"field_type"`
	GroupID   string `yaml:"group_id,omitempty"`
}

// Legend is the validated calibration input.
type Legend struct {
	Entries []Entry `yaml:"fields"`
}

// LoadFile reads a YAML legend and validates it. Bad legends fail here, at
// calibration time, never deep inside extraction.
func LoadFile(path string) (*Legend, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read legend file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates raw legend YAML.
func Parse(data []byte) (*Legend, error) {
	var l Legend
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to parse legend YAML: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// Validate checks the legend's internal consistency: non-empty, unique field
// ids, unique colors per page, parseable colors, known field types, and
// group ids present exactly on table-row-group entries and disjoint from
// other entries' field ids.
func (l *Legend) Validate() error {
	if len(l.Entries) == 0 {
		return fmt.Errorf("legend has no fields")
	}

	ids := make(map[string]bool, len(l.Entries))
	colors := make(map[string]string) // "page/#RRGGBB" -> field_id
	for i, e := range l.Entries {
		if e.FieldID == "" {
			return fmt.Errorf("legend entry %d: empty field_id", i)
		}
		if ids[e.FieldID] {
			return fmt.Errorf("duplicate field_id %q", e.FieldID)
		}
		ids[e.FieldID] = true

		if _, err := ParseColor(e.Color); err != nil {
			return fmt.Errorf("field %q: %w", e.FieldID, err)
		}
		colorKey := fmt.Sprintf("%d/%s", e.PageIndex, e.Color)
		if prev, ok := colors[colorKey]; ok {
			return fmt.Errorf("fields %q and %q share marker color %s on page %d",
				prev, e.FieldID, e.Color, e.PageIndex)
		}
		colors[colorKey] = e.FieldID

		ft := template.FieldType(e.FieldType)
		if !ft.Valid() {
			return fmt.Errorf("field %q: %w: %q", e.FieldID, template.ErrUnsupportedFieldType, e.FieldType)
		}
		if ft == template.TableRowGroup && e.GroupID == "" {
			return fmt.Errorf("field %q: table-row-group requires a group_id", e.FieldID)
		}
		if ft != template.TableRowGroup && e.GroupID != "" {
			return fmt.Errorf("field %q: group_id only valid on table-row-group fields", e.FieldID)
		}
		if e.PageIndex < 0 {
			return fmt.Errorf("field %q: negative page_index %d", e.FieldID, e.PageIndex)
		}
	}

	// Record values are keyed by scalar field ids and group ids alike, so a
	// group id may not reuse the id of an entry outside its own group.
	groupOf := make(map[string]string, len(l.Entries))
	for _, e := range l.Entries {
		groupOf[e.FieldID] = e.GroupID
	}
	for _, e := range l.Entries {
		if e.GroupID == "" {
			continue
		}
		if owner, ok := groupOf[e.GroupID]; ok && owner != e.GroupID {
			return fmt.Errorf("group_id %q collides with a field of the same id", e.GroupID)
		}
	}
	return nil
}

// PageIndexes returns the distinct pages the legend references, ascending.
func (l *Legend) PageIndexes() []int {
	seen := make(map[int]bool)
	var pages []int
	for _, e := range l.Entries {
		if !seen[e.PageIndex] {
			seen[e.PageIndex] = true
			pages = append(pages, e.PageIndex)
		}
	}
	sort.Ints(pages)
	return pages
}

// EntriesOnPage returns the legend entries for one page, in legend order.
func (l *Legend) EntriesOnPage(page int) []Entry {
	var out []Entry
	for _, e := range l.Entries {
		if e.PageIndex == page {
			out = append(out, e)
		}
	}
	return out
}

// ParseColor parses a "#RRGGBB" marker color.
func ParseColor(s string) (color.RGBA, error) {
	if len(s) != 7 || s[0] != '#' {
		return color.RGBA{}, fmt.Errorf("marker color %q is not #RRGGBB", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("marker color %q is not #RRGGBB: %w", s, err)
	}
	return color.RGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 0xFF,
	}, nil
}
