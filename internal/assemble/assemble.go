// Package assemble turns raw recognized lines into the final structured
// record. Normalization is a closed dispatch over the field type: adding a
// new type means adding a case here, never silent fallthrough.
package assemble

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/stencilocr/stencil/internal/extract"
	"github.com/stencilocr/stencil/internal/recognize"
	"github.com/stencilocr/stencil/internal/template"
)

// Warning reasons recorded during assembly.
const (
	ReasonNoTextDetected     = "NoTextDetected"
	ReasonNumericParseFailed = "NumericParseFailed"
	ReasonDateParseFailed    = "DateParseFailed"
	ReasonRowColumnMissing   = "RowColumnMissing"
)

// Record is the final per-document output: one normalized value per scalar
// field, one row list per table group, and every warning accumulated along
// the way. Values are string, float64, nil, or []Row.
type Record struct {
	Values   map[string]any    `json:"values"`
	Warnings []extract.Warning `json:"warnings"`
}

// Row maps each column's field_id to that row's text.
type Row map[string]string

// Assembler applies per-type normalization rules.
type Assembler struct {
	// RowTolerance is the vertical clustering tolerance in region-local
	// pixels: lines whose y-centers fall within it belong to one table row.
	RowTolerance float64
	// DateLayouts is the ordered list of accepted date layouts.
	DateLayouts []string
	Logger      *slog.Logger
}

// Assemble builds the record for one document. It is best-effort by design:
// every field gets a value (possibly nil or empty) and assembly itself never
// fails. Warnings from extraction are carried through ahead of assembly
// warnings, in field order.
func (a *Assembler) Assemble(m *template.Mapping, res *extract.Result) *Record {
	log := a.Logger
	if log == nil {
		log = slog.Default()
	}

	rec := &Record{
		Values:   make(map[string]any, len(m.Fields)),
		Warnings: append([]extract.Warning(nil), res.Warnings...),
	}

	// Fields on missing pages already carry a PageMissing warning; their
	// empty line sets should not also count as NoTextDetected.
	pageMissing := make(map[string]bool)
	for _, w := range res.Warnings {
		if w.Reason == extract.ReasonPageMissing {
			pageMissing[w.FieldID] = true
		}
	}

	doneGroups := make(map[string]bool)
	for _, f := range m.Fields {
		switch f.FieldType {
		case template.ScalarText:
			a.assembleText(rec, f, res.Lines[f.FieldID], pageMissing[f.FieldID])
		case template.ScalarNumeric:
			a.assembleNumeric(rec, f, res.Lines[f.FieldID], pageMissing[f.FieldID])
		case template.ScalarDate:
			a.assembleDate(rec, f, res.Lines[f.FieldID], pageMissing[f.FieldID])
		case template.TableRowGroup:
			if doneGroups[f.GroupID] {
				continue
			}
			doneGroups[f.GroupID] = true
			a.assembleGroup(rec, m.Groups()[f.GroupID], res, pageMissing)
		}
	}

	log.Debug("record assembled", "values", len(rec.Values), "warnings", len(rec.Warnings))
	return rec
}

func (a *Assembler) assembleText(rec *Record, f template.FieldDefinition, lines []recognize.Line, pageMissing bool) {
	text := joinLines(lines)
	rec.Values[f.FieldID] = text
	if text == "" && !pageMissing {
		rec.Warnings = append(rec.Warnings, extract.Warning{
			FieldID: f.FieldID, Reason: ReasonNoTextDetected,
		})
	}
}

func (a *Assembler) assembleNumeric(rec *Record, f template.FieldDefinition, lines []recognize.Line, pageMissing bool) {
	raw := joinLines(lines)
	if raw == "" {
		rec.Values[f.FieldID] = nil
		if !pageMissing {
			rec.Warnings = append(rec.Warnings, extract.Warning{
				FieldID: f.FieldID, Reason: ReasonNoTextDetected,
			})
		}
		return
	}

	n, ok := parseAmount(raw)
	if !ok {
		rec.Values[f.FieldID] = nil
		rec.Warnings = append(rec.Warnings, extract.Warning{
			FieldID: f.FieldID, Reason: ReasonNumericParseFailed, Detail: raw,
		})
		return
	}
	rec.Values[f.FieldID] = n
}

func (a *Assembler) assembleDate(rec *Record, f template.FieldDefinition, lines []recognize.Line, pageMissing bool) {
	raw := joinLines(lines)
	if raw == "" {
		rec.Values[f.FieldID] = nil
		if !pageMissing {
			rec.Warnings = append(rec.Warnings, extract.Warning{
				FieldID: f.FieldID, Reason: ReasonNoTextDetected,
			})
		}
		return
	}

	iso, ok := parseDate(raw, a.DateLayouts)
	if !ok {
		rec.Values[f.FieldID] = nil
		rec.Warnings = append(rec.Warnings, extract.Warning{
			FieldID: f.FieldID, Reason: ReasonDateParseFailed, Detail: raw,
		})
		return
	}
	rec.Values[f.FieldID] = iso
}

// joinLines concatenates lines top to bottom, separated by single spaces.
func joinLines(lines []recognize.Line) string {
	if len(lines) == 0 {
		return ""
	}
	sorted := append([]recognize.Line(nil), lines...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].YCenter < sorted[j].YCenter
	})

	parts := make([]string, 0, len(sorted))
	for _, l := range sorted {
		if t := strings.TrimSpace(l.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
