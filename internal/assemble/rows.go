package assemble

import (
	"fmt"
	"sort"

	"github.com/stencilocr/stencil/internal/extract"
	"github.com/stencilocr/stencil/internal/recognize"
	"github.com/stencilocr/stencil/internal/template"
)

// taggedLine is one recognized line annotated with the column it came from.
type taggedLine struct {
	column string
	line   recognize.Line
}

// cluster is one logical table row under construction.
type cluster struct {
	lines []taggedLine
	sum   float64
}

func (c *cluster) mean() float64 {
	return c.sum / float64(len(c.lines))
}

// assembleGroup reconstructs the rows of one table group. Columns are
// geometrically fixed and independent; only vertical position decides row
// membership, which is what prevents cross-row bleed.
func (a *Assembler) assembleGroup(rec *Record, columns []template.FieldDefinition, res *extract.Result, pageMissing map[string]bool) {
	groupID := columns[0].GroupID

	var tagged []taggedLine
	allMissing := true
	for _, col := range columns {
		if !pageMissing[col.FieldID] {
			allMissing = false
		}
		for _, l := range res.Lines[col.FieldID] {
			tagged = append(tagged, taggedLine{column: col.FieldID, line: l})
		}
	}

	if len(tagged) == 0 {
		rec.Values[groupID] = []Row{}
		if !allMissing {
			rec.Warnings = append(rec.Warnings, extract.Warning{
				FieldID: groupID, Reason: ReasonNoTextDetected,
			})
		}
		return
	}

	clusters := a.clusterByY(tagged)

	rows := make([]Row, 0, len(clusters))
	for rowIndex, c := range clusters {
		row := make(Row, len(columns))
		byColumn := make(map[string][]recognize.Line, len(columns))
		for _, tl := range c.lines {
			byColumn[tl.column] = append(byColumn[tl.column], tl.line)
		}
		for _, col := range columns {
			cell := joinLines(byColumn[col.FieldID])
			row[col.FieldID] = cell
			if cell == "" {
				rec.Warnings = append(rec.Warnings, extract.Warning{
					FieldID: col.FieldID,
					Reason:  ReasonRowColumnMissing,
					Detail:  rowLabel(groupID, rowIndex),
				})
			}
		}
		rows = append(rows, row)
	}

	rec.Values[groupID] = rows
}

// clusterByY groups lines into rows: a line joins the first cluster whose
// running mean y-center is within RowTolerance, otherwise it opens a new
// row. Clusters are returned ordered by ascending mean y-center.
func (a *Assembler) clusterByY(tagged []taggedLine) []*cluster {
	sorted := append([]taggedLine(nil), tagged...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].line.YCenter < sorted[j].line.YCenter
	})

	var clusters []*cluster
	for _, tl := range sorted {
		var target *cluster
		for _, c := range clusters {
			d := tl.line.YCenter - c.mean()
			if d < 0 {
				d = -d
			}
			if d <= a.RowTolerance {
				target = c
				break
			}
		}
		if target == nil {
			target = &cluster{}
			clusters = append(clusters, target)
		}
		target.lines = append(target.lines, tl)
		target.sum += tl.line.YCenter
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].mean() < clusters[j].mean()
	})
	return clusters
}

func rowLabel(groupID string, rowIndex int) string {
	return fmt.Sprintf("%s/row %d", groupID, rowIndex)
}
