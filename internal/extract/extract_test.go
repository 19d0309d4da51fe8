package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"
	"time"

	"github.com/stencilocr/stencil/internal/recognize"
	"github.com/stencilocr/stencil/internal/template"
)

// fakeRenderer serves pre-built page images and counts renders per page.
type fakeRenderer struct {
	pages   []image.Image
	renders map[int]int
	openErr error
}

func (f *fakeRenderer) PageCount(path string) (int, error) {
	if f.openErr != nil {
		return 0, f.openErr
	}
	return len(f.pages), nil
}

func (f *fakeRenderer) RenderPage(ctx context.Context, path string, pageIndex, dpi int) (image.Image, error) {
	if pageIndex < 0 || pageIndex >= len(f.pages) {
		return nil, fmt.Errorf("page %d out of range", pageIndex)
	}
	if f.renders == nil {
		f.renders = make(map[int]int)
	}
	f.renders[pageIndex]++
	return f.pages[pageIndex], nil
}

// scriptedRecognizer returns canned line sets in call order and records the
// crop dimensions it was handed.
type scriptedRecognizer struct {
	responses [][]recognize.Line
	crops     []image.Rectangle
	err       error
	calls     int
}

func (s *scriptedRecognizer) Recognize(ctx context.Context, crop image.Image) ([]recognize.Line, error) {
	s.crops = append(s.crops, crop.Bounds())
	if s.err != nil {
		return nil, s.err
	}
	i := s.calls
	s.calls++
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return nil, nil
}

func newPool(t *testing.T, r recognize.Recognizer) *recognize.Pool {
	t.Helper()
	pool, err := recognize.NewPool([]recognize.Recognizer{r}, time.Second)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	return pool
}

func twoFieldMapping() *template.Mapping {
	return &template.Mapping{
		CalibrationDPI: 200,
		PageCount:      1,
		Fields: []template.FieldDefinition{
			{FieldID: "f1", Label: "F1", PageIndex: 0,
				BBox: template.BBox{X0: 10, Y0: 10, X1: 50, Y1: 30}, FieldType: template.ScalarText},
			{FieldID: "f2", Label: "F2", PageIndex: 0,
				BBox: template.BBox{X0: 10, Y0: 40, X1: 50, Y1: 60}, FieldType: template.ScalarNumeric},
		},
	}
}

func TestExtractCropsEachField(t *testing.T) {
	rec := &scriptedRecognizer{responses: [][]recognize.Line{
		{{Text: "Arjun Textiles", YCenter: 9}},
		{{Text: "500000", YCenter: 8}},
	}}
	ex := &Extractor{
		Renderer: &fakeRenderer{pages: []image.Image{image.NewRGBA(image.Rect(0, 0, 100, 100))}},
		Pool:     newPool(t, rec),
	}

	res, err := ex.Extract(context.Background(), twoFieldMapping(), "doc.pdf")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if got := res.Lines["f1"]; len(got) != 1 || got[0].Text != "Arjun Textiles" {
		t.Errorf("f1 lines = %+v", got)
	}
	if got := res.Lines["f2"]; len(got) != 1 || got[0].Text != "500000" {
		t.Errorf("f2 lines = %+v", got)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("warnings = %+v, want none", res.Warnings)
	}

	// crops must match the mapped rectangles exactly: zero margin
	if len(rec.crops) != 2 {
		t.Fatalf("crops = %d, want 2", len(rec.crops))
	}
	if w, h := rec.crops[0].Dx(), rec.crops[0].Dy(); w != 40 || h != 20 {
		t.Errorf("f1 crop = %dx%d, want 40x20", w, h)
	}
	if w, h := rec.crops[1].Dx(), rec.crops[1].Dy(); w != 40 || h != 20 {
		t.Errorf("f2 crop = %dx%d, want 40x20", w, h)
	}
}

func TestExtractRendersEachPageOnce(t *testing.T) {
	m := twoFieldMapping()
	m.Fields = append(m.Fields, template.FieldDefinition{
		FieldID: "f3", Label: "F3", PageIndex: 0,
		BBox: template.BBox{X0: 10, Y0: 70, X1: 50, Y1: 90}, FieldType: template.ScalarText,
	})

	fr := &fakeRenderer{pages: []image.Image{image.NewRGBA(image.Rect(0, 0, 100, 100))}}
	ex := &Extractor{Renderer: fr, Pool: newPool(t, &scriptedRecognizer{})}

	if _, err := ex.Extract(context.Background(), m, "doc.pdf"); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if fr.renders[0] != 1 {
		t.Errorf("page 0 rendered %d times, want 1", fr.renders[0])
	}
}

func TestExtractMissingPage(t *testing.T) {
	m := twoFieldMapping()
	m.PageCount = 2
	m.Fields[1].PageIndex = 1

	rec := &scriptedRecognizer{responses: [][]recognize.Line{
		{{Text: "Arjun Textiles", YCenter: 9}},
	}}
	ex := &Extractor{
		Renderer: &fakeRenderer{pages: []image.Image{image.NewRGBA(image.Rect(0, 0, 100, 100))}},
		Pool:     newPool(t, rec),
	}

	res, err := ex.Extract(context.Background(), m, "doc.pdf")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if got := res.Lines["f1"]; len(got) != 1 {
		t.Errorf("page-0 field should extract normally, got %+v", got)
	}
	if got := res.Lines["f2"]; len(got) != 0 {
		t.Errorf("page-1 field should have no lines, got %+v", got)
	}

	found := false
	for _, w := range res.Warnings {
		if w.FieldID == "f2" && w.Reason == ReasonPageMissing {
			found = true
		}
		if w.FieldID == "f1" {
			t.Errorf("unexpected warning for f1: %+v", w)
		}
	}
	if !found {
		t.Errorf("missing PageMissing warning for f2: %+v", res.Warnings)
	}
}

func TestExtractUnreadableDocumentFatal(t *testing.T) {
	ex := &Extractor{
		Renderer: &fakeRenderer{openErr: errors.New("not a PDF")},
		Pool:     newPool(t, &scriptedRecognizer{}),
	}
	if _, err := ex.Extract(context.Background(), twoFieldMapping(), "broken.pdf"); err == nil {
		t.Fatal("expected failure for unreadable document")
	}
}

func TestExtractBackendUnavailableFatal(t *testing.T) {
	rec := &scriptedRecognizer{err: fmt.Errorf("%w: dial refused", recognize.ErrUnavailable)}
	ex := &Extractor{
		Renderer: &fakeRenderer{pages: []image.Image{image.NewRGBA(image.Rect(0, 0, 100, 100))}},
		Pool:     newPool(t, rec),
	}

	_, err := ex.Extract(context.Background(), twoFieldMapping(), "doc.pdf")
	if !errors.Is(err, recognize.ErrUnavailable) {
		t.Errorf("err = %v, want wrapping ErrUnavailable", err)
	}
}

func TestExtractCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := &Extractor{
		Renderer: &fakeRenderer{pages: []image.Image{image.NewRGBA(image.Rect(0, 0, 100, 100))}},
		Pool:     newPool(t, &scriptedRecognizer{}),
	}
	if _, err := ex.Extract(ctx, twoFieldMapping(), "doc.pdf"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestExtractZeroLinesIsNotAnError(t *testing.T) {
	ex := &Extractor{
		Renderer: &fakeRenderer{pages: []image.Image{image.NewRGBA(image.Rect(0, 0, 100, 100))}},
		Pool:     newPool(t, &scriptedRecognizer{}),
	}

	res, err := ex.Extract(context.Background(), twoFieldMapping(), "doc.pdf")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	// "nothing found here" is a normal outcome; interpreting it is the
	// assembler's job, so no warning is raised here
	if len(res.Warnings) != 0 {
		t.Errorf("warnings = %+v, want none", res.Warnings)
	}
	if lines, ok := res.Lines["f1"]; !ok || len(lines) != 0 {
		t.Errorf("f1 lines = %+v, want present and empty", lines)
	}
}
