// Package render rasterizes document pages at a fixed DPI. The DPI is pinned
// by the template mapping: calibration and extraction must render identically
// or every bbox in the mapping is meaningless.
package render

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Renderer turns one page of a document file into a pixel image.
type Renderer interface {
	// PageCount reports how many pages the document has. An unreadable
	// document is a structural error.
	PageCount(path string) (int, error)

	// RenderPage rasterizes the zero-based page at the given DPI.
	RenderPage(ctx context.Context, path string, pageIndex, dpi int) (image.Image, error)
}

// Poppler renders PDF pages by shelling out to pdftoppm (poppler-utils) and
// counts pages with pdfcpu. Stateless and safe for concurrent use.
type Poppler struct{}

// PageCount returns the number of pages in the PDF.
func (Poppler) PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()

	count, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to read document structure: %w", err)
	}
	return count, nil
}

// RenderPage rasterizes a single page. pdftoppm pages are 1-indexed.
func (Poppler) RenderPage(ctx context.Context, path string, pageIndex, dpi int) (image.Image, error) {
	if pageIndex < 0 {
		return nil, fmt.Errorf("negative page index %d", pageIndex)
	}
	if dpi <= 0 {
		return nil, fmt.Errorf("invalid dpi %d", dpi)
	}

	tmpDir, err := os.MkdirTemp("", "stencil-page-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")
	pageStr := fmt.Sprintf("%d", pageIndex+1)

	// -png: output PNG format
	// -f/-l: single-page range
	// -r: resolution in DPI
	// -singlefile: no page number suffix on the output name
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", fmt.Sprintf("%d", dpi),
		"-singlefile",
		path,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	srcPath := outputPrefix + ".png"
	img, err := imaging.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered page: %w", err)
	}
	return img, nil
}
