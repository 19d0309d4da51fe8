// Package detect finds the exact axis-aligned rectangle covered by each
// marker color on a rendered template page. Detection is purely geometric:
// the returned box is the tight bounding box of all matching pixels, with no
// padding, which is what makes zero-margin extraction possible downstream.
package detect

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/stencilocr/stencil/internal/template"
)

var (
	// ErrRegionNotFound means a legend color has no matching pixels on the page.
	ErrRegionNotFound = errors.New("no region matches marker color")

	// ErrAmbiguousRegion means a legend color matches more than one disjoint
	// component and the field is not marked multi-part.
	ErrAmbiguousRegion = errors.New("marker color matches multiple disjoint regions")
)

// Detector matches marker colors within a configured tolerance.
// Both knobs are explicit configuration, not hidden heuristics.
type Detector struct {
	// Tolerance is the maximum per-channel distance (0-255) between a pixel
	// and the marker color for the pixel to count as a match. Absorbs
	// anti-aliasing at region edges.
	Tolerance uint8

	// MinComponentPixels drops connected components smaller than this many
	// pixels before ambiguity is judged. Filters stray anti-aliased specks.
	MinComponentPixels int
}

// Region is one detected marker region.
type Region struct {
	BBox       template.BBox
	Components int // disjoint components merged into BBox (1 unless multi-part)
	Pixels     int // total matching pixels
}

// Detect locates the marker color on the page image. multiPart allows the
// color to appear as several disjoint components (table rows); the result is
// then the union of the component boxes. Otherwise more than one component
// is an error.
func (d *Detector) Detect(img image.Image, marker color.RGBA, multiPart bool) (Region, error) {
	mask, w, h := matchMask(img, marker, d.Tolerance)

	comps := components(mask, w, h, d.MinComponentPixels)
	if len(comps) == 0 {
		return Region{}, ErrRegionNotFound
	}
	if len(comps) > 1 && !multiPart {
		return Region{}, fmt.Errorf("%w: %d components", ErrAmbiguousRegion, len(comps))
	}

	union := comps[0].bbox
	pixels := comps[0].pixels
	for _, c := range comps[1:] {
		if c.bbox.X0 < union.X0 {
			union.X0 = c.bbox.X0
		}
		if c.bbox.Y0 < union.Y0 {
			union.Y0 = c.bbox.Y0
		}
		if c.bbox.X1 > union.X1 {
			union.X1 = c.bbox.X1
		}
		if c.bbox.Y1 > union.Y1 {
			union.Y1 = c.bbox.Y1
		}
		pixels += c.pixels
	}

	return Region{BBox: union, Components: len(comps), Pixels: pixels}, nil
}

// matchMask builds a boolean mask of pixels within tolerance of the marker.
// Coordinates are normalized so the mask origin is (0,0) regardless of the
// image's own bounds origin.
func matchMask(img image.Image, marker color.RGBA, tol uint8) ([]bool, int, int) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	mask := make([]bool, w*h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			if within(uint8(r>>8), marker.R, tol) &&
				within(uint8(g>>8), marker.G, tol) &&
				within(uint8(b>>8), marker.B, tol) {
				mask[y*w+x] = true
			}
		}
	}
	return mask, w, h
}

func within(a, b, tol uint8) bool {
	if a > b {
		return a-b <= tol
	}
	return b-a <= tol
}

type component struct {
	bbox   template.BBox
	pixels int
}

// components finds 4-connected regions in the mask via iterative flood fill,
// discarding components below minPixels. Boxes are half-open on the far edge
// so X1/Y1 are exclusive, matching the mapping coordinate convention.
func components(mask []bool, w, h, minPixels int) []component {
	visited := make([]bool, len(mask))
	var out []component
	var stack []int

	for start := range mask {
		if !mask[start] || visited[start] {
			continue
		}

		c := component{bbox: template.BBox{
			X0: start % w, Y0: start / w,
			X1: start%w + 1, Y1: start/w + 1,
		}}
		stack = append(stack[:0], start)
		visited[start] = true

		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%w, idx/w

			c.pixels++
			if x < c.bbox.X0 {
				c.bbox.X0 = x
			}
			if y < c.bbox.Y0 {
				c.bbox.Y0 = y
			}
			if x+1 > c.bbox.X1 {
				c.bbox.X1 = x + 1
			}
			if y+1 > c.bbox.Y1 {
				c.bbox.Y1 = y + 1
			}

			for _, n := range [4]int{idx - 1, idx + 1, idx - w, idx + w} {
				if n < 0 || n >= len(mask) || !mask[n] || visited[n] {
					continue
				}
				// guard horizontal wrap
				if (n == idx-1 && x == 0) || (n == idx+1 && x == w-1) {
					continue
				}
				visited[n] = true
				stack = append(stack, n)
			}
		}

		if c.pixels >= minPixels {
			out = append(out, c)
		}
	}
	return out
}
