// Package recognize defines the contract with the external text-recognition
// backend and the bounded pool that serializes access to it.
package recognize

import (
	"context"
	"errors"
	"image"
)

// Line is one recognized text line within a cropped region. YCenter is in
// region-local pixels, measured from the top of the crop.
type Line struct {
	Text    string  `json:"text"`
	YCenter float64 `json:"y_center"`
}

// ErrUnavailable means the backend cannot be reached at all. Extraction
// treats this as fatal for the whole call: zero lines from a reachable
// backend is a normal outcome, an unreachable backend is not.
var ErrUnavailable = errors.New("recognition backend unavailable")

// Recognizer turns one cropped raster region into ordered text lines.
// Implementations may be non-reentrant (a model bound to one accelerator);
// callers must go through a Pool rather than invoking instances concurrently.
type Recognizer interface {
	Recognize(ctx context.Context, crop image.Image) ([]Line, error)
}
