// Package face turns photographs into identity embeddings and decides
// whether two embeddings belong to the same person.
//
// Face location and encoding are external capabilities reached through
// the Locator and Encoder interfaces; this package only owns decoding,
// region selection, validation and the distance decision.
package face

import (
	"context"
	"image"
	"io"
)

// DefaultMatchThreshold is the Euclidean distance tolerance dlib's
// ResNet face model was calibrated for.
const DefaultMatchThreshold = 0.6

// Region is a face bounding box in pixel coordinates, ordered
// top, right, bottom, left.
type Region struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// RegionFromRect converts an image rectangle into a Region.
func RegionFromRect(r image.Rectangle) Region {
	return Region{Top: r.Min.Y, Right: r.Max.X, Bottom: r.Max.Y, Left: r.Min.X}
}

// Rect returns the region as an image rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Right, r.Bottom)
}

// IoU returns the intersection-over-union of two regions.
func (r Region) IoU(other Region) float64 {
	a, b := r.Rect(), other.Rect()
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	interArea := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}

// Image is a decoded photograph together with the bytes it came from.
type Image struct {
	Raw    []byte
	Format string
	Pixels image.Image
}

// ModelInfo describes the model behind a backend.
type ModelInfo struct {
	Name      string  `json:"name"`
	Dimension int     `json:"dimension"`
	Threshold float64 `json:"threshold"`
}

// MatchResult is the outcome of comparing two embeddings.
type MatchResult struct {
	Match    bool    `json:"match"`
	Distance float64 `json:"distance"`
}

// Locator finds face regions in an image.
type Locator interface {
	Locate(ctx context.Context, img *Image) ([]Region, error)
}

// Encoder produces one embedding per requested region.
type Encoder interface {
	Encode(ctx context.Context, img *Image, regions []Region) ([]Embedding, error)
}

// Backend is a loaded face model offering both capabilities.
type Backend interface {
	Locator
	Encoder
	Info() ModelInfo
	io.Closer
}
