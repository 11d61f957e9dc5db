package face

import (
	"context"
	"errors"
	"fmt"
)

// Extraction is a successful extraction with the detail callers may
// want to log.
type Extraction struct {
	Embedding Embedding
	Region    Region
	FaceCount int
}

// Extractor turns image bytes into the embedding of the first face the
// locator reports.
type Extractor struct {
	locator   Locator
	encoder   Encoder
	dimension int
	limits    DecodeLimits
}

// ExtractorOption customises an Extractor.
type ExtractorOption func(*Extractor)

// WithDecodeLimits overrides the image size limits.
func WithDecodeLimits(limits DecodeLimits) ExtractorOption {
	return func(e *Extractor) { e.limits = limits }
}

// WithDimension makes the extractor reject encoder output of any other length.
func WithDimension(dim int) ExtractorOption {
	return func(e *Extractor) { e.dimension = dim }
}

// NewExtractor builds an extractor on top of the two face capabilities.
func NewExtractor(locator Locator, encoder Encoder, opts ...ExtractorOption) *Extractor {
	e := &Extractor{locator: locator, encoder: encoder}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dimension returns the expected embedding length, or 0 when unchecked.
func (e *Extractor) Dimension() int { return e.dimension }

// Extract returns the embedding of the first detected face. Failures are
// always *ExtractionError.
func (e *Extractor) Extract(ctx context.Context, data []byte) (Embedding, error) {
	res, err := e.ExtractDetailed(ctx, data)
	if err != nil {
		return nil, err
	}
	return res.Embedding, nil
}

// ExtractDetailed is Extract plus the selected region and face count.
func (e *Extractor) ExtractDetailed(ctx context.Context, data []byte) (*Extraction, error) {
	img, err := Decode(data, e.limits)
	if err != nil {
		return nil, extractionError(ExtractionInvalidImage, err)
	}

	regions, err := e.locator.Locate(ctx, img)
	if err != nil {
		return nil, backendFailure("locate", err)
	}
	if len(regions) == 0 {
		return nil, extractionError(ExtractionNoFaceDetected, ErrNoFaceDetected)
	}

	// First region wins; the locator's order is the only tiebreak.
	region := regions[0]
	encodings, err := e.encoder.Encode(ctx, img, []Region{region})
	if err != nil {
		return nil, backendFailure("encode", err)
	}
	if len(encodings) == 0 || len(encodings[0]) == 0 {
		return nil, extractionError(ExtractionEncodingFailed, ErrNoEncoding)
	}

	emb := encodings[0]
	if e.dimension > 0 && len(emb) != e.dimension {
		return nil, extractionError(ExtractionInternal,
			fmt.Errorf("encoder returned %d values, expected %d", len(emb), e.dimension))
	}
	if !emb.Finite() {
		return nil, extractionError(ExtractionInternal, errors.New("encoder returned non-finite values"))
	}

	return &Extraction{Embedding: emb, Region: region, FaceCount: len(regions)}, nil
}

func backendFailure(stage string, err error) *ExtractionError {
	if errors.Is(err, ErrInvalidImage) {
		return extractionError(ExtractionInvalidImage, err)
	}
	return extractionError(ExtractionInternal, fmt.Errorf("%s: %w", stage, err))
}
