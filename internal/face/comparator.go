package face

import (
	"context"
	"errors"
	"fmt"
)

// Comparator decides whether a fresh photo matches a reference embedding.
type Comparator struct {
	extractor *Extractor
	threshold float64
}

// NewComparator builds a comparator with a fixed distance threshold.
// A non-positive threshold falls back to DefaultMatchThreshold.
func NewComparator(extractor *Extractor, threshold float64) *Comparator {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	return &Comparator{extractor: extractor, threshold: threshold}
}

// Threshold returns the distance at or below which photos match.
func (c *Comparator) Threshold() float64 { return c.threshold }

// Compare parses reference, extracts an embedding from data and scores
// the two. Failures are always *ComparisonError.
func (c *Comparator) Compare(ctx context.Context, data []byte, reference string) (MatchResult, error) {
	res, _, err := c.CompareDetailed(ctx, data, reference)
	return res, err
}

// CompareDetailed is Compare plus the extraction detail of the fresh photo.
func (c *Comparator) CompareDetailed(ctx context.Context, data []byte, reference string) (MatchResult, *Extraction, error) {
	known, err := ParseEmbedding(reference)
	if err != nil {
		return MatchResult{}, nil, &ComparisonError{Kind: ComparisonInvalidEmbeddingFormat, Err: err}
	}
	if dim := c.extractor.Dimension(); dim > 0 && len(known) != dim {
		return MatchResult{}, nil, &ComparisonError{
			Kind: ComparisonInvalidEmbeddingFormat,
			Err:  fmt.Errorf("expected %d values, got %d", dim, len(known)),
		}
	}

	extraction, err := c.extractor.ExtractDetailed(ctx, data)
	if err != nil {
		var extErr *ExtractionError
		if errors.As(err, &extErr) {
			return MatchResult{}, nil, comparisonFromExtraction(extErr)
		}
		return MatchResult{}, nil, &ComparisonError{Kind: ComparisonInternal, Err: err}
	}

	result, err := c.Score(known, extraction.Embedding)
	if err != nil {
		return MatchResult{}, extraction, err
	}
	return result, extraction, nil
}

// Score applies the distance threshold to two embeddings.
func (c *Comparator) Score(known, fresh Embedding) (MatchResult, error) {
	distance, err := EuclideanDistance(known, fresh)
	if err != nil {
		return MatchResult{}, &ComparisonError{Kind: ComparisonInvalidEmbeddingFormat, Err: err}
	}
	return MatchResult{Match: distance <= c.threshold, Distance: distance}, nil
}
