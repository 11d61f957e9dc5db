package face

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyImage is returned for zero-length image payloads.
	ErrEmptyImage = errors.New("empty image")
	// ErrInvalidImage marks payloads that could not be decoded. Backends
	// wrap it when the model itself rejects the image.
	ErrInvalidImage = errors.New("invalid image")
	// ErrNoFaceDetected is returned when the locator finds no region.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrNoEncoding is returned when the encoder yields nothing for a located face.
	ErrNoEncoding = errors.New("encoder produced no result")
)

// ExtractionErrorKind classifies a failed extraction.
type ExtractionErrorKind uint8

const (
	ExtractionInvalidImage ExtractionErrorKind = iota + 1
	ExtractionNoFaceDetected
	ExtractionEncodingFailed
	ExtractionInternal
)

func (k ExtractionErrorKind) String() string {
	switch k {
	case ExtractionInvalidImage:
		return "invalid_image"
	case ExtractionNoFaceDetected:
		return "no_face_detected"
	case ExtractionEncodingFailed:
		return "encoding_failed"
	case ExtractionInternal:
		return "internal"
	default:
		return fmt.Sprintf("extraction_kind(%d)", uint8(k))
	}
}

// ExtractionError is the failure variant of Extractor.Extract.
type ExtractionError struct {
	Kind ExtractionErrorKind
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func extractionError(kind ExtractionErrorKind, err error) *ExtractionError {
	return &ExtractionError{Kind: kind, Err: err}
}

// ComparisonErrorKind classifies a failed comparison.
type ComparisonErrorKind uint8

const (
	ComparisonInvalidImage ComparisonErrorKind = iota + 1
	ComparisonNoFaceDetected
	ComparisonEncodingFailed
	ComparisonInvalidEmbeddingFormat
	ComparisonInternal
)

func (k ComparisonErrorKind) String() string {
	switch k {
	case ComparisonInvalidImage:
		return "invalid_image"
	case ComparisonNoFaceDetected:
		return "no_face_detected"
	case ComparisonEncodingFailed:
		return "encoding_failed"
	case ComparisonInvalidEmbeddingFormat:
		return "invalid_embedding_format"
	case ComparisonInternal:
		return "internal"
	default:
		return fmt.Sprintf("comparison_kind(%d)", uint8(k))
	}
}

// ComparisonError is the failure variant of Comparator.Compare.
type ComparisonError struct {
	Kind ComparisonErrorKind
	Err  error
}

func (e *ComparisonError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ComparisonError) Unwrap() error { return e.Err }

// comparisonFromExtraction renames an extraction failure into the
// comparison error space, keeping the underlying cause.
func comparisonFromExtraction(err *ExtractionError) *ComparisonError {
	kind := ComparisonInternal
	switch err.Kind {
	case ExtractionInvalidImage:
		kind = ComparisonInvalidImage
	case ExtractionNoFaceDetected:
		kind = ComparisonNoFaceDetected
	case ExtractionEncodingFailed:
		kind = ComparisonEncodingFailed
	}
	return &ComparisonError{Kind: kind, Err: err.Err}
}
