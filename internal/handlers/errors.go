package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/example/face-service/internal/face"
)

// Caller facing messages.
const (
	msgNoImage        = "No image file provided"
	msgEmptyImage     = "Empty image"
	msgInvalidImage   = "Invalid image"
	msgNoFace         = "No face detected"
	msgNoEncoding     = "Failed to extract encoding"
	msgNoEmbedding    = "No embedding provided"
	msgBadEmbedding   = "Invalid embedding format"
	msgTooLarge       = "Image exceeds maximum upload size"
	msgException      = "Exception"
	msgOutcomeMissing = "outcome not found"
)

// requestError is a failure detected before the core runs.
type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

// extractionStatus is the single place extraction failures become HTTP.
func extractionStatus(err error) (int, string) {
	var extErr *face.ExtractionError
	if !errors.As(err, &extErr) {
		return internalFailure(err)
	}
	switch extErr.Kind {
	case face.ExtractionInvalidImage:
		return invalidImage(extErr.Err)
	case face.ExtractionNoFaceDetected:
		return http.StatusBadRequest, msgNoFace
	case face.ExtractionEncodingFailed:
		return http.StatusBadRequest, msgNoEncoding
	default:
		return internalFailure(extErr.Err)
	}
}

// comparisonStatus is the single place comparison failures become HTTP.
func comparisonStatus(err error) (int, string) {
	var cmpErr *face.ComparisonError
	if !errors.As(err, &cmpErr) {
		return internalFailure(err)
	}
	switch cmpErr.Kind {
	case face.ComparisonInvalidImage:
		return invalidImage(cmpErr.Err)
	case face.ComparisonNoFaceDetected:
		return http.StatusBadRequest, msgNoFace
	case face.ComparisonEncodingFailed:
		return http.StatusBadRequest, msgNoEncoding
	case face.ComparisonInvalidEmbeddingFormat:
		return http.StatusBadRequest, withDetail(msgBadEmbedding, cmpErr.Err)
	default:
		return internalFailure(cmpErr.Err)
	}
}

func invalidImage(err error) (int, string) {
	if errors.Is(err, face.ErrEmptyImage) {
		return http.StatusBadRequest, msgEmptyImage
	}
	detail := ""
	if err != nil {
		detail = strings.TrimPrefix(err.Error(), face.ErrInvalidImage.Error()+": ")
	}
	if detail == "" || detail == face.ErrInvalidImage.Error() {
		return http.StatusBadRequest, msgInvalidImage
	}
	return http.StatusBadRequest, msgInvalidImage + ": " + detail
}

func internalFailure(err error) (int, string) {
	return http.StatusInternalServerError, withDetail(msgException, err)
}

func withDetail(prefix string, err error) string {
	if err == nil {
		return prefix
	}
	return prefix + ": " + err.Error()
}
