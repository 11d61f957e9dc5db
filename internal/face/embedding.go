package face

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Embedding is a face identity vector. Two embeddings are only
// comparable when they come from the same model.
type Embedding []float64

// Finite reports whether every component is a finite number.
func (e Embedding) Finite() bool {
	for _, v := range e {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ParseEmbedding decodes the wire form of a reference embedding: a JSON
// array of numbers, or a JSON string holding such an array.
func ParseEmbedding(text string) (Embedding, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("embedding is empty")
	}

	var values []float64
	if err := json.Unmarshal([]byte(text), &values); err != nil {
		var inner string
		if json.Unmarshal([]byte(text), &inner) != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(inner), &values); err != nil {
			return nil, err
		}
	}
	if len(values) == 0 {
		return nil, errors.New("embedding has no values")
	}

	emb := Embedding(values)
	if !emb.Finite() {
		return nil, errors.New("embedding contains non-finite values")
	}
	return emb, nil
}

// EuclideanDistance returns the L2 distance between two embeddings of
// equal length.
func EuclideanDistance(a, b Embedding) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
