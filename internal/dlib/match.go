// Package dlib runs dlib's face detector and ResNet encoder in process
// through github.com/Kagami/go-face. The recognizer itself needs cgo and
// the dlib libraries and is only compiled with the dlib build tag.
package dlib

import (
	"bytes"
	"fmt"
	"image/jpeg"

	"github.com/example/face-service/internal/face"
)

const (
	// ModelName identifies the encoder in ModelInfo.
	ModelName = "dlib_face_recognition_resnet_model_v1"
	// Dimension is the length of a dlib face descriptor.
	Dimension = 128

	// minMatchIoU is the least overlap for a detection to stand in for a
	// requested region.
	minMatchIoU = 0.5
	jpegQuality = 95
)

// Info describes the dlib model.
func Info() face.ModelInfo {
	return face.ModelInfo{Name: ModelName, Dimension: Dimension, Threshold: face.DefaultMatchThreshold}
}

// jpegBytes returns img as JPEG, the only format the dlib loader reads.
func jpegBytes(img *face.Image) ([]byte, error) {
	if img.Format == "jpeg" {
		return img.Raw, nil
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img.Pixels, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("re-encode %s as jpeg: %w", img.Format, err)
	}
	return buf.Bytes(), nil
}

// matchRegions returns, for each wanted region, the index of the detected
// region overlapping it best, or -1 when none overlaps enough.
func matchRegions(detected, wanted []face.Region) []int {
	out := make([]int, len(wanted))
	for i, w := range wanted {
		out[i] = -1
		best := minMatchIoU
		for j, d := range detected {
			if iou := w.IoU(d); iou >= best {
				best = iou
				out[i] = j
			}
		}
	}
	return out
}
