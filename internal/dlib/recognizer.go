//go:build dlib

package dlib

import (
	"context"
	"errors"
	"fmt"

	goface "github.com/Kagami/go-face"
	"go.uber.org/zap"

	"github.com/example/face-service/internal/face"
	"github.com/example/face-service/internal/metrics"
	"github.com/example/face-service/internal/pool"
)

// Recognizer is a face.Backend over a pool of go-face recognizers. A
// single go-face recognizer is not safe for concurrent use.
type Recognizer struct {
	pool   *pool.Pool[*goface.Recognizer]
	logger *zap.Logger
}

// NewRecognizer loads size recognizers from modelsDir.
func NewRecognizer(modelsDir string, size int, logger *zap.Logger) (*Recognizer, error) {
	if size < 1 {
		size = 1
	}
	recs := make([]*goface.Recognizer, 0, size)
	for i := 0; i < size; i++ {
		rec, err := goface.NewRecognizer(modelsDir)
		if err != nil {
			for _, loaded := range recs {
				loaded.Close()
			}
			return nil, fmt.Errorf("load dlib models from %s: %w", modelsDir, err)
		}
		recs = append(recs, rec)
	}

	p := pool.New(recs)
	p.OnChange = func(inUse int) { metrics.PoolInUse.Set(float64(inUse)) }
	logger.Info("dlib models loaded", zap.String("models_dir", modelsDir), zap.Int("pool_size", size))
	return &Recognizer{pool: p, logger: logger.Named("dlib")}, nil
}

// Locate runs the HOG detector.
func (r *Recognizer) Locate(ctx context.Context, img *face.Image) ([]face.Region, error) {
	faces, err := r.recognize(ctx, img)
	if err != nil {
		return nil, err
	}
	regions := make([]face.Region, len(faces))
	for i, f := range faces {
		regions[i] = face.RegionFromRect(f.Rectangle)
	}
	return regions, nil
}

// Encode detects again and returns the descriptor of the detection that
// best overlaps each requested region. Regions without a matching
// detection are skipped.
func (r *Recognizer) Encode(ctx context.Context, img *face.Image, regions []face.Region) ([]face.Embedding, error) {
	faces, err := r.recognize(ctx, img)
	if err != nil {
		return nil, err
	}
	detected := make([]face.Region, len(faces))
	for i, f := range faces {
		detected[i] = face.RegionFromRect(f.Rectangle)
	}

	var out []face.Embedding
	for i, idx := range matchRegions(detected, regions) {
		if idx < 0 {
			r.logger.Debug("no detection for requested region", zap.Any("region", regions[i]))
			continue
		}
		desc := faces[idx].Descriptor
		emb := make(face.Embedding, len(desc))
		for k, v := range desc {
			emb[k] = float64(v)
		}
		out = append(out, emb)
	}
	return out, nil
}

func (r *Recognizer) Info() face.ModelInfo { return Info() }

// Close frees every recognizer once it is returned to the pool.
func (r *Recognizer) Close() error {
	return r.pool.Close(func(rec *goface.Recognizer) error {
		rec.Close()
		return nil
	})
}

func (r *Recognizer) recognize(ctx context.Context, img *face.Image) ([]goface.Face, error) {
	data, err := jpegBytes(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", face.ErrInvalidImage, err)
	}

	var faces []goface.Face
	err = r.pool.Do(ctx, func(rec *goface.Recognizer) error {
		var recErr error
		faces, recErr = rec.Recognize(data)
		return recErr
	})
	if err != nil {
		var loadErr goface.ImageLoadError
		if errors.As(err, &loadErr) {
			return nil, fmt.Errorf("%w: %v", face.ErrInvalidImage, err)
		}
		return nil, err
	}
	return faces, nil
}
