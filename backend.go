package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/face-service/internal/config"
	"github.com/example/face-service/internal/face"
	"github.com/example/face-service/internal/grpcclient"
	"github.com/example/face-service/internal/metrics"
)

// newFaceBackend loads the configured model once; callers own Close.
func newFaceBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (face.Backend, error) {
	var (
		backend face.Backend
		err     error
	)
	switch cfg.Face.Backend {
	case config.BackendGRPC:
		backend, err = grpcclient.DialFaceService(ctx, cfg.Face.ServiceAddr, cfg.Face.DialTimeout, cfg.HTTP.MaxUploadBytes, logger)
	case config.BackendDlib:
		backend, err = newDlibBackend(cfg, logger)
	default:
		err = fmt.Errorf("unknown face backend %q", cfg.Face.Backend)
	}
	if err != nil {
		return nil, err
	}
	return metrics.InstrumentBackend(backend), nil
}

// resolveThreshold prefers the configured tolerance, then the model's
// own calibration.
func resolveThreshold(configured float64, info face.ModelInfo) float64 {
	switch {
	case configured > 0:
		return configured
	case info.Threshold > 0:
		return info.Threshold
	default:
		return face.DefaultMatchThreshold
	}
}

// newCore builds the extractor and comparator around backend.
func newCore(backend face.Backend, cfg *config.Config) (*face.Extractor, *face.Comparator) {
	info := backend.Info()
	extractor := face.NewExtractor(backend, backend,
		face.WithDecodeLimits(face.DecodeLimits{MaxPixels: cfg.Face.MaxPixels}),
		face.WithDimension(info.Dimension),
	)
	return extractor, face.NewComparator(extractor, resolveThreshold(cfg.Face.MatchThreshold, info))
}
