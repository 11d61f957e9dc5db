//go:build dlib

package main

import (
	"go.uber.org/zap"

	"github.com/example/face-service/internal/config"
	"github.com/example/face-service/internal/dlib"
	"github.com/example/face-service/internal/face"
)

func newDlibBackend(cfg *config.Config, logger *zap.Logger) (face.Backend, error) {
	rec, err := dlib.NewRecognizer(cfg.Face.ModelsDir, cfg.Face.PoolSize, logger)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
