//go:build !dlib

package main

import (
	"errors"

	"go.uber.org/zap"

	"github.com/example/face-service/internal/config"
	"github.com/example/face-service/internal/face"
)

func newDlibBackend(*config.Config, *zap.Logger) (face.Backend, error) {
	return nil, errors.New("dlib backend not compiled in; rebuild with -tags dlib")
}
