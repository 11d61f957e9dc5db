package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/face-service/internal/config"
	"github.com/example/face-service/internal/face"
	"github.com/example/face-service/internal/grpcclient"
	"github.com/example/face-service/internal/usecase"
)

type fixedModel struct{}

func (fixedModel) Locate(ctx context.Context, img *face.Image) ([]face.Region, error) {
	return []face.Region{face.RegionFromRect(img.Pixels.Bounds())}, nil
}

func (fixedModel) Encode(ctx context.Context, img *face.Image, regions []face.Region) ([]face.Embedding, error) {
	return []face.Embedding{{0.1, 0.2, 0.3, 0.4}}, nil
}

func (fixedModel) Info() face.ModelInfo {
	return face.ModelInfo{Name: "fixed", Dimension: 4, Threshold: 0.5}
}

func (fixedModel) Close() error { return nil }

func writePhoto(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))
	path := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestResolveThreshold(t *testing.T) {
	assert.InDelta(t, 0.4, resolveThreshold(0.4, face.ModelInfo{Threshold: 0.7}), 1e-12)
	assert.InDelta(t, 0.7, resolveThreshold(0, face.ModelInfo{Threshold: 0.7}), 1e-12)
	assert.InDelta(t, face.DefaultMatchThreshold, resolveThreshold(0, face.ModelInfo{}), 1e-12)
}

func TestNewCoreUsesModelDimension(t *testing.T) {
	cfg := &config.Config{Face: config.FaceConfig{MaxPixels: face.DefaultMaxPixels}}
	extractor, comparator := newCore(fixedModel{}, cfg)

	assert.Equal(t, 4, extractor.Dimension())
	assert.InDelta(t, 0.5, comparator.Threshold(), 1e-12)
}

func TestOfflineExtractAndCompare(t *testing.T) {
	cfg := &config.Config{Face: config.FaceConfig{MaxPixels: face.DefaultMaxPixels}}
	extractor, comparator := newCore(fixedModel{}, cfg)
	svc := usecase.NewFaceUseCase(extractor, comparator, nil, zap.NewNop())
	photo := writePhoto(t)

	var out bytes.Buffer
	require.NoError(t, writeExtraction(context.Background(), svc, photo, &out))
	var embedding []float64
	require.NoError(t, json.Unmarshal(out.Bytes(), &embedding))
	assert.Equal(t, []float64{0.1, 0.2, 0.3, 0.4}, embedding)

	refPath := filepath.Join(t.TempDir(), "ref.json")
	require.NoError(t, os.WriteFile(refPath, out.Bytes(), 0o600))

	for _, reference := range []string{refPath, "[0.1, 0.2, 0.3, 0.4]"} {
		out.Reset()
		require.NoError(t, writeComparison(context.Background(), svc, photo, reference, &out))
		var result face.MatchResult
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		assert.True(t, result.Match)
		assert.InDelta(t, 0, result.Distance, 1e-12)
	}

	err := writeComparison(context.Background(), svc, photo, "not-json", &out)
	var cmpErr *face.ComparisonError
	require.ErrorAs(t, err, &cmpErr)
	assert.Equal(t, face.ComparisonInvalidEmbeddingFormat, cmpErr.Kind)
}

func TestServeGRPCRoundTrip(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serveGRPC(ctx, lis, fixedModel{}, face.DecodeLimits{}, 0, zap.NewNop())
	}()

	backend, err := grpcclient.DialFaceService(context.Background(), lis.Addr().String(), 2*time.Second, 0, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "fixed", backend.Info().Name)

	extractor := face.NewExtractor(backend, backend, face.WithDimension(backend.Info().Dimension))
	data, err := os.ReadFile(writePhoto(t))
	require.NoError(t, err)
	emb, err := extractor.Extract(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, face.Embedding{0.1, 0.2, 0.3, 0.4}, emb)

	require.NoError(t, backend.Close())
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("grpc server did not stop")
	}
}
