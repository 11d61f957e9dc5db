package dlib

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/face-service/internal/face"
)

func TestMatchRegions(t *testing.T) {
	detected := []face.Region{
		{Top: 0, Right: 100, Bottom: 100, Left: 0},
		{Top: 200, Right: 300, Bottom: 300, Left: 200},
	}
	wanted := []face.Region{
		{Top: 205, Right: 302, Bottom: 298, Left: 203},
		{Top: 500, Right: 600, Bottom: 600, Left: 500},
		{Top: 2, Right: 98, Bottom: 101, Left: 1},
	}

	assert.Equal(t, []int{1, -1, 0}, matchRegions(detected, wanted))
	assert.Equal(t, []int{-1}, matchRegions(nil, wanted[:1]))
}

func TestJPEGBytesKeepsJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4)), nil))
	img, err := face.Decode(buf.Bytes(), face.DecodeLimits{})
	require.NoError(t, err)

	out, err := jpegBytes(img)
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), out)
}

func TestJPEGBytesReencodesPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 6, 3))))
	img, err := face.Decode(buf.Bytes(), face.DecodeLimits{})
	require.NoError(t, err)

	out, err := jpegBytes(img)
	require.NoError(t, err)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 6, cfg.Width)
	assert.Equal(t, 3, cfg.Height)
}

func TestInfo(t *testing.T) {
	info := Info()
	assert.Equal(t, Dimension, info.Dimension)
	assert.InDelta(t, face.DefaultMatchThreshold, info.Threshold, 1e-12)
}
