package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/face-service/internal/config"
	"github.com/example/face-service/internal/handlers"
	"github.com/example/face-service/internal/usecase"
)

var (
	imagePath    string
	embeddingArg string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Print the embedding of the first face in an image",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return withFaceService(cmd.Context(), cfg, logger, func(svc handlers.FaceService) error {
			return writeExtraction(cmd.Context(), svc, imagePath, cmd.OutOrStdout())
		})
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare the face in an image with a reference embedding",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return withFaceService(cmd.Context(), cfg, logger, func(svc handlers.FaceService) error {
			return writeComparison(cmd.Context(), svc, imagePath, embeddingArg, cmd.OutOrStdout())
		})
	},
}

func init() {
	extractCmd.Flags().StringVarP(&imagePath, "image", "i", "", "Path to the photo")
	extractCmd.MarkFlagRequired("image") //nolint:errcheck

	compareCmd.Flags().StringVarP(&imagePath, "image", "i", "", "Path to the photo")
	compareCmd.Flags().StringVarP(&embeddingArg, "embedding", "e", "", "Reference embedding as a JSON file or inline JSON")
	compareCmd.MarkFlagRequired("image")     //nolint:errcheck
	compareCmd.MarkFlagRequired("embedding") //nolint:errcheck

	rootCmd.AddCommand(extractCmd, compareCmd)
}

// withFaceService runs fn against a stateless use case over the
// configured backend.
func withFaceService(ctx context.Context, cfg *config.Config, logger *zap.Logger, fn func(handlers.FaceService) error) error {
	backend, err := newFaceBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	extractor, comparator := newCore(backend, cfg)
	return fn(usecase.NewFaceUseCase(extractor, comparator, usecase.NopRecorder{}, logger))
}

func writeExtraction(ctx context.Context, svc handlers.FaceService, path string, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	embedding, err := svc.Extract(ctx, data)
	if err != nil {
		return err
	}
	return json.NewEncoder(out).Encode(embedding)
}

func writeComparison(ctx context.Context, svc handlers.FaceService, path, reference string, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	reference, err = loadReference(reference)
	if err != nil {
		return err
	}
	result, err := svc.Compare(ctx, data, reference)
	if err != nil {
		return err
	}
	return json.NewEncoder(out).Encode(result)
}

// loadReference reads arg as a file when one exists at that path and
// otherwise treats it as inline JSON.
func loadReference(arg string) (string, error) {
	content, err := os.ReadFile(arg)
	switch {
	case err == nil:
		return string(content), nil
	case errors.Is(err, os.ErrNotExist):
		return arg, nil
	default:
		return "", fmt.Errorf("read embedding: %w", err)
	}
}
