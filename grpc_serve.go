package main

import (
	"context"
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/example/face-service/internal/config"
	"github.com/example/face-service/internal/face"
	"github.com/example/face-service/internal/faceproto"
)

var grpcServeCmd = &cobra.Command{
	Use:   "grpc-serve",
	Short: "Expose the configured face backend as face.v1.FaceService",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runGRPCServe(cmd.Context(), cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(grpcServeCmd)
}

func runGRPCServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Face.Backend == config.BackendGRPC {
		logger.Warn("grpc-serve is proxying another face service", zap.String("upstream", cfg.Face.ServiceAddr))
	}

	backend, err := newFaceBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	lis, err := net.Listen("tcp", cfg.Face.GRPCListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Face.GRPCListenAddr, err)
	}
	logger.Info("face grpc service listening", zap.String("addr", lis.Addr().String()))
	limits := face.DecodeLimits{MaxPixels: cfg.Face.MaxPixels}
	return serveGRPC(ctx, lis, backend, limits, cfg.HTTP.MaxUploadBytes, logger)
}

// serveGRPC serves model on lis until ctx is done, then drains in-flight
// calls. Messages are sized for images of up to maxImageBytes.
func serveGRPC(ctx context.Context, lis net.Listener, model faceproto.Model, limits face.DecodeLimits, maxImageBytes int64, logger *zap.Logger) error {
	srv := grpc.NewServer(faceproto.ServerOptions(maxImageBytes)...)
	faceproto.RegisterServer(srv, model, limits, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("stopping face grpc service")
		srv.GracefulStop()
		return <-errCh
	}
}
