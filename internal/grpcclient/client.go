// Package grpcclient talks to a remote face model over gRPC.
package grpcclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/face-service/internal/face"
	"github.com/example/face-service/internal/faceproto"
	"github.com/example/face-service/internal/logging"
)

// DialFaceService returns a face.Backend backed by the remote model at
// addr. The model is described once while dialing. Calls are sized for
// images of up to maxImageBytes.
func DialFaceService(ctx context.Context, addr string, dialTimeout time.Duration, maxImageBytes int64, logger *zap.Logger, opts ...grpc.DialOption) (face.Backend, error) {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
		grpc.WithDefaultCallOptions(faceproto.CallOptions(maxImageBytes)...),
	}, opts...)
	conn, err := grpc.DialContext(dialCtx, addr, dialOpts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_face_service", "", err)
		logger.Error("failed to dial face service", zap.Error(wrapped), zap.String("addr", addr))
		return nil, wrapped
	}

	client := &grpcFaceService{conn: conn, logger: logger.Named("grpcclient")}
	info, err := client.describe(dialCtx)
	if err != nil {
		conn.Close()
		wrapped := logging.NewOperationError("grpcclient.describe", "", err)
		logger.Error("failed to describe face model", zap.Error(wrapped), zap.String("addr", addr))
		return nil, wrapped
	}
	client.info = info
	logger.Info("face service connected",
		zap.String("addr", addr),
		zap.String("model", info.Name),
		zap.Int("dimension", info.Dimension),
		zap.Float64("threshold", info.Threshold),
	)
	return client, nil
}

type grpcFaceService struct {
	conn   *grpc.ClientConn
	info   face.ModelInfo
	logger *zap.Logger
}

func (g *grpcFaceService) Locate(ctx context.Context, img *face.Image) ([]face.Region, error) {
	resp := new(structpb.Struct)
	if err := g.conn.Invoke(ctx, faceproto.LocateMethod, faceproto.NewLocateRequest(img.Raw), resp); err != nil {
		return nil, g.callError(ctx, "grpcclient.locate", err)
	}
	regions, err := faceproto.ParseRegions(resp)
	if err != nil {
		return nil, logging.NewOperationError("grpcclient.locate", logging.RequestIDFromContext(ctx), err)
	}
	return regions, nil
}

func (g *grpcFaceService) Encode(ctx context.Context, img *face.Image, regions []face.Region) ([]face.Embedding, error) {
	resp := new(structpb.Struct)
	if err := g.conn.Invoke(ctx, faceproto.EncodeMethod, faceproto.NewEncodeRequest(img.Raw, regions), resp); err != nil {
		return nil, g.callError(ctx, "grpcclient.encode", err)
	}
	encodings, err := faceproto.ParseEncodings(resp)
	if err != nil {
		return nil, logging.NewOperationError("grpcclient.encode", logging.RequestIDFromContext(ctx), err)
	}
	return encodings, nil
}

func (g *grpcFaceService) Info() face.ModelInfo { return g.info }

func (g *grpcFaceService) Close() error { return g.conn.Close() }

func (g *grpcFaceService) describe(ctx context.Context) (face.ModelInfo, error) {
	resp := new(structpb.Struct)
	if err := g.conn.Invoke(ctx, faceproto.DescribeMethod, &emptypb.Empty{}, resp); err != nil {
		return face.ModelInfo{}, err
	}
	return faceproto.ParseModelInfo(resp)
}

// callError keeps the remote's verdict on bad images visible to the
// extractor; everything else is an infrastructure failure.
func (g *grpcFaceService) callError(ctx context.Context, operation string, err error) error {
	requestID := logging.RequestIDFromContext(ctx)
	if status.Code(err) == codes.InvalidArgument {
		return fmt.Errorf("%w: %s", face.ErrInvalidImage, status.Convert(err).Message())
	}
	wrapped := logging.NewOperationError(operation, requestID, err)
	g.logger.Error("face service call failed", zap.Error(wrapped), zap.String("request_id", requestID))
	return wrapped
}
