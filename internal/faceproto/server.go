package faceproto

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/face-service/internal/face"
)

// Model is what RegisterServer exposes; any face.Backend satisfies it.
type Model interface {
	face.Locator
	face.Encoder
	Info() face.ModelInfo
}

type server struct {
	model  Model
	limits face.DecodeLimits
	logger *zap.Logger
}

// RegisterServer hosts model as face.v1.FaceService on s.
func RegisterServer(s *grpc.Server, model Model, limits face.DecodeLimits, logger *zap.Logger) {
	s.RegisterService(&serviceDesc, &server{model: model, limits: limits, logger: logger.Named("faceproto_server")})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Locate", Handler: locateHandler},
		{MethodName: "Encode", Handler: encodeHandler},
		{MethodName: "Describe", Handler: describeHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func (s *server) locate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw, err := ParseLocateRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	img, err := face.Decode(raw, s.limits)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	regions, err := s.model.Locate(ctx, img)
	if err != nil {
		return nil, s.modelError("locate", err)
	}
	return NewRegionsResponse(regions), nil
}

func (s *server) encode(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw, regions, err := ParseEncodeRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	img, err := face.Decode(raw, s.limits)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	encodings, err := s.model.Encode(ctx, img, regions)
	if err != nil {
		return nil, s.modelError("encode", err)
	}
	return NewEncodingsResponse(encodings), nil
}

func (s *server) describe(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return NewModelInfo(s.model.Info()), nil
}

func (s *server) modelError(stage string, err error) error {
	if errors.Is(err, face.ErrInvalidImage) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	s.logger.Error("model call failed", zap.String("stage", stage), zap.Error(err))
	return status.Error(codes.Internal, err.Error())
}

func locateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(*server)
	if interceptor == nil {
		return s.locate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: LocateMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return s.locate(ctx, req.(*structpb.Struct))
	})
}

func encodeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(*server)
	if interceptor == nil {
		return s.encode(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: EncodeMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return s.encode(ctx, req.(*structpb.Struct))
	})
}

func describeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(*server)
	if interceptor == nil {
		return s.describe(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DescribeMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return s.describe(ctx, req.(*emptypb.Empty))
	})
}
