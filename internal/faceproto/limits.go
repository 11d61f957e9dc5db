package faceproto

import (
	"math"

	"google.golang.org/grpc"
)

const (
	// defaultMaxImageBytes applies when no image limit is configured.
	defaultMaxImageBytes = 10 << 20
	// envelopeOverhead covers the Struct framing, regions and encodings.
	envelopeOverhead = 1 << 20
	// grpcDefaultMessageSize is the grpc-go receive limit.
	grpcDefaultMessageSize = 4 << 20
)

// MessageLimit returns the largest message either side must accept to
// carry an image of maxImageBytes in base64.
func MessageLimit(maxImageBytes int64) int {
	if maxImageBytes <= 0 {
		maxImageBytes = defaultMaxImageBytes
	}
	limit := 4*((maxImageBytes+2)/3) + envelopeOverhead
	if limit > math.MaxInt32 {
		return math.MaxInt32
	}
	if limit < grpcDefaultMessageSize {
		return grpcDefaultMessageSize
	}
	return int(limit)
}

// ServerOptions sizes a server for images of up to maxImageBytes.
func ServerOptions(maxImageBytes int64) []grpc.ServerOption {
	n := MessageLimit(maxImageBytes)
	return []grpc.ServerOption{grpc.MaxRecvMsgSize(n), grpc.MaxSendMsgSize(n)}
}

// CallOptions sizes client calls for images of up to maxImageBytes.
func CallOptions(maxImageBytes int64) []grpc.CallOption {
	n := MessageLimit(maxImageBytes)
	return []grpc.CallOption{grpc.MaxCallSendMsgSize(n), grpc.MaxCallRecvMsgSize(n)}
}
