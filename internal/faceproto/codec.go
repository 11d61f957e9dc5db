// Package faceproto defines the gRPC contract of the remote face model
// service. Messages are google.protobuf.Struct values so neither side
// needs generated stubs:
//
//	Locate(Struct{image})            -> Struct{regions: [[top,right,bottom,left], ...]}
//	Encode(Struct{image, regions})   -> Struct{encodings: [[float, ...], ...]}
//	Describe(Empty)                  -> Struct{name, dimension, threshold}
//
// image is the base64 (standard encoding) form of the raw image bytes.
package faceproto

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/face-service/internal/face"
)

const (
	ServiceName    = "face.v1.FaceService"
	LocateMethod   = "/" + ServiceName + "/Locate"
	EncodeMethod   = "/" + ServiceName + "/Encode"
	DescribeMethod = "/" + ServiceName + "/Describe"
)

const (
	fieldImage     = "image"
	fieldRegions   = "regions"
	fieldEncodings = "encodings"
	fieldName      = "name"
	fieldDimension = "dimension"
	fieldThreshold = "threshold"
)

// NewLocateRequest builds the Locate request for raw image bytes.
func NewLocateRequest(image []byte) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldImage: structpb.NewStringValue(base64.StdEncoding.EncodeToString(image)),
	}}
}

// ParseLocateRequest extracts the image bytes of a Locate request.
func ParseLocateRequest(req *structpb.Struct) ([]byte, error) {
	return imageField(req)
}

// NewEncodeRequest builds the Encode request.
func NewEncodeRequest(image []byte, regions []face.Region) *structpb.Struct {
	req := NewLocateRequest(image)
	req.Fields[fieldRegions] = regionsValue(regions)
	return req
}

// ParseEncodeRequest extracts the image bytes and regions of an Encode request.
func ParseEncodeRequest(req *structpb.Struct) ([]byte, []face.Region, error) {
	image, err := imageField(req)
	if err != nil {
		return nil, nil, err
	}
	regions, err := ParseRegions(req)
	if err != nil {
		return nil, nil, err
	}
	return image, regions, nil
}

// NewRegionsResponse builds the Locate response.
func NewRegionsResponse(regions []face.Region) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{fieldRegions: regionsValue(regions)}}
}

// ParseRegions reads the regions field. A missing field means no regions.
func ParseRegions(msg *structpb.Struct) ([]face.Region, error) {
	list := msg.GetFields()[fieldRegions].GetListValue()
	regions := make([]face.Region, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		coords, err := numbers(v)
		if err != nil {
			return nil, fmt.Errorf("region %d: %w", i, err)
		}
		if len(coords) != 4 {
			return nil, fmt.Errorf("region %d: expected 4 coordinates, got %d", i, len(coords))
		}
		regions = append(regions, face.Region{
			Top:    int(coords[0]),
			Right:  int(coords[1]),
			Bottom: int(coords[2]),
			Left:   int(coords[3]),
		})
	}
	return regions, nil
}

// NewEncodingsResponse builds the Encode response.
func NewEncodingsResponse(encodings []face.Embedding) *structpb.Struct {
	values := make([]*structpb.Value, len(encodings))
	for i, emb := range encodings {
		values[i] = numberList(emb)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldEncodings: structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
}

// ParseEncodings reads the encodings field of an Encode response.
func ParseEncodings(msg *structpb.Struct) ([]face.Embedding, error) {
	list := msg.GetFields()[fieldEncodings].GetListValue()
	encodings := make([]face.Embedding, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		values, err := numbers(v)
		if err != nil {
			return nil, fmt.Errorf("encoding %d: %w", i, err)
		}
		encodings = append(encodings, face.Embedding(values))
	}
	return encodings, nil
}

// NewModelInfo builds the Describe response.
func NewModelInfo(info face.ModelInfo) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldName:      structpb.NewStringValue(info.Name),
		fieldDimension: structpb.NewNumberValue(float64(info.Dimension)),
		fieldThreshold: structpb.NewNumberValue(info.Threshold),
	}}
}

// ParseModelInfo reads a Describe response.
func ParseModelInfo(msg *structpb.Struct) (face.ModelInfo, error) {
	fields := msg.GetFields()
	dim := fields[fieldDimension].GetNumberValue()
	if dim < 0 || dim != math.Trunc(dim) {
		return face.ModelInfo{}, fmt.Errorf("invalid dimension %v", dim)
	}
	threshold := fields[fieldThreshold].GetNumberValue()
	if threshold < 0 {
		return face.ModelInfo{}, fmt.Errorf("invalid threshold %v", threshold)
	}
	return face.ModelInfo{
		Name:      fields[fieldName].GetStringValue(),
		Dimension: int(dim),
		Threshold: threshold,
	}, nil
}

func imageField(msg *structpb.Struct) ([]byte, error) {
	v, ok := msg.GetFields()[fieldImage]
	if !ok {
		return nil, errors.New("image field missing")
	}
	data, err := base64.StdEncoding.DecodeString(v.GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("image field: %w", err)
	}
	return data, nil
}

func regionsValue(regions []face.Region) *structpb.Value {
	values := make([]*structpb.Value, len(regions))
	for i, r := range regions {
		values[i] = numberList([]float64{float64(r.Top), float64(r.Right), float64(r.Bottom), float64(r.Left)})
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

func numberList(values []float64) *structpb.Value {
	list := make([]*structpb.Value, len(values))
	for i, v := range values {
		list[i] = structpb.NewNumberValue(v)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: list})
}

func numbers(v *structpb.Value) ([]float64, error) {
	list, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, errors.New("expected a list")
	}
	out := make([]float64, len(list.ListValue.GetValues()))
	for i, item := range list.ListValue.GetValues() {
		num, ok := item.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("element %d is not a number", i)
		}
		out[i] = num.NumberValue
	}
	return out, nil
}
