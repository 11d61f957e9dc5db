package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/face-service/internal/face"
	"github.com/example/face-service/internal/logging"
	"github.com/example/face-service/internal/metrics"
)

// FaceUseCase runs extract and compare for one request each, reporting
// metrics and outcomes around the core.
type FaceUseCase struct {
	extractor  *face.Extractor
	comparator *face.Comparator
	recorder   OutcomeRecorder
	logger     *zap.Logger
	now        func() time.Time
}

// NewFaceUseCase constructs a new use case instance. A nil recorder
// records nothing.
func NewFaceUseCase(extractor *face.Extractor, comparator *face.Comparator, recorder OutcomeRecorder, logger *zap.Logger) *FaceUseCase {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &FaceUseCase{
		extractor:  extractor,
		comparator: comparator,
		recorder:   recorder,
		logger:     logger.Named("face_usecase"),
		now:        time.Now,
	}
}

// Threshold returns the distance tolerance used by Compare.
func (uc *FaceUseCase) Threshold() float64 { return uc.comparator.Threshold() }

// Extract returns the embedding of the first face in data. Failures are
// *face.ExtractionError.
func (uc *FaceUseCase) Extract(ctx context.Context, data []byte) (face.Embedding, error) {
	requestID := requestIDFrom(ctx)
	opLogger := logging.WithOperation(uc.logger, "usecase.extract", requestID)
	start := uc.now()

	extraction, err := uc.extractor.ExtractDetailed(ctx, data)
	outcome := uc.newOutcome(requestID, OperationExtract, data, start)
	if err != nil {
		outcome.Result = extractionKind(err)
		uc.finish(ctx, opLogger, outcome, err)
		return nil, err
	}

	outcome.Result = ResultOK
	outcome.Success = true
	outcome.FaceCount = extraction.FaceCount
	if extraction.FaceCount > 1 {
		opLogger.Info("multiple faces detected, using the first", zap.Int("faces", extraction.FaceCount))
	}
	uc.finish(ctx, opLogger, outcome, nil)
	return extraction.Embedding, nil
}

// Compare extracts an embedding from data and scores it against the
// JSON encoded reference. Failures are *face.ComparisonError.
func (uc *FaceUseCase) Compare(ctx context.Context, data []byte, reference string) (face.MatchResult, error) {
	requestID := requestIDFrom(ctx)
	opLogger := logging.WithOperation(uc.logger, "usecase.compare", requestID)
	start := uc.now()

	result, extraction, err := uc.comparator.CompareDetailed(ctx, data, reference)
	outcome := uc.newOutcome(requestID, OperationCompare, data, start)
	outcome.Threshold = uc.comparator.Threshold()
	if extraction != nil {
		outcome.FaceCount = extraction.FaceCount
	}
	if err != nil {
		outcome.Result = comparisonKind(err)
		uc.finish(ctx, opLogger, outcome, err)
		return face.MatchResult{}, err
	}

	outcome.Success = true
	outcome.Match = &result.Match
	outcome.Distance = &result.Distance
	outcome.Result = ResultNoMatch
	if result.Match {
		outcome.Result = ResultMatch
	}
	metrics.CompareDistance.Observe(result.Distance)
	uc.finish(ctx, opLogger, outcome, nil,
		zap.Float64("distance", result.Distance),
		zap.Bool("match", result.Match),
	)
	return result, nil
}

func (uc *FaceUseCase) newOutcome(requestID, operation string, data []byte, start time.Time) Outcome {
	hash := sha1.Sum(data)
	now := uc.now()
	return Outcome{
		RequestID: requestID,
		Operation: operation,
		ImageSHA1: hex.EncodeToString(hash[:]),
		LatencyMs: float64(now.Sub(start)) / float64(time.Millisecond),
		CreatedAt: now.UTC(),
	}
}

// finish logs and counts the outcome, then hands it to the recorder.
// Recorder failures never reach the caller.
func (uc *FaceUseCase) finish(ctx context.Context, opLogger *zap.Logger, outcome Outcome, err error, fields ...zap.Field) {
	metrics.Operations.WithLabelValues(outcome.Operation, outcome.Result).Inc()

	fields = append(fields,
		zap.String("result", outcome.Result),
		zap.Int("faces", outcome.FaceCount),
		zap.Float64("latency_ms", outcome.LatencyMs),
	)
	switch {
	case err == nil:
		opLogger.Info("request completed", fields...)
	case outcome.Result == face.ExtractionInternal.String():
		opLogger.Error("request failed", append(fields, zap.Error(err))...)
	default:
		opLogger.Info("request rejected", append(fields, zap.Error(err))...)
	}

	if recErr := uc.recorder.Record(context.WithoutCancel(ctx), outcome); recErr != nil {
		opLogger.Warn("failed to record outcome", zap.Error(recErr))
	}
}

func requestIDFrom(ctx context.Context) string {
	if id := logging.RequestIDFromContext(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

func extractionKind(err error) string {
	var extErr *face.ExtractionError
	if errors.As(err, &extErr) {
		return extErr.Kind.String()
	}
	return face.ExtractionInternal.String()
}

func comparisonKind(err error) string {
	var cmpErr *face.ComparisonError
	if errors.As(err, &cmpErr) {
		return cmpErr.Kind.String()
	}
	return face.ComparisonInternal.String()
}
