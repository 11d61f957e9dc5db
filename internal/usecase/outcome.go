package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/face-service/internal/logging"
	"github.com/example/face-service/internal/repository"
	"github.com/example/face-service/internal/retry"
)

// ErrOutcomeNotFound is returned when no outcome exists for a request id.
var ErrOutcomeNotFound = errors.New("outcome not found")

const (
	OperationExtract = "extract"
	OperationCompare = "compare"

	ResultOK      = "ok"
	ResultMatch   = "match"
	ResultNoMatch = "no_match"
)

// Outcome is what the service remembers about one request. It never
// carries embeddings or image bytes.
type Outcome struct {
	RequestID string    `json:"request_id"`
	Operation string    `json:"operation"`
	Result    string    `json:"result"`
	Success   bool      `json:"success"`
	Match     *bool     `json:"match,omitempty"`
	Distance  *float64  `json:"distance,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	FaceCount int       `json:"face_count"`
	ImageSHA1 string    `json:"image_sha1"`
	LatencyMs float64   `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// OutcomeRecorder receives every finished extract and compare request.
type OutcomeRecorder interface {
	Record(ctx context.Context, outcome Outcome) error
}

// NopRecorder drops outcomes; it keeps the service stateless.
type NopRecorder struct{}

// Record implements OutcomeRecorder.
func (NopRecorder) Record(context.Context, Outcome) error { return nil }

// OutcomeRepository defines the persistence operations needed by the outcome service.
type OutcomeRepository interface {
	SaveOutcome(ctx context.Context, outcome *repository.FaceOutcome) error
	FindByRequestID(ctx context.Context, requestID string) (*repository.FaceOutcome, error)
	FindByImageSHA1(ctx context.Context, hash, excludeRequestID string) ([]*repository.FaceOutcome, error)
	AggregateOutcomes(ctx context.Context) (*repository.OutcomeAggregation, error)
}

// OutcomeService stores outcomes in the database and, when a cache is
// configured, keeps a copy in Redis for fast lookup.
type OutcomeService struct {
	repo   OutcomeRepository
	cache  Cache
	ttl    time.Duration
	policy retry.Policy
	logger *zap.Logger
}

// NewOutcomeService constructs the service. cache may be nil.
func NewOutcomeService(repo OutcomeRepository, cache Cache, ttl time.Duration, logger *zap.Logger) *OutcomeService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &OutcomeService{
		repo:   repo,
		cache:  cache,
		ttl:    ttl,
		policy: retry.DefaultPolicy,
		logger: logger.Named("outcome_service"),
	}
}

// Record persists outcome, then caches it.
func (s *OutcomeService) Record(ctx context.Context, outcome Outcome) error {
	if err := s.repo.SaveOutcome(ctx, toModel(outcome)); err != nil {
		return err
	}
	if s.cache == nil {
		return nil
	}

	serialized, err := json.Marshal(outcome)
	if err != nil {
		return logging.NewOperationError("usecase.encode_outcome", outcome.RequestID, err)
	}
	return retry.Do(ctx, s.policy, s.logger, "cache.set.outcome", outcome.RequestID, func() error {
		return s.cache.Set(ctx, outcomeCacheKey(outcome.RequestID), string(serialized), s.ttl)
	})
}

// Get returns the outcome of requestID from the cache, falling back to
// the database.
func (s *OutcomeService) Get(ctx context.Context, requestID string) (*Outcome, error) {
	opLogger := logging.WithOperation(s.logger, "usecase.get_outcome", requestID)
	if s.cache != nil {
		var cached string
		err := retry.Do(ctx, s.policy, s.logger, "cache.get.outcome", requestID, func() error {
			value, err := s.cache.Get(ctx, outcomeCacheKey(requestID))
			cached = value
			return err
		})
		switch {
		case err == nil:
			var outcome Outcome
			decodeErr := json.Unmarshal([]byte(cached), &outcome)
			if decodeErr == nil {
				return &outcome, nil
			}
			opLogger.Warn("failed to decode cached outcome", zap.Error(decodeErr))
		case errors.Is(err, redis.Nil):
		default:
			opLogger.Warn("failed to read cache", zap.Error(err))
		}
	}

	model, err := s.repo.FindByRequestID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOutcomeNotFound
		}
		return nil, err
	}
	outcome := fromModel(model)
	return &outcome, nil
}

// DuplicateReport lists earlier requests that sent the same image.
type DuplicateReport struct {
	Request    *Outcome  `json:"request"`
	Duplicates []Outcome `json:"duplicates"`
}

// Duplicates builds the duplicate report for requestID.
func (s *OutcomeService) Duplicates(ctx context.Context, requestID string) (*DuplicateReport, error) {
	outcome, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	models, err := s.repo.FindByImageSHA1(ctx, outcome.ImageSHA1, outcome.RequestID)
	if err != nil {
		return nil, err
	}
	report := &DuplicateReport{Request: outcome, Duplicates: make([]Outcome, 0, len(models))}
	for _, m := range models {
		report.Duplicates = append(report.Duplicates, fromModel(m))
	}
	return report, nil
}

func toModel(o Outcome) *repository.FaceOutcome {
	return &repository.FaceOutcome{
		RequestID: o.RequestID,
		Operation: o.Operation,
		Result:    o.Result,
		Success:   o.Success,
		Match:     o.Match,
		Distance:  o.Distance,
		Threshold: o.Threshold,
		FaceCount: o.FaceCount,
		ImageSHA1: o.ImageSHA1,
		LatencyMs: o.LatencyMs,
		CreatedAt: o.CreatedAt,
	}
}

func fromModel(m *repository.FaceOutcome) Outcome {
	return Outcome{
		RequestID: m.RequestID,
		Operation: m.Operation,
		Result:    m.Result,
		Success:   m.Success,
		Match:     m.Match,
		Distance:  m.Distance,
		Threshold: m.Threshold,
		FaceCount: m.FaceCount,
		ImageSHA1: m.ImageSHA1,
		LatencyMs: m.LatencyMs,
		CreatedAt: m.CreatedAt,
	}
}
