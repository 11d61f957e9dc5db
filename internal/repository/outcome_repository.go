package repository

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/face-service/internal/retry"
)

// FaceOutcome is the audit record of one extract or compare request.
// Embeddings are never stored.
type FaceOutcome struct {
	ID        uint      `gorm:"primaryKey"`
	RequestID string    `gorm:"column:request_id;index;size:64"`
	Operation string    `gorm:"column:operation;size:16;index"`
	Result    string    `gorm:"column:result;size:32"`
	Success   bool      `gorm:"column:success"`
	Match     *bool     `gorm:"column:matched"`
	Distance  *float64  `gorm:"column:distance"`
	Threshold float64   `gorm:"column:threshold"`
	FaceCount int       `gorm:"column:face_count"`
	ImageSHA1 string    `gorm:"column:image_sha1;size:40;index"`
	LatencyMs float64   `gorm:"column:latency_ms"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (FaceOutcome) TableName() string {
	return "face_outcomes"
}

// OutcomeAggregation holds totals over every stored outcome.
type OutcomeAggregation struct {
	TotalCount       int64
	SuccessCount     int64
	CompareCount     int64
	MatchCount       int64
	AverageDistance  float64
	AverageLatencyMs float64
}

// OutcomeRepository provides persistence APIs for face outcomes.
type OutcomeRepository struct {
	db     *gorm.DB
	logger *zap.Logger
	policy retry.Policy
}

// NewOutcomeRepository creates a new repository instance.
func NewOutcomeRepository(db *gorm.DB, logger *zap.Logger) *OutcomeRepository {
	return &OutcomeRepository{db: db, logger: logger.Named("outcome_repository"), policy: retry.DefaultPolicy}
}

// AutoMigrate ensures the schema is available.
func (r *OutcomeRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&FaceOutcome{})
}

// SaveOutcome persists an outcome.
func (r *OutcomeRepository) SaveOutcome(ctx context.Context, outcome *FaceOutcome) error {
	return r.executeWithRetry(ctx, "repository.save_outcome", outcome.RequestID, func() error {
		return r.db.WithContext(ctx).Create(outcome).Error
	})
}

// FindByRequestID retrieves the latest outcome recorded under a request
// id. Callers may reuse an id, so several rows can share it. A missing
// row yields an error matching gorm.ErrRecordNotFound.
func (r *OutcomeRepository) FindByRequestID(ctx context.Context, requestID string) (*FaceOutcome, error) {
	var outcome FaceOutcome
	err := r.executeWithRetry(ctx, "repository.find_outcome", requestID, func() error {
		return latestByRequestID(r.db.WithContext(ctx), requestID).Take(&outcome).Error
	})
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}

// FindByImageSHA1 lists other requests that submitted the same image bytes.
func (r *OutcomeRepository) FindByImageSHA1(ctx context.Context, hash, excludeRequestID string) ([]*FaceOutcome, error) {
	var outcomes []*FaceOutcome
	err := r.executeWithRetry(ctx, "repository.find_by_image", excludeRequestID, func() error {
		return r.db.WithContext(ctx).
			Where("image_sha1 = ? AND request_id <> ?", hash, excludeRequestID).
			Order("created_at DESC").
			Find(&outcomes).Error
	})
	if err != nil {
		return nil, err
	}
	return outcomes, nil
}

// AggregateOutcomes computes totals over every stored outcome.
func (r *OutcomeRepository) AggregateOutcomes(ctx context.Context) (*OutcomeAggregation, error) {
	var agg OutcomeAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_outcomes", "", func() error {
		return r.db.WithContext(ctx).Model(&FaceOutcome{}).Select(
			"COUNT(*) AS total_count, " +
				"COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS success_count, " +
				"COALESCE(SUM(CASE WHEN operation = 'compare' THEN 1 ELSE 0 END), 0) AS compare_count, " +
				"COALESCE(SUM(CASE WHEN matched THEN 1 ELSE 0 END), 0) AS match_count, " +
				"COALESCE(AVG(distance), 0) AS average_distance, " +
				"COALESCE(AVG(latency_ms), 0) AS average_latency_ms",
		).Scan(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func latestByRequestID(tx *gorm.DB, requestID string) *gorm.DB {
	return tx.Where("request_id = ?", requestID).Order("id DESC")
}

func (r *OutcomeRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	return retry.Do(ctx, r.policy, r.logger, operation, requestID, fn)
}
