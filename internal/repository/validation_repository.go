package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/blackmouse572/skin-doctor/internal/retry"
)

// ValidationLog represents a persisted upload validation.
type ValidationLog struct {
	ID           uint      `gorm:"primaryKey"`
	RequestID    string    `gorm:"column:request_id;uniqueIndex;size:64"`
	UserID       string    `gorm:"column:user_id;index;size:64"`
	Valid        bool      `gorm:"column:valid"`
	FaceCount    int       `gorm:"column:face_count"`
	Brightness   float64   `gorm:"column:brightness"`
	Issues       []string  `gorm:"column:issues;type:text;serializer:json"`
	Warnings     []string  `gorm:"column:warnings;type:text;serializer:json"`
	SHA1Hash     string    `gorm:"column:sha1_hash;size:40"`
	ProcessingMs int64     `gorm:"column:processing_ms"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (ValidationLog) TableName() string {
	return "validation_logs"
}

// MetricsAggregation holds the raw totals behind the metrics summary.
type MetricsAggregation struct {
	TotalCount          int64
	ValidCount          int64
	AverageBrightness   float64
	AverageFaceCount    float64
	AverageProcessingMs float64
}

// ValidationRepository provides persistence APIs for validation logs.
type ValidationRepository struct {
	db     *gorm.DB
	logger *zap.Logger
	policy retry.Policy
}

// NewValidationRepository creates a new repository instance.
func NewValidationRepository(db *gorm.DB, logger *zap.Logger) *ValidationRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := retry.DefaultPolicy()
	policy.Expected = func(err error) bool { return errors.Is(err, gorm.ErrRecordNotFound) }
	return &ValidationRepository{
		db:     db,
		logger: logger.Named("validation_repository"),
		policy: policy,
	}
}

// AutoMigrate ensures the schema is available.
func (r *ValidationRepository) AutoMigrate(ctx context.Context) error {
	return r.executeWithRetry(ctx, "repository.auto_migrate", "", func() error {
		return r.db.WithContext(ctx).AutoMigrate(&ValidationLog{})
	})
}

// SaveLog persists a validation log entry.
func (r *ValidationRepository) SaveLog(ctx context.Context, log *ValidationLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestIDAndUser retrieves a validation log matching the request and owner.
func (r *ValidationRepository) FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*ValidationLog, error) {
	var log ValidationLog
	err := r.executeWithRetry(ctx, "repository.find_log", requestID, func() error {
		return r.db.WithContext(ctx).First(&log, "request_id = ? AND user_id = ?", requestID, userID).Error
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateMetrics computes totals and averages over every stored validation.
func (r *ValidationRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&ValidationLog{}).
			Select(`COUNT(*) AS total_count,
				COALESCE(SUM(CASE WHEN valid THEN 1 ELSE 0 END), 0) AS valid_count,
				COALESCE(AVG(brightness), 0) AS average_brightness,
				COALESCE(AVG(face_count), 0) AS average_face_count,
				COALESCE(AVG(processing_ms), 0) AS average_processing_ms`).
			Scan(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *ValidationRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	return retry.Do(ctx, r.policy, r.logger, operation, requestID, fn)
}
