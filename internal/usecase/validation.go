package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/blackmouse572/skin-doctor/internal/camera"
	"github.com/blackmouse572/skin-doctor/internal/facequality"
	"github.com/blackmouse572/skin-doctor/internal/imageio"
	"github.com/blackmouse572/skin-doctor/internal/logging"
	"github.com/blackmouse572/skin-doctor/internal/repository"
	"github.com/blackmouse572/skin-doctor/internal/retry"
)

const (
	processingMarker = "processing"
	processingTTL    = time.Minute
	resultTTL        = 5 * time.Minute
)

var (
	// ErrInvalidImage is returned when the upload cannot be decoded as an image.
	ErrInvalidImage = errors.New("invalid image")
	// ErrNotFound is returned when no validation exists for the caller.
	ErrNotFound = errors.New("validation not found")
)

// ValidationRepository defines the persistence operations needed by the use case.
type ValidationRepository interface {
	SaveLog(ctx context.Context, log *repository.ValidationLog) error
	FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*repository.ValidationLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// ImageValidator checks a decoded photo.
type ImageValidator interface {
	Validate(ctx context.Context, img image.Image) facequality.ImageValidation
}

// ValidationUseCase encapsulates business logic for the upload validation flow.
type ValidationUseCase struct {
	repo      ValidationRepository
	cache     Cache
	validator ImageValidator
	logger    *zap.Logger
	policy    retry.Policy
}

type cachedValidation struct {
	RequestID    string                      `json:"request_id"`
	UserID       string                      `json:"user_id"`
	Validation   facequality.ImageValidation `json:"validation"`
	SHA1Hash     string                      `json:"sha1_hash"`
	ProcessingMs int64                       `json:"processing_ms"`
	CreatedAt    time.Time                   `json:"created_at"`
}

// NewValidationUseCase constructs a new use case instance.
func NewValidationUseCase(repo ValidationRepository, cache Cache, validator ImageValidator, logger *zap.Logger) *ValidationUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := retry.DefaultPolicy()
	policy.Expected = func(err error) bool { return errors.Is(err, redis.Nil) }
	return &ValidationUseCase{
		repo:      repo,
		cache:     cache,
		validator: validator,
		logger:    logger.Named("validation_usecase"),
		policy:    policy,
	}
}

func cacheKey(requestID string) string {
	return fmt.Sprintf("validation:%s", requestID)
}

// ValidateImage decodes an upload, checks its quality, persists the outcome and
// caches it for quick lookups.
func (uc *ValidationUseCase) ValidateImage(ctx context.Context, userID string, imageBytes []byte) (string, *facequality.ImageValidation, error) {
	requestID := uuid.NewString()
	started := time.Now()
	opLogger := logging.WithOperation(uc.logger, "usecase.validate_image", requestID)

	img, err := imageio.DecodeBytes(imageBytes)
	if err != nil {
		opLogger.Info("rejected undecodable upload", zap.Error(err))
		return "", nil, logging.NewOperationError("usecase.decode_image", requestID, fmt.Errorf("%w: %w", ErrInvalidImage, err))
	}

	key := cacheKey(requestID)
	if err := retry.Do(ctx, uc.policy, uc.logger, "cache.set.processing", requestID, func() error {
		return uc.cache.Set(ctx, key, processingMarker, processingTTL)
	}); err != nil {
		opLogger.Error("failed to set processing flag", zap.Error(err))
		return "", nil, err
	}

	validation := uc.validator.Validate(ctx, imageio.FitWithin(img, imageio.MaxSide))

	hash := sha1.Sum(imageBytes)
	log := &repository.ValidationLog{
		RequestID:    requestID,
		UserID:       userID,
		Valid:        validation.IsValid,
		FaceCount:    validation.FaceCount,
		Brightness:   validation.Brightness,
		Issues:       validation.Issues,
		Warnings:     validation.Warnings,
		SHA1Hash:     hex.EncodeToString(hash[:]),
		ProcessingMs: time.Since(started).Milliseconds(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := uc.repo.SaveLog(ctx, log); err != nil {
		wrapped := logging.NewOperationError("usecase.save_log", requestID, err)
		opLogger.Error("failed to persist validation log", zap.Error(wrapped))
		return "", nil, wrapped
	}

	serialized, err := json.Marshal(cachedValidation{
		RequestID:    requestID,
		UserID:       userID,
		Validation:   validation,
		SHA1Hash:     log.SHA1Hash,
		ProcessingMs: log.ProcessingMs,
		CreatedAt:    log.CreatedAt,
	})
	if err != nil {
		opLogger.Error("failed to serialize validation result", zap.Error(err))
		return "", nil, err
	}

	if err := retry.Do(ctx, uc.policy, uc.logger, "cache.set.result", requestID, func() error {
		return uc.cache.Set(ctx, key, string(serialized), resultTTL)
	}); err != nil {
		opLogger.Error("failed to cache validation result", zap.Error(err))
		return "", nil, err
	}

	opLogger.Info("image validated",
		zap.Bool("valid", validation.IsValid),
		zap.Int("face_count", validation.FaceCount),
		zap.Int64("processing_ms", log.ProcessingMs),
	)
	return requestID, &validation, nil
}

// GetResult retrieves a cached validation outcome or loads it from persistence.
// Entries owned by another user are never returned.
func (uc *ValidationUseCase) GetResult(ctx context.Context, userID, requestID string) (*repository.ValidationLog, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.get_result", requestID)

	if cached, err := uc.cacheGet(ctx, requestID, "cache.get.result", cacheKey(requestID)); err == nil {
		if log, ok := decodeCached(cached, userID); ok {
			return log, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		opLogger.Warn("failed to read cache", zap.Error(err))
	}

	log, err := uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, logging.NewOperationError("usecase.get_result", requestID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return log, nil
}

// ClassifyCameraError turns a browser camera failure into user guidance.
func (uc *ValidationUseCase) ClassifyCameraError(userID, name, message string) camera.AccessFailure {
	failure := camera.Classify(name, message)
	uc.logger.Info("camera access failed",
		zap.String("user_id", userID),
		zap.String("code", failure.Code),
		zap.String("raw_message", message),
	)
	return failure
}

// decodeCached rebuilds a log from the cache. The processing marker, foreign
// entries and undecodable payloads are misses.
func decodeCached(cached, userID string) (*repository.ValidationLog, bool) {
	if cached == processingMarker {
		return nil, false
	}
	var payload cachedValidation
	if err := json.Unmarshal([]byte(cached), &payload); err != nil {
		return nil, false
	}
	if payload.UserID != userID {
		return nil, false
	}
	return &repository.ValidationLog{
		RequestID:    payload.RequestID,
		UserID:       payload.UserID,
		Valid:        payload.Validation.IsValid,
		FaceCount:    payload.Validation.FaceCount,
		Brightness:   payload.Validation.Brightness,
		Issues:       payload.Validation.Issues,
		Warnings:     payload.Validation.Warnings,
		SHA1Hash:     payload.SHA1Hash,
		ProcessingMs: payload.ProcessingMs,
		CreatedAt:    payload.CreatedAt,
	}, true
}

func (uc *ValidationUseCase) cacheGet(ctx context.Context, requestID, operation, key string) (string, error) {
	var result string
	err := retry.Do(ctx, uc.policy, uc.logger, operation, requestID, func() error {
		value, err := uc.cache.Get(ctx, key)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}
