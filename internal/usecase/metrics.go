package usecase

import "context"

// MetricsSummary represents aggregated validation insights.
type MetricsSummary struct {
	TotalValidations           int64   `json:"total_validations"`
	ValidValidations           int64   `json:"valid_validations"`
	ValidRate                  float64 `json:"valid_rate"`
	AverageBrightness          float64 `json:"average_brightness"`
	AverageFaceCount           float64 `json:"average_face_count"`
	AverageProcessingLatencyMs float64 `json:"average_processing_latency_ms"`
}

// GetMetricsSummary aggregates validation metrics from persisted logs.
func (uc *ValidationUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalValidations:           aggregation.TotalCount,
		ValidValidations:           aggregation.ValidCount,
		AverageBrightness:          aggregation.AverageBrightness,
		AverageFaceCount:           aggregation.AverageFaceCount,
		AverageProcessingLatencyMs: aggregation.AverageProcessingMs,
	}

	if aggregation.TotalCount > 0 {
		summary.ValidRate = float64(aggregation.ValidCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
