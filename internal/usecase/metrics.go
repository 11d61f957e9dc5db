package usecase

import "context"

// Summary represents aggregated outcome insights.
type Summary struct {
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	SuccessRate        float64 `json:"success_rate"`
	Comparisons        int64   `json:"comparisons"`
	Matches            int64   `json:"matches"`
	MatchRate          float64 `json:"match_rate"`
	AverageDistance    float64 `json:"average_distance"`
	AverageLatencyMs   float64 `json:"average_latency_ms"`
}

// Summary aggregates metrics from persisted outcomes.
func (s *OutcomeService) Summary(ctx context.Context) (*Summary, error) {
	aggregation, err := s.repo.AggregateOutcomes(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		TotalRequests:      aggregation.TotalCount,
		SuccessfulRequests: aggregation.SuccessCount,
		Comparisons:        aggregation.CompareCount,
		Matches:            aggregation.MatchCount,
		AverageDistance:    aggregation.AverageDistance,
		AverageLatencyMs:   aggregation.AverageLatencyMs,
	}

	if aggregation.TotalCount > 0 {
		summary.SuccessRate = float64(aggregation.SuccessCount) / float64(aggregation.TotalCount)
	}
	if aggregation.CompareCount > 0 {
		summary.MatchRate = float64(aggregation.MatchCount) / float64(aggregation.CompareCount)
	}

	return summary, nil
}
