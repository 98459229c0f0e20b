package usecase

import (
	"sync/atomic"
	"time"
)

// MetricsSummary represents aggregated lookup outcomes since process start.
type MetricsSummary struct {
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	EmptyResults       int64   `json:"empty_results"`
	FailedRequests     int64   `json:"failed_requests"`
	SupersededRequests int64   `json:"superseded_requests"`
	SuccessRate        float64 `json:"success_rate"`
	AverageLatencyMs   float64 `json:"average_latency_ms"`
}

type metricsRecorder struct {
	success    atomic.Int64
	empty      atomic.Int64
	failed     atomic.Int64
	superseded atomic.Int64
	latencyNs  atomic.Int64
}

func (m *metricsRecorder) record(kind OutcomeKind, latency time.Duration) {
	switch kind {
	case OutcomeSuccess:
		m.success.Add(1)
	case OutcomeEmpty:
		m.empty.Add(1)
	case OutcomeFailed:
		m.failed.Add(1)
	case OutcomeSuperseded:
		m.superseded.Add(1)
	}
	m.latencyNs.Add(latency.Nanoseconds())
}

// Metrics aggregates outcome counters. Superseded requests count toward the
// total and the latency average but not the success rate.
func (uc *FlightLookupUseCase) Metrics() MetricsSummary {
	m := &uc.metrics
	summary := MetricsSummary{
		SuccessfulRequests: m.success.Load(),
		EmptyResults:       m.empty.Load(),
		FailedRequests:     m.failed.Load(),
		SupersededRequests: m.superseded.Load(),
	}
	summary.TotalRequests = summary.SuccessfulRequests + summary.EmptyResults +
		summary.FailedRequests + summary.SupersededRequests

	if settled := summary.TotalRequests - summary.SupersededRequests; settled > 0 {
		summary.SuccessRate = float64(summary.SuccessfulRequests) / float64(settled)
	}
	if summary.TotalRequests > 0 {
		summary.AverageLatencyMs = float64(m.latencyNs.Load()) / float64(summary.TotalRequests) / 1e6
	}
	return summary
}
